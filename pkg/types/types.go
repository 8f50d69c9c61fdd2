package types

import (
	"time"
)

// Side is the direction of a vote or spam reaction
type Side string

const (
	SideBull Side = "bull"
	SideBear Side = "bear"
)

// Status is the lifecycle state of a round
// live -> ended -> revealed; settled is reserved for off-chain payout bookkeeping
type Status string

const (
	StatusLive     Status = "live"
	StatusEnded    Status = "ended"
	StatusRevealed Status = "revealed"
	StatusSettled  Status = "settled"
)

// IsTerminal reports whether the status is a terminal display state
func (s Status) IsTerminal() bool {
	return s == StatusRevealed || s == StatusSettled
}

// Defaults applied when a start request leaves the field empty
const (
	DefaultMode           = "balloons"
	DefaultMinVoteCredits = 2
	DefaultSpamCreditCost = 1
	DefaultHostID         = "api_user"
	DefaultUserID         = "anonymous"
	MinDurationSec        = 10
)

// Upper bounds on caller-supplied magnitudes. Durations stay far below the
// time.Duration range and credit totals cannot overflow int64.
const (
	MaxDurationSec = 7 * 24 * 60 * 60
	MaxExtendSec   = MaxDurationSec
	MaxVoteCredits = 1_000_000_000
)

// Submitter is the display identity attached to votes and spam
type Submitter struct {
	Name   string `json:"name"`
	PfpURL string `json:"pfpUrl,omitempty"`
}

// Round is one timed bull-vs-bear prediction ("prompt") for a stream.
// BullCredits and BearCredits are hidden until reveal and never serialized.
type Round struct {
	ID             string    `json:"id"`
	StreamID       string    `json:"streamId"`
	Text           string    `json:"text"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"startedAt"`
	EndsAt         time.Time `json:"endsAt"`
	Mode           string    `json:"mode"`
	MinVoteCredits int       `json:"minVoteCredits"`
	SpamCreditCost int       `json:"spamCreditCost"`
	BullCredits    int64     `json:"-"`
	BearCredits    int64     `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	HostID         string    `json:"hostId"`
	GuestAddr      string    `json:"guestAddr,omitempty"`
}

// Summary returns the public view sent to overlays when a round starts
func (r *Round) Summary() RoundStartedPayload {
	return RoundStartedPayload{
		ID:     r.ID,
		Text:   r.Text,
		EndsAt: r.EndsAt,
		Mode:   r.Mode,
	}
}

// Vote is one weighted directional submission; immutable once created
type Vote struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"promptId"`
	UserID    string    `json:"userId"`
	Side      Side      `json:"side"`
	Credits   int       `json:"credits"`
	User      Submitter `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"-"`
}

// SpamEvent is a presentation-only reaction; it never touches credit totals
type SpamEvent struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"promptId"`
	UserID    string    `json:"userId"`
	Side      Side      `json:"side"`
	Tier      int       `json:"tier"`
	User      Submitter `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"-"`
}

// Settlement is the outcome computed at reveal time
type Settlement struct {
	PromptID     string `json:"promptId"`
	WinnerSide   Side   `json:"winnerSide"`
	BullCredits  int64  `json:"bullCredits"`
	BearCredits  int64  `json:"bearCredits"`
	BullPct      int    `json:"bullPct"`
	BearPct      int    `json:"bearPct"`
	TotalCredits int64  `json:"totalCredits"`
}

// PublicStats is the read model that is safe to expose while a round runs.
// Credit totals are only present once the round is revealed.
type PublicStats struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"startedAt"`
	EndsAt      time.Time `json:"endsAt"`
	Mode        string    `json:"mode"`
	VoteCount   int       `json:"voteCount"`
	SpamCount   int       `json:"spamCount"`
	BullCredits *int64    `json:"bullCredits,omitempty"`
	BearCredits *int64    `json:"bearCredits,omitempty"`
}

// SweepResult reports what a sweep pass changed
type SweepResult struct {
	Expired int `json:"expired"`
	Purged  int `json:"purged"`
}
