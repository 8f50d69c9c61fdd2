package types

import (
	"strings"
)

// StartRequest opens a new round on a stream
type StartRequest struct {
	StreamID       string `json:"streamId"`
	Text           string `json:"text"`
	DurationSec    int    `json:"durationSec"`
	Mode           string `json:"mode,omitempty"`
	MinVoteCredits int    `json:"minVoteCredits,omitempty"`
	SpamCreditCost int    `json:"spamCreditCost,omitempty"`
	GuestAddr      string `json:"guestAddr,omitempty"`
	HostID         string `json:"-"`
}

// Normalize trims text and fills defaults for omitted fields
func (r *StartRequest) Normalize() {
	r.StreamID = strings.TrimSpace(r.StreamID)
	r.Text = strings.TrimSpace(r.Text)
	if r.Mode == "" {
		r.Mode = DefaultMode
	}
	if r.MinVoteCredits <= 0 {
		r.MinVoteCredits = DefaultMinVoteCredits
	}
	if r.SpamCreditCost <= 0 {
		r.SpamCreditCost = DefaultSpamCreditCost
	}
	if r.HostID == "" {
		r.HostID = DefaultHostID
	}
}

// UpdateRequest changes the text and/or extends the deadline of the stream's round
type UpdateRequest struct {
	StreamID  string  `json:"streamId"`
	Text      *string `json:"text,omitempty"`
	ExtendSec *int    `json:"extendSec,omitempty"`
}

// Normalize trims the replacement text when present
func (r *UpdateRequest) Normalize() {
	r.StreamID = strings.TrimSpace(r.StreamID)
	if r.Text != nil {
		trimmed := strings.TrimSpace(*r.Text)
		r.Text = &trimmed
	}
}

// VoteRequest submits credits to one side of the stream's live round
type VoteRequest struct {
	StreamID      string    `json:"streamId"`
	Side          Side      `json:"side"`
	Credits       int       `json:"credits"`
	User          Submitter `json:"user"`
	UserID        string    `json:"-"`
	SourceAddress string    `json:"-"`
}

// Normalize fills the submitter id when the caller left it empty
func (r *VoteRequest) Normalize() {
	r.StreamID = strings.TrimSpace(r.StreamID)
	r.User.Name = strings.TrimSpace(r.User.Name)
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
}

// SpamRequest submits a presentation-only reaction to the stream's live round
type SpamRequest struct {
	StreamID      string    `json:"streamId"`
	Side          Side      `json:"side"`
	Tier          int       `json:"tier"`
	User          Submitter `json:"user"`
	UserID        string    `json:"-"`
	SourceAddress string    `json:"-"`
}

// Normalize fills the submitter id when the caller left it empty
func (r *SpamRequest) Normalize() {
	r.StreamID = strings.TrimSpace(r.StreamID)
	r.User.Name = strings.TrimSpace(r.User.Name)
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
}
