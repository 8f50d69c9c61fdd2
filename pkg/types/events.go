package types

import (
	"time"
)

// Outbound event names, broadcast to a single stream room
const (
	EventRoundStarted  = "prompt:start"
	EventRoundUpdated  = "prompt:update"
	EventVoteReceived  = "vote:new"
	EventSpamReceived  = "spam:new"
	EventRoundRevealed = "prompt:reveal"
)

// Replies sent only to the originating socket
const (
	EventHeartbeatAck = "heartbeat-ack"
	EventError        = "error"
)

// Inbound socket message types
const (
	ClientJoinRoom   = "join-room"
	ClientTestVote   = "test-vote"
	ClientTestSpam   = "test-spam"
	ClientTestReveal = "test-reveal"
	ClientHeartbeat  = "heartbeat"
)

// Envelope is the wire frame for every outbound socket message
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type RoundStartedPayload struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	EndsAt time.Time `json:"endsAt"`
	Mode   string    `json:"mode"`
}

type RoundUpdatedPayload struct {
	Text   *string    `json:"text,omitempty"`
	EndsAt *time.Time `json:"endsAt,omitempty"`
}

// VoteReceivedPayload never carries running totals
type VoteReceivedPayload struct {
	Side    Side      `json:"side"`
	Credits int       `json:"credits"`
	User    Submitter `json:"user"`
	Ts      time.Time `json:"ts"`
}

type SpamReceivedPayload struct {
	Side Side      `json:"side"`
	Tier int       `json:"tier"`
	User Submitter `json:"user"`
	Ts   time.Time `json:"ts"`
}

type RoundRevealedPayload struct {
	WinnerSide  Side  `json:"winnerSide"`
	BullCredits int64 `json:"bullCredits"`
	BearCredits int64 `json:"bearCredits"`
	BullPct     int   `json:"bullPct"`
	BearPct     int   `json:"bearPct"`
}

type HeartbeatAckPayload struct {
	Timestamp int64  `json:"timestamp"`
	StreamID  string `json:"streamId,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientMessage is the inbound socket frame. Fields are used per Type.
type ClientMessage struct {
	Type     string     `json:"type"`
	StreamID string     `json:"streamId"`
	Side     Side       `json:"side,omitempty"`
	Credits  int        `json:"credits,omitempty"`
	Tier     int        `json:"tier,omitempty"`
	User     *Submitter `json:"user,omitempty"`
}

// NewVotePayload builds the vote:new payload from an accepted vote
func NewVotePayload(v *Vote) VoteReceivedPayload {
	return VoteReceivedPayload{Side: v.Side, Credits: v.Credits, User: v.User, Ts: v.Timestamp}
}

// NewSpamPayload builds the spam:new payload from an accepted spam event
func NewSpamPayload(s *SpamEvent) SpamReceivedPayload {
	return SpamReceivedPayload{Side: s.Side, Tier: s.Tier, User: s.User, Ts: s.Timestamp}
}

// NewUpdatePayload builds the prompt:update payload from the round's current fields
func NewUpdatePayload(r *Round) RoundUpdatedPayload {
	text := r.Text
	endsAt := r.EndsAt
	return RoundUpdatedPayload{Text: &text, EndsAt: &endsAt}
}

// NewRevealPayload builds the prompt:reveal payload from a settlement
func NewRevealPayload(s *Settlement) RoundRevealedPayload {
	return RoundRevealedPayload{
		WinnerSide:  s.WinnerSide,
		BullCredits: s.BullCredits,
		BearCredits: s.BearCredits,
		BullPct:     s.BullPct,
		BearPct:     s.BearPct,
	}
}
