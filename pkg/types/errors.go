package types

import "errors"

// Caller-facing error taxonomy. Every error returned by the round controller
// wraps exactly one of these.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrRoundNotFound     = errors.New("no active prompt found")
	ErrRoundNotAccepting = errors.New("prompt is not accepting input")
	ErrInternal          = errors.New("internal error")
)

// ErrorKind is the closed set of failure categories
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalidInput
	KindRateLimited
	KindRoundNotFound
	KindRoundNotAccepting
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindRoundNotFound:
		return "round_not_found"
	case KindRoundNotAccepting:
		return "round_not_accepting_input"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything outside the taxonomy is internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrRoundNotFound):
		return KindRoundNotFound
	case errors.Is(err, ErrRoundNotAccepting):
		return KindRoundNotAccepting
	default:
		return KindInternal
	}
}
