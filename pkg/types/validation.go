package types

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var streamIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

const (
	maxStreamIDLength = 100
	maxTextLength     = 500
	maxNameLength     = 100
)

// IsValidStreamID checks the room key format: 1-100 characters, alphanumeric plus _ . : -
func IsValidStreamID(streamID string) bool {
	if len(streamID) < 1 || len(streamID) > maxStreamIDLength {
		return false
	}
	return streamIDRegex.MatchString(streamID)
}

// IsValidSide checks membership in {bull, bear}
func IsValidSide(side Side) bool {
	switch side {
	case SideBull, SideBear:
		return true
	default:
		return false
	}
}

// IsValidTier checks membership in {1, 2, 3}
func IsValidTier(tier int) bool {
	return tier >= 1 && tier <= 3
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateStreamID returns ErrInvalidInput for a malformed stream id
func ValidateStreamID(streamID string) error {
	if !IsValidStreamID(streamID) {
		return invalid("streamId is required and must be 1-%d characters of [a-zA-Z0-9_.:-]", maxStreamIDLength)
	}
	return nil
}

func validateText(text string) error {
	if len(text) == 0 {
		return invalid("text is required and must be a non-empty string")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return invalid("text must be at most %d characters", maxTextLength)
	}
	return nil
}

func validateSubmitter(user Submitter) error {
	if user.Name == "" {
		return invalid("user.name is required")
	}
	if utf8.RuneCountInString(user.Name) > maxNameLength {
		return invalid("user.name must be at most %d characters", maxNameLength)
	}
	return nil
}

// Validate checks a normalized start request
func (r *StartRequest) Validate() error {
	if err := ValidateStreamID(r.StreamID); err != nil {
		return err
	}
	if err := validateText(r.Text); err != nil {
		return err
	}
	if r.DurationSec < MinDurationSec {
		return invalid("durationSec is required and must be at least %d seconds", MinDurationSec)
	}
	if r.DurationSec > MaxDurationSec {
		return invalid("durationSec must be at most %d seconds", MaxDurationSec)
	}
	return nil
}

// Validate checks a normalized update request; at least one field must be set
func (r *UpdateRequest) Validate() error {
	if err := ValidateStreamID(r.StreamID); err != nil {
		return err
	}
	if r.Text == nil && r.ExtendSec == nil {
		return invalid("at least one of text or extendSec is required")
	}
	if r.Text != nil {
		if err := validateText(*r.Text); err != nil {
			return err
		}
	}
	if r.ExtendSec != nil && *r.ExtendSec < 1 {
		return invalid("extendSec must be a positive number if provided")
	}
	if r.ExtendSec != nil && *r.ExtendSec > MaxExtendSec {
		return invalid("extendSec must be at most %d seconds", MaxExtendSec)
	}
	return nil
}

// Validate checks a normalized vote request
func (r *VoteRequest) Validate() error {
	if err := ValidateStreamID(r.StreamID); err != nil {
		return err
	}
	if !IsValidSide(r.Side) {
		return invalid(`side must be either "bull" or "bear"`)
	}
	if r.Credits < 1 {
		return invalid("credits must be a positive integer")
	}
	if r.Credits > MaxVoteCredits {
		return invalid("credits must be at most %d", MaxVoteCredits)
	}
	return validateSubmitter(r.User)
}

// Validate checks a normalized spam request
func (r *SpamRequest) Validate() error {
	if err := ValidateStreamID(r.StreamID); err != nil {
		return err
	}
	if !IsValidSide(r.Side) {
		return invalid(`side must be either "bull" or "bear"`)
	}
	if !IsValidTier(r.Tier) {
		return invalid("tier must be 1, 2, or 3")
	}
	return validateSubmitter(r.User)
}
