package round

import (
	"fmt"

	"bullmeter/pkg/types"
)

// Store errors. Each wraps one caller-facing sentinel from pkg/types.
var (
	ErrNotLive         = fmt.Errorf("%w: prompt is not live", types.ErrRoundNotAccepting)
	ErrNonPositiveVote = fmt.Errorf("%w: credits must be a positive integer", types.ErrInvalidInput)
	ErrCreditOverflow  = fmt.Errorf("%w: credit totals would overflow", types.ErrInvalidInput)
	ErrTallyMismatch   = fmt.Errorf("%w: credit totals do not match accepted votes", types.ErrInternal)
	ErrMultipleLive    = fmt.Errorf("%w: more than one live prompt for stream", types.ErrInternal)
)
