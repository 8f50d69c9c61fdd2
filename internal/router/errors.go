package router

import (
	"fmt"

	"bullmeter/pkg/types"
)

// Router errors. Each wraps one caller-facing sentinel from pkg/types.
var (
	ErrVoteRateLimited = fmt.Errorf("%w: too many votes", types.ErrRateLimited)
	ErrSpamRateLimited = fmt.Errorf("%w: too many spam reactions", types.ErrRateLimited)
	ErrMissingStreamID = fmt.Errorf("%w: streamId is required", types.ErrInvalidInput)
)
