package interfaces

import (
	"bullmeter/pkg/types"
)

// RoundController is the call-in surface for the HTTP and socket layers.
// Every returned error wraps exactly one of the types.Err* sentinels.
type RoundController interface {
	Start(req *types.StartRequest) (*types.Round, error)
	Update(req *types.UpdateRequest) (*types.Round, error)
	End(streamID string) (*types.Round, error)
	Vote(req *types.VoteRequest) (*types.Vote, error)
	Spam(req *types.SpamRequest) (*types.SpamEvent, error)
	Reveal(streamID string) (*types.Settlement, error)
	State(streamID string) (*types.PublicStats, error)
	LiveRounds() []*types.Round
}
