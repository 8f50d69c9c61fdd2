package interfaces

import (
	"bullmeter/pkg/types"
)

// RoundStore owns every round, vote and spam collection. Returned records are
// copies; callers cannot mutate store state through them.
type RoundStore interface {
	StartRound(req *types.StartRequest) (*types.Round, error)
	UpdateRound(req *types.UpdateRequest) (*types.Round, error)
	EndRound(streamID string) (*types.Round, error)
	AddVote(req *types.VoteRequest) (*types.Vote, error)
	AddSpam(req *types.SpamRequest) (*types.SpamEvent, error)
	RevealRound(streamID string) (*types.Round, *types.Settlement, error)

	// GetRound returns the stream's current or most recent round
	GetRound(streamID string) (*types.Round, error)
	GetRoundByID(roundID string) (*types.Round, error)
	GetVotesFor(roundID string) []*types.Vote
	GetSpamFor(roundID string) []*types.SpamEvent
	ListLiveRounds() []*types.Round
	ListRounds() []*types.Round
	PublicStats(streamID string) (*types.PublicStats, error)

	// LiveRound reports the stream's round only while it is still live
	LiveRound(streamID string) (*types.Round, bool)

	SweepExpired() types.SweepResult
}
