package router

import (
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"bullmeter/internal/logger"
	"bullmeter/pkg/interfaces"
	"bullmeter/pkg/types"
)

const (
	DefaultVoteLimit = 10
	DefaultSpamLimit = 5

	spamKeySuffix  = "_spam"
	unknownAddress = "unknown"
)

// Policy holds the per-address admission limits, per rate-limit window
type Policy struct {
	VoteLimit int
	SpamLimit int
}

// DefaultPolicy returns 10 votes and 5 spam reactions per second per address
func DefaultPolicy() Policy {
	return Policy{VoteLimit: DefaultVoteLimit, SpamLimit: DefaultSpamLimit}
}

// Router implements interfaces.RoundController: validate, rate limit, mutate
// the store, then publish the matching room event.
type Router struct {
	store       interfaces.RoundStore
	broadcaster interfaces.Broadcaster
	rateLimiter *RateLimiter
	policy      Policy
	log         *logger.Logger

	// commitMu spans the store mutation and its publish so room events
	// leave in acceptance order
	commitMu deadlock.Mutex
}

// NewRouter wires a controller. A nil limiter gets the default one.
func NewRouter(store interfaces.RoundStore, broadcaster interfaces.Broadcaster, rateLimiter *RateLimiter, policy Policy, log *logger.Logger) *Router {
	if rateLimiter == nil {
		rateLimiter = NewRateLimiter()
	}
	if policy.VoteLimit <= 0 {
		policy.VoteLimit = DefaultVoteLimit
	}
	if policy.SpamLimit <= 0 {
		policy.SpamLimit = DefaultSpamLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		store:       store,
		broadcaster: broadcaster,
		rateLimiter: rateLimiter,
		policy:      policy,
		log:         log,
	}
}

// RateLimiter exposes the limiter so the sweeper can run its cleanup
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// Start opens a round and announces it to the stream room
func (r *Router) Start(req *types.StartRequest) (round *types.Round, err error) {
	defer r.recoverInternal("start", &err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	round, err = r.store.StartRound(req)
	if err != nil {
		return nil, err
	}
	r.publish(round.StreamID, types.EventRoundStarted, round.Summary())
	return round, nil
}

// Update changes the round text and/or deadline and announces the new values
func (r *Router) Update(req *types.UpdateRequest) (round *types.Round, err error) {
	defer r.recoverInternal("update", &err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	round, err = r.store.UpdateRound(req)
	if err != nil {
		return nil, err
	}
	r.publish(round.StreamID, types.EventRoundUpdated, types.NewUpdatePayload(round))
	return round, nil
}

// End closes the round early; overlays receive the re-stamped deadline
func (r *Router) End(streamID string) (round *types.Round, err error) {
	defer r.recoverInternal("end", &err)

	if err := checkStreamID(streamID); err != nil {
		return nil, err
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	round, err = r.store.EndRound(streamID)
	if err != nil {
		return nil, err
	}
	r.publish(round.StreamID, types.EventRoundUpdated, types.NewUpdatePayload(round))
	return round, nil
}

// Vote admits a vote from req.SourceAddress. Only the vote itself is
// broadcast, never the running totals.
func (r *Router) Vote(req *types.VoteRequest) (vote *types.Vote, err error) {
	defer r.recoverInternal("vote", &err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	addr := sourceKey(req.SourceAddress)
	if !r.rateLimiter.Allow(addr, r.policy.VoteLimit) {
		r.log.Debugf("Vote rate limited: stream=%s addr=%s", req.StreamID, addr)
		return nil, ErrVoteRateLimited
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	vote, err = r.store.AddVote(req)
	if err != nil {
		return nil, err
	}
	r.publish(req.StreamID, types.EventVoteReceived, types.NewVotePayload(vote))
	return vote, nil
}

// Spam admits a spam reaction against its own per-address counter
func (r *Router) Spam(req *types.SpamRequest) (event *types.SpamEvent, err error) {
	defer r.recoverInternal("spam", &err)

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	addr := sourceKey(req.SourceAddress)
	if !r.rateLimiter.Allow(addr+spamKeySuffix, r.policy.SpamLimit) {
		r.log.Debugf("Spam rate limited: stream=%s addr=%s", req.StreamID, addr)
		return nil, ErrSpamRateLimited
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	event, err = r.store.AddSpam(req)
	if err != nil {
		return nil, err
	}
	r.publish(req.StreamID, types.EventSpamReceived, types.NewSpamPayload(event))
	return event, nil
}

// Reveal settles the round and broadcasts the outcome with raw totals
func (r *Router) Reveal(streamID string) (settlement *types.Settlement, err error) {
	defer r.recoverInternal("reveal", &err)

	if err := checkStreamID(streamID); err != nil {
		return nil, err
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	_, settlement, err = r.store.RevealRound(streamID)
	if err != nil {
		return nil, err
	}
	r.publish(streamID, types.EventRoundRevealed, types.NewRevealPayload(settlement))
	return settlement, nil
}

// State returns the public stats for the stream's round
func (r *Router) State(streamID string) (stats *types.PublicStats, err error) {
	defer r.recoverInternal("state", &err)

	if err := checkStreamID(streamID); err != nil {
		return nil, err
	}
	return r.store.PublicStats(streamID)
}

// LiveRounds lists every round currently accepting input
func (r *Router) LiveRounds() []*types.Round {
	return r.store.ListLiveRounds()
}

// publish hands the event to the broadcaster. The mutation is already
// committed, so a delivery failure is logged and not returned.
func (r *Router) publish(streamID, event string, payload interface{}) {
	if r.broadcaster == nil {
		return
	}
	if err := r.broadcaster.Publish(streamID, event, payload); err != nil {
		r.log.Warnf("Failed to publish %s to stream %s: %v", event, streamID, err)
	}
}

// recoverInternal turns panics and unclassified failures into ErrInternal
func (r *Router) recoverInternal(op string, err *error) {
	if rec := recover(); rec != nil {
		r.log.Errorf("Panic during %s: %v", op, rec)
		*err = fmt.Errorf("%w: %s failed", types.ErrInternal, op)
		return
	}
	if *err == nil || types.KindOf(*err) != types.KindInternal {
		return
	}
	r.log.Errorf("Internal error during %s: %v", op, *err)
	if !errors.Is(*err, types.ErrInternal) {
		*err = fmt.Errorf("%w: %s: %v", types.ErrInternal, op, *err)
	}
}

// checkStreamID separates a missing stream id from a malformed one
func checkStreamID(streamID string) error {
	if streamID == "" {
		return ErrMissingStreamID
	}
	return types.ValidateStreamID(streamID)
}

func sourceKey(addr string) string {
	if addr == "" {
		return unknownAddress
	}
	return addr
}
