package round

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"

	"bullmeter/internal/logger"
	"bullmeter/pkg/types"
)

// DefaultRetention is how long a revealed or superseded round is kept after creation
const DefaultRetention = time.Hour

// Store is the in-memory owner of every round and its vote and spam
// collections. One mutex serializes all operations; records handed to
// callers are copies.
type Store struct {
	current map[string]*types.Round // streamID -> current or most recent round
	rounds  map[string]*types.Round // roundID -> round, including superseded ones
	votes   map[string][]*types.Vote
	spam    map[string][]*types.SpamEvent

	retention time.Duration
	now       func() time.Time
	log       *logger.Logger
	mu        deadlock.Mutex
}

// NewStore creates an empty store. A non-positive retention uses DefaultRetention.
func NewStore(retention time.Duration, log *logger.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		current:   make(map[string]*types.Round),
		rounds:    make(map[string]*types.Round),
		votes:     make(map[string][]*types.Vote),
		spam:      make(map[string][]*types.SpamEvent),
		retention: retention,
		now:       time.Now,
		log:       log,
	}
}

// SetClock replaces the wall clock, for tests
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// StartRound installs a new live round for the stream. A round still live on
// the same stream is ended first without settlement.
func (s *Store) StartRound(req *types.StartRequest) (*types.Round, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, exists := s.current[req.StreamID]; exists {
		s.expireLocked(prev, now)
		if prev.Status == types.StatusLive {
			prev.Status = types.StatusEnded
			prev.EndsAt = now
			s.log.Infof("Round superseded: stream=%s id=%s", prev.StreamID, prev.ID)
		}
	}

	if err := s.checkNoLiveLocked(req.StreamID); err != nil {
		return nil, err
	}

	round := &types.Round{
		ID:             uuid.New().String(),
		StreamID:       req.StreamID,
		Text:           req.Text,
		Status:         types.StatusLive,
		StartedAt:      now,
		EndsAt:         now.Add(time.Duration(req.DurationSec) * time.Second),
		Mode:           req.Mode,
		MinVoteCredits: req.MinVoteCredits,
		SpamCreditCost: req.SpamCreditCost,
		CreatedAt:      now,
		HostID:         req.HostID,
		GuestAddr:      req.GuestAddr,
	}

	s.current[round.StreamID] = round
	s.rounds[round.ID] = round
	s.votes[round.ID] = []*types.Vote{}
	s.spam[round.ID] = []*types.SpamEvent{}

	s.log.Infof("Round started: stream=%s id=%s duration=%ds mode=%s", round.StreamID, round.ID, req.DurationSec, round.Mode)
	return copyRound(round), nil
}

// UpdateRound replaces the text and/or pushes the deadline. The extension is
// added to the current deadline, even one already in the past.
func (s *Store) UpdateRound(req *types.UpdateRequest) (*types.Round, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[req.StreamID]
	if !exists {
		return nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, req.StreamID)
	}

	if req.Text != nil {
		round.Text = *req.Text
	}
	if req.ExtendSec != nil {
		round.EndsAt = round.EndsAt.Add(time.Duration(*req.ExtendSec) * time.Second)
	}
	s.expireLocked(round, s.now())

	s.log.Infof("Round updated: stream=%s id=%s endsAt=%s", round.StreamID, round.ID, round.EndsAt.Format(time.RFC3339))
	return copyRound(round), nil
}

// EndRound closes the stream's round and stamps the deadline to now. Calling
// it again re-stamps the deadline. Revealed and settled rounds are returned
// unchanged rather than moved back to ended, so a reveal is never undone.
func (s *Store) EndRound(streamID string) (*types.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[streamID]
	if !exists {
		return nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, streamID)
	}

	if !round.Status.IsTerminal() {
		round.Status = types.StatusEnded
		round.EndsAt = s.now()
		s.log.Infof("Round ended: stream=%s id=%s", round.StreamID, round.ID)
	}
	return copyRound(round), nil
}

// AddVote records a vote and adds its credits to the matching side
func (s *Store) AddVote(req *types.VoteRequest) (*types.Vote, error) {
	req.Normalize()
	if req.Credits < 1 {
		return nil, ErrNonPositiveVote
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.acceptingLocked(req.StreamID)
	if err != nil {
		return nil, err
	}

	vote := &types.Vote{
		ID:        uuid.New().String(),
		PromptID:  round.ID,
		UserID:    req.UserID,
		Side:      req.Side,
		Credits:   req.Credits,
		User:      req.User,
		Timestamp: s.now(),
		IPAddress: req.SourceAddress,
	}

	if int64(vote.Credits) > math.MaxInt64-(round.BullCredits+round.BearCredits) {
		return nil, fmt.Errorf("%w: stream %s round %s", ErrCreditOverflow, round.StreamID, round.ID)
	}

	switch vote.Side {
	case types.SideBull:
		round.BullCredits += int64(vote.Credits)
	case types.SideBear:
		round.BearCredits += int64(vote.Credits)
	default:
		return nil, fmt.Errorf("%w: unknown side %q", types.ErrInvalidInput, vote.Side)
	}
	s.votes[round.ID] = append(s.votes[round.ID], vote)

	s.log.Debugf("Vote accepted: stream=%s round=%s side=%s credits=%d", round.StreamID, round.ID, vote.Side, vote.Credits)
	copied := *vote
	return &copied, nil
}

// AddSpam records a spam reaction. Credit totals are not touched.
func (s *Store) AddSpam(req *types.SpamRequest) (*types.SpamEvent, error) {
	req.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.acceptingLocked(req.StreamID)
	if err != nil {
		return nil, err
	}

	event := &types.SpamEvent{
		ID:        uuid.New().String(),
		PromptID:  round.ID,
		UserID:    req.UserID,
		Side:      req.Side,
		Tier:      req.Tier,
		User:      req.User,
		Timestamp: s.now(),
		IPAddress: req.SourceAddress,
	}
	s.spam[round.ID] = append(s.spam[round.ID], event)

	s.log.Debugf("Spam accepted: stream=%s round=%s side=%s tier=%d", round.StreamID, round.ID, event.Side, event.Tier)
	copied := *event
	return &copied, nil
}

// RevealRound marks the stream's round revealed and computes the settlement.
// It is allowed from any status; revealing again yields the same result.
func (s *Store) RevealRound(streamID string) (*types.Round, *types.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[streamID]
	if !exists {
		return nil, nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, streamID)
	}

	if err := s.checkTalliesLocked(round); err != nil {
		s.log.Errorf("Reveal refused: stream=%s id=%s err=%v", round.StreamID, round.ID, err)
		return nil, nil, err
	}

	if round.Status != types.StatusSettled {
		round.Status = types.StatusRevealed
	}
	settlement := Settle(round.ID, round.BullCredits, round.BearCredits)

	s.log.Infof("Round revealed: stream=%s id=%s winner=%s bull=%d bear=%d",
		round.StreamID, round.ID, settlement.WinnerSide, settlement.BullCredits, settlement.BearCredits)
	return copyRound(round), settlement, nil
}

// GetRound returns the stream's current or most recent round
func (s *Store) GetRound(streamID string) (*types.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[streamID]
	if !exists {
		return nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, streamID)
	}
	s.expireLocked(round, s.now())
	return copyRound(round), nil
}

// GetRoundByID finds any retained round, superseded ones included
func (s *Store) GetRoundByID(roundID string) (*types.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.rounds[roundID]
	if !exists {
		return nil, fmt.Errorf("%w: id %s", types.ErrRoundNotFound, roundID)
	}
	s.expireLocked(round, s.now())
	return copyRound(round), nil
}

// LiveRound returns the stream's round only while it is still live
func (s *Store) LiveRound(streamID string) (*types.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[streamID]
	if !exists {
		return nil, false
	}
	s.expireLocked(round, s.now())
	if round.Status != types.StatusLive {
		return nil, false
	}
	return copyRound(round), true
}

// GetVotesFor returns the round's votes in acceptance order
func (s *Store) GetVotesFor(roundID string) []*types.Vote {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes := s.votes[roundID]
	result := make([]*types.Vote, 0, len(votes))
	for _, v := range votes {
		copied := *v
		result = append(result, &copied)
	}
	return result
}

// GetSpamFor returns the round's spam events in acceptance order
func (s *Store) GetSpamFor(roundID string) []*types.SpamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.spam[roundID]
	result := make([]*types.SpamEvent, 0, len(events))
	for _, e := range events {
		copied := *e
		result = append(result, &copied)
	}
	return result
}

// ListLiveRounds returns every live round, oldest start first
func (s *Store) ListLiveRounds() []*types.Round {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var live []*types.Round
	for _, round := range s.current {
		s.expireLocked(round, now)
		if round.Status == types.StatusLive {
			live = append(live, copyRound(round))
		}
	}
	sortByStart(live)
	return live
}

// ListRounds returns every retained round, oldest start first
func (s *Store) ListRounds() []*types.Round {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	all := make([]*types.Round, 0, len(s.rounds))
	for _, round := range s.rounds {
		s.expireLocked(round, now)
		all = append(all, copyRound(round))
	}
	sortByStart(all)
	return all
}

// PublicStats returns the read model for the stream's round. Credit totals
// are included only once the round is revealed.
func (s *Store) PublicStats(streamID string) (*types.PublicStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, exists := s.current[streamID]
	if !exists {
		return nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, streamID)
	}
	s.expireLocked(round, s.now())

	stats := &types.PublicStats{
		ID:        round.ID,
		Text:      round.Text,
		Status:    round.Status,
		StartedAt: round.StartedAt,
		EndsAt:    round.EndsAt,
		Mode:      round.Mode,
		VoteCount: len(s.votes[round.ID]),
		SpamCount: len(s.spam[round.ID]),
	}
	if round.Status.IsTerminal() {
		bull, bear := round.BullCredits, round.BearCredits
		stats.BullCredits = &bull
		stats.BearCredits = &bear
	}
	return stats, nil
}

// SweepExpired ends live rounds past their deadline and purges revealed or
// superseded rounds older than the retention window with their votes and spam.
func (s *Store) SweepExpired() types.SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var result types.SweepResult

	for id, round := range s.rounds {
		if s.expireLocked(round, now) {
			result.Expired++
		}

		superseded := s.current[round.StreamID] != round
		if !round.Status.IsTerminal() && !superseded {
			continue
		}
		if now.Sub(round.CreatedAt) <= s.retention {
			continue
		}

		delete(s.rounds, id)
		delete(s.votes, id)
		delete(s.spam, id)
		if !superseded {
			delete(s.current, round.StreamID)
		}
		result.Purged++
	}

	if result.Expired > 0 || result.Purged > 0 {
		s.log.Infof("Sweep complete: expired=%d purged=%d", result.Expired, result.Purged)
	}
	return result
}

// Settle computes the outcome for the given totals. Percentages are rounded
// half away from zero independently, so they may not sum to 100. Ties go to bear.
func Settle(roundID string, bull, bear int64) *types.Settlement {
	total := bull + bear
	winner := types.SideBear
	if bull > bear {
		winner = types.SideBull
	}
	return &types.Settlement{
		PromptID:     roundID,
		WinnerSide:   winner,
		BullCredits:  bull,
		BearCredits:  bear,
		BullPct:      percentOf(bull, total),
		BearPct:      percentOf(bear, total),
		TotalCredits: total,
	}
}

func percentOf(part, total int64) int {
	if total == 0 {
		return 0
	}
	pct := decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(total)).
		Round(0)
	return int(pct.IntPart())
}

// expireLocked moves a live round past its deadline to ended
func (s *Store) expireLocked(round *types.Round, now time.Time) bool {
	if round.Status == types.StatusLive && now.After(round.EndsAt) {
		round.Status = types.StatusEnded
		s.log.Infof("Round expired: stream=%s id=%s", round.StreamID, round.ID)
		return true
	}
	return false
}

func (s *Store) acceptingLocked(streamID string) (*types.Round, error) {
	round, exists := s.current[streamID]
	if !exists {
		return nil, fmt.Errorf("%w: stream %s", types.ErrRoundNotFound, streamID)
	}
	s.expireLocked(round, s.now())
	if round.Status != types.StatusLive {
		return nil, fmt.Errorf("%w: stream %s status %s", ErrNotLive, streamID, round.Status)
	}
	return round, nil
}

func (s *Store) checkTalliesLocked(round *types.Round) error {
	var bull, bear int64
	for _, v := range s.votes[round.ID] {
		if v.Side == types.SideBull {
			bull += int64(v.Credits)
		} else {
			bear += int64(v.Credits)
		}
	}
	if bull != round.BullCredits || bear != round.BearCredits {
		return fmt.Errorf("%w: round %s", ErrTallyMismatch, round.ID)
	}
	return nil
}

// checkNoLiveLocked guards the one-live-round-per-stream invariant before a start
func (s *Store) checkNoLiveLocked(streamID string) error {
	for _, round := range s.rounds {
		if round.StreamID == streamID && round.Status == types.StatusLive {
			return fmt.Errorf("%w: stream %s round %s", ErrMultipleLive, streamID, round.ID)
		}
	}
	return nil
}

func copyRound(r *types.Round) *types.Round {
	copied := *r
	return &copied
}

func sortByStart(rounds []*types.Round) {
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].StartedAt.Equal(rounds[j].StartedAt) {
			return rounds[i].StreamID < rounds[j].StreamID
		}
		return rounds[i].StartedAt.Before(rounds[j].StartedAt)
	})
}
