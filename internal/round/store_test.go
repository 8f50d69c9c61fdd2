package round

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"bullmeter/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewStore(time.Hour, nil)
	store.SetClock(clock.Now)
	return store, clock
}

func startRound(t *testing.T, s *Store, streamID string, durationSec int) *types.Round {
	t.Helper()
	round, err := s.StartRound(&types.StartRequest{StreamID: streamID, Text: "BTC up?", DurationSec: durationSec, Mode: "balloons"})
	if err != nil {
		t.Fatalf("StartRound failed: %v", err)
	}
	return round
}

func vote(t *testing.T, s *Store, streamID string, side types.Side, credits int) {
	t.Helper()
	_, err := s.AddVote(&types.VoteRequest{StreamID: streamID, Side: side, Credits: credits, User: types.Submitter{Name: "alice"}, SourceAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("AddVote failed: %v", err)
	}
}

func TestStore_StartRound(t *testing.T) {
	store, clock := newTestStore(t)

	round := startRound(t, store, "s1", 30)

	if round.Status != types.StatusLive {
		t.Errorf("Expected status live, got %s", round.Status)
	}
	if !round.EndsAt.Equal(clock.Now().Add(30 * time.Second)) {
		t.Errorf("Expected endsAt now+30s, got %v", round.EndsAt)
	}
	if round.MinVoteCredits != types.DefaultMinVoteCredits || round.SpamCreditCost != types.DefaultSpamCreditCost {
		t.Errorf("Expected default credit settings, got %d/%d", round.MinVoteCredits, round.SpamCreditCost)
	}
	if round.HostID != types.DefaultHostID {
		t.Errorf("Expected default host id, got %s", round.HostID)
	}
	if round.ID == "" {
		t.Error("Expected round id to be generated")
	}
}

func TestStore_StartRoundRejectsInvalidInput(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.StartRound(&types.StartRequest{StreamID: "s1", Text: "   ", DurationSec: 30})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for blank text, got %v", err)
	}

	_, err = store.StartRound(&types.StartRequest{StreamID: "s1", Text: "q", DurationSec: 5})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for short duration, got %v", err)
	}

	_, err = store.StartRound(&types.StartRequest{StreamID: "s1", Text: "q", DurationSec: 10000000000})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for oversized duration, got %v", err)
	}
	if _, err := store.GetRound("s1"); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected no round installed after rejected starts, got %v", err)
	}
}

func TestStore_StartRoundWithMaxDuration(t *testing.T) {
	store, clock := newTestStore(t)

	round := startRound(t, store, "s1", types.MaxDurationSec)

	want := clock.Now().Add(time.Duration(types.MaxDurationSec) * time.Second)
	if !round.EndsAt.Equal(want) {
		t.Errorf("Expected endsAt %v, got %v", want, round.EndsAt)
	}
	if round.Status != types.StatusLive {
		t.Errorf("Expected status live, got %s", round.Status)
	}
}

func TestStore_UpdateRejectsOversizedExtension(t *testing.T) {
	store, _ := newTestStore(t)
	round := startRound(t, store, "s1", 30)

	extend := 10000000000
	_, err := store.UpdateRound(&types.UpdateRequest{StreamID: "s1", ExtendSec: &extend})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	current, _ := store.GetRound("s1")
	if !current.EndsAt.Equal(round.EndsAt) || current.Status != types.StatusLive {
		t.Errorf("Expected round untouched, got status=%s endsAt=%v", current.Status, current.EndsAt)
	}
}

func TestStore_StartSupersedesLiveRound(t *testing.T) {
	store, _ := newTestStore(t)

	first := startRound(t, store, "s1", 60)
	second, err := store.StartRound(&types.StartRequest{StreamID: "s1", Text: "ETH up?", DurationSec: 20, Mode: "fight"})
	if err != nil {
		t.Fatalf("Second StartRound failed: %v", err)
	}

	old, err := store.GetRoundByID(first.ID)
	if err != nil {
		t.Fatalf("Expected superseded round to be retained, got %v", err)
	}
	if old.Status != types.StatusEnded {
		t.Errorf("Expected superseded round ended, got %s", old.Status)
	}

	current, err := store.GetRound("s1")
	if err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if current.ID != second.ID || current.Text != "ETH up?" || current.Mode != "fight" || current.Status != types.StatusLive {
		t.Errorf("Expected new round fields intact, got %+v", current)
	}
}

func TestStore_AtMostOneLivePerStream(t *testing.T) {
	store, clock := newTestStore(t)
	rng := rand.New(rand.NewSource(42))
	streams := []string{"s1", "s2", "s3"}

	for i := 0; i < 500; i++ {
		streamID := streams[rng.Intn(len(streams))]
		switch rng.Intn(4) {
		case 0, 1:
			startRound(t, store, streamID, 10+rng.Intn(20))
		case 2:
			_, _ = store.EndRound(streamID)
		case 3:
			_, _, _ = store.RevealRound(streamID)
		}
		clock.Advance(time.Duration(rng.Intn(3000)) * time.Millisecond)

		live := map[string]int{}
		for _, r := range store.ListRounds() {
			if r.Status == types.StatusLive {
				live[r.StreamID]++
			}
		}
		for s, n := range live {
			if n > 1 {
				t.Fatalf("step %d: stream %s has %d live rounds", i, s, n)
			}
		}
	}
}

func TestStore_VoteOnNonLiveRound(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store, c *fakeClock)
	}{
		{"ended", func(s *Store, c *fakeClock) { _, _ = s.EndRound("s1") }},
		{"revealed", func(s *Store, c *fakeClock) { _, _, _ = s.RevealRound("s1") }},
		{"expired", func(s *Store, c *fakeClock) { c.Advance(31 * time.Second) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newTestStore(t)
			startRound(t, store, "s1", 30)
			vote(t, store, "s1", types.SideBull, 4)
			tt.setup(store, clock)

			_, err := store.AddVote(&types.VoteRequest{StreamID: "s1", Side: types.SideBull, Credits: 5, User: types.Submitter{Name: "bob"}})
			if !errors.Is(err, types.ErrRoundNotAccepting) {
				t.Fatalf("Expected ErrRoundNotAccepting, got %v", err)
			}
			_, err = store.AddSpam(&types.SpamRequest{StreamID: "s1", Side: types.SideBull, Tier: 1, User: types.Submitter{Name: "bob"}})
			if !errors.Is(err, types.ErrRoundNotAccepting) {
				t.Fatalf("Expected ErrRoundNotAccepting for spam, got %v", err)
			}

			_, settlement, err := store.RevealRound("s1")
			if err != nil {
				t.Fatalf("RevealRound failed: %v", err)
			}
			if settlement.BullCredits != 4 {
				t.Errorf("Expected totals untouched at 4, got %d", settlement.BullCredits)
			}
		})
	}
}

func TestStore_VoteWithoutRound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.AddVote(&types.VoteRequest{StreamID: "nope", Side: types.SideBull, Credits: 1, User: types.Submitter{Name: "a"}})
	if !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound, got %v", err)
	}
	if _, _, err := store.RevealRound("nope"); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound from reveal, got %v", err)
	}
	if _, err := store.EndRound("nope"); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound from end, got %v", err)
	}
}

func TestStore_VoteRejectsCreditOverflow(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 60)

	vote(t, store, "s1", types.SideBull, math.MaxInt64)
	_, err := store.AddVote(&types.VoteRequest{StreamID: "s1", Side: types.SideBear, Credits: 1, User: types.Submitter{Name: "bob"}})
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for overflowing vote, got %v", err)
	}
	if !errors.Is(err, ErrCreditOverflow) {
		t.Errorf("Expected ErrCreditOverflow, got %v", err)
	}

	_, settlement, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("RevealRound failed: %v", err)
	}
	if settlement.BearCredits != 0 || settlement.TotalCredits != math.MaxInt64 {
		t.Errorf("Expected rejected vote excluded, got bear=%d total=%d", settlement.BearCredits, settlement.TotalCredits)
	}
	if settlement.BullPct != 100 || settlement.BearPct != 0 || settlement.WinnerSide != types.SideBull {
		t.Errorf("Expected bull 100/0, got %s %d/%d", settlement.WinnerSide, settlement.BullPct, settlement.BearPct)
	}
	if got := len(store.GetVotesFor(settlement.PromptID)); got != 1 {
		t.Errorf("Expected 1 recorded vote, got %d", got)
	}
}

func TestStore_TotalsAreSumOfVotes(t *testing.T) {
	credits := []struct {
		side    types.Side
		credits int
	}{
		{types.SideBull, 3}, {types.SideBear, 7}, {types.SideBull, 1},
		{types.SideBear, 2}, {types.SideBull, 10}, {types.SideBear, 5},
	}

	var results []*types.Settlement
	for seed := int64(0); seed < 5; seed++ {
		store, _ := newTestStore(t)
		startRound(t, store, "s1", 60)

		order := rand.New(rand.NewSource(seed)).Perm(len(credits))
		for _, i := range order {
			vote(t, store, "s1", credits[i].side, credits[i].credits)
		}

		_, settlement, err := store.RevealRound("s1")
		if err != nil {
			t.Fatalf("RevealRound failed: %v", err)
		}
		results = append(results, settlement)
	}

	for i, s := range results {
		if s.BullCredits != 14 || s.BearCredits != 14 {
			t.Errorf("run %d: expected 14/14, got %d/%d", i, s.BullCredits, s.BearCredits)
		}
		if s.WinnerSide != types.SideBear {
			t.Errorf("run %d: expected tie to resolve to bear, got %s", i, s.WinnerSide)
		}
	}
}

func TestStore_SpamDoesNotTouchTotals(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 60)

	for i := 0; i < 3; i++ {
		if _, err := store.AddSpam(&types.SpamRequest{StreamID: "s1", Side: types.SideBull, Tier: 3, User: types.Submitter{Name: "spammer"}}); err != nil {
			t.Fatalf("AddSpam failed: %v", err)
		}
	}

	round, _ := store.GetRound("s1")
	if got := len(store.GetSpamFor(round.ID)); got != 3 {
		t.Errorf("Expected 3 spam events, got %d", got)
	}

	_, settlement, _ := store.RevealRound("s1")
	if settlement.BullCredits != 0 || settlement.BearCredits != 0 {
		t.Errorf("Expected spam to leave totals at zero, got %d/%d", settlement.BullCredits, settlement.BearCredits)
	}
}

func TestStore_RevealIsDeterministic(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 60)
	vote(t, store, "s1", types.SideBull, 2)
	vote(t, store, "s1", types.SideBear, 1)

	_, first, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("First reveal failed: %v", err)
	}
	_, second, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("Second reveal failed: %v", err)
	}
	if *first != *second {
		t.Errorf("Expected identical settlements, got %+v and %+v", first, second)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		bull, bear       int64
		bullPct, bearPct int
		winner           types.Side
	}{
		{2, 1, 67, 33, types.SideBull},
		{0, 0, 0, 0, types.SideBear},
		{5, 5, 50, 50, types.SideBear},
		{3, 1, 75, 25, types.SideBull},
		{1, 7, 13, 88, types.SideBear},
		{1, 2, 33, 67, types.SideBear},
		{0, 4, 0, 100, types.SideBear},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.bull, tt.bear), func(t *testing.T) {
			s := Settle("r1", tt.bull, tt.bear)
			if s.BullPct != tt.bullPct || s.BearPct != tt.bearPct {
				t.Errorf("Expected %d/%d, got %d/%d", tt.bullPct, tt.bearPct, s.BullPct, s.BearPct)
			}
			if s.WinnerSide != tt.winner {
				t.Errorf("Expected winner %s, got %s", tt.winner, s.WinnerSide)
			}
			if s.TotalCredits != tt.bull+tt.bear || s.PromptID != "r1" {
				t.Errorf("Expected total %d for r1, got %d for %s", tt.bull+tt.bear, s.TotalCredits, s.PromptID)
			}
		})
	}
}

func TestStore_ExtendPastDeadlineAddsToOldDeadline(t *testing.T) {
	store, clock := newTestStore(t)
	round := startRound(t, store, "s1", 10)
	oldEndsAt := round.EndsAt

	clock.Advance(25 * time.Second)

	extend := 60
	updated, err := store.UpdateRound(&types.UpdateRequest{StreamID: "s1", ExtendSec: &extend})
	if err != nil {
		t.Fatalf("UpdateRound failed: %v", err)
	}
	if !updated.EndsAt.Equal(oldEndsAt.Add(60 * time.Second)) {
		t.Errorf("Expected endsAt old+60s (%v), got %v", oldEndsAt.Add(60*time.Second), updated.EndsAt)
	}
	if updated.EndsAt.Equal(clock.Now().Add(60 * time.Second)) {
		t.Error("Extension must not be anchored to now")
	}
	if updated.Status != types.StatusLive {
		t.Errorf("Expected round still live after extension, got %s", updated.Status)
	}
}

func TestStore_UpdateText(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 30)

	text := "  SOL up?  "
	updated, err := store.UpdateRound(&types.UpdateRequest{StreamID: "s1", Text: &text})
	if err != nil {
		t.Fatalf("UpdateRound failed: %v", err)
	}
	if updated.Text != "SOL up?" {
		t.Errorf("Expected trimmed text, got %q", updated.Text)
	}

	if _, err := store.UpdateRound(&types.UpdateRequest{StreamID: "other", Text: &text}); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected ErrRoundNotFound, got %v", err)
	}
}

func TestStore_EndRoundIsIdempotent(t *testing.T) {
	store, clock := newTestStore(t)
	startRound(t, store, "s1", 30)

	first, err := store.EndRound("s1")
	if err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}
	clock.Advance(2 * time.Second)
	second, err := store.EndRound("s1")
	if err != nil {
		t.Fatalf("Second EndRound failed: %v", err)
	}

	if second.Status != types.StatusEnded {
		t.Errorf("Expected ended, got %s", second.Status)
	}
	if !second.EndsAt.Equal(first.EndsAt.Add(2 * time.Second)) {
		t.Errorf("Expected second end to re-stamp endsAt")
	}
}

func TestStore_EndRoundKeepsRevealedRound(t *testing.T) {
	store, clock := newTestStore(t)
	startRound(t, store, "s1", 30)
	vote(t, store, "s1", types.SideBull, 4)
	revealed, _, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("RevealRound failed: %v", err)
	}

	clock.Advance(5 * time.Second)
	ended, err := store.EndRound("s1")
	if err != nil {
		t.Fatalf("EndRound failed: %v", err)
	}
	if ended.Status != types.StatusRevealed {
		t.Errorf("Expected status to stay revealed, got %s", ended.Status)
	}
	if !ended.EndsAt.Equal(revealed.EndsAt) {
		t.Errorf("Expected endsAt unchanged, got %v want %v", ended.EndsAt, revealed.EndsAt)
	}
}

func TestStore_PublicStatsHidesTotalsUntilReveal(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 30)
	vote(t, store, "s1", types.SideBull, 6)
	_, _ = store.AddSpam(&types.SpamRequest{StreamID: "s1", Side: types.SideBear, Tier: 2, User: types.Submitter{Name: "x"}})

	stats, err := store.PublicStats("s1")
	if err != nil {
		t.Fatalf("PublicStats failed: %v", err)
	}
	if stats.BullCredits != nil || stats.BearCredits != nil {
		t.Error("Expected totals hidden while live")
	}
	if stats.VoteCount != 1 || stats.SpamCount != 1 {
		t.Errorf("Expected 1 vote and 1 spam, got %d/%d", stats.VoteCount, stats.SpamCount)
	}

	_, _ = store.EndRound("s1")
	stats, _ = store.PublicStats("s1")
	if stats.BullCredits != nil {
		t.Error("Expected totals hidden while ended")
	}

	_, _, _ = store.RevealRound("s1")
	stats, _ = store.PublicStats("s1")
	if stats.BullCredits == nil || *stats.BullCredits != 6 || *stats.BearCredits != 0 {
		t.Errorf("Expected revealed totals 6/0, got %+v", stats)
	}
}

func TestStore_EndToEndScenario(t *testing.T) {
	store, _ := newTestStore(t)

	startRound(t, store, "s1", 10)
	vote(t, store, "s1", types.SideBull, 3)
	vote(t, store, "s1", types.SideBear, 1)

	round, settlement, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("RevealRound failed: %v", err)
	}

	if settlement.BullCredits != 3 || settlement.BearCredits != 1 {
		t.Errorf("Expected 3/1, got %d/%d", settlement.BullCredits, settlement.BearCredits)
	}
	if settlement.BullPct != 75 || settlement.BearPct != 25 {
		t.Errorf("Expected 75/25, got %d/%d", settlement.BullPct, settlement.BearPct)
	}
	if settlement.WinnerSide != types.SideBull {
		t.Errorf("Expected bull, got %s", settlement.WinnerSide)
	}
	if round.Status != types.StatusRevealed || settlement.PromptID != round.ID {
		t.Errorf("Expected revealed round %s, got %s/%s", settlement.PromptID, round.Status, round.ID)
	}
}

func TestStore_RevealRefusesOnTallyMismatch(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 30)
	vote(t, store, "s1", types.SideBull, 2)

	store.mu.Lock()
	store.current["s1"].BullCredits = 99
	store.mu.Unlock()

	_, _, err := store.RevealRound("s1")
	if !errors.Is(err, types.ErrInternal) {
		t.Fatalf("Expected ErrInternal, got %v", err)
	}

	round, _ := store.GetRound("s1")
	if round.Status == types.StatusRevealed {
		t.Error("Round must not be marked revealed after a failed invariant check")
	}
}

func TestStore_SweepExpired(t *testing.T) {
	store, clock := newTestStore(t)

	live := startRound(t, store, "s1", 10)
	revealed := startRound(t, store, "s2", 10)
	vote(t, store, "s2", types.SideBear, 2)
	_, _, _ = store.RevealRound("s2")

	clock.Advance(10*time.Second + time.Millisecond)
	result := store.SweepExpired()
	if result.Expired != 1 {
		t.Errorf("Expected 1 expired round, got %d", result.Expired)
	}

	got, err := store.GetRoundByID(live.ID)
	if err != nil || got.Status != types.StatusEnded {
		t.Errorf("Expected live round ended after sweep, got %v / %v", got, err)
	}

	clock.Advance(time.Hour)
	result = store.SweepExpired()
	if result.Purged != 1 {
		t.Errorf("Expected 1 purged round, got %d", result.Purged)
	}
	if _, err := store.GetRound("s2"); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected revealed round purged, got %v", err)
	}
	if len(store.GetVotesFor(revealed.ID)) != 0 {
		t.Error("Expected votes purged with the round")
	}
	if _, err := store.GetRound("s1"); err != nil {
		t.Errorf("Expected ended-but-unrevealed round retained, got %v", err)
	}
}

func TestStore_SweepPurgesSupersededRounds(t *testing.T) {
	store, clock := newTestStore(t)

	first := startRound(t, store, "s1", 30)
	vote(t, store, "s1", types.SideBull, 1)
	clock.Advance(2 * time.Hour)
	second := startRound(t, store, "s1", 30)

	result := store.SweepExpired()
	if result.Purged != 1 {
		t.Errorf("Expected superseded round purged, got %d", result.Purged)
	}
	if _, err := store.GetRoundByID(first.ID); !errors.Is(err, types.ErrRoundNotFound) {
		t.Errorf("Expected superseded round gone, got %v", err)
	}
	if _, err := store.GetRoundByID(second.ID); err != nil {
		t.Errorf("Expected current round retained, got %v", err)
	}
}

func TestStore_ListLiveRounds(t *testing.T) {
	store, clock := newTestStore(t)

	startRound(t, store, "a", 10)
	clock.Advance(time.Second)
	startRound(t, store, "b", 60)
	clock.Advance(time.Second)
	startRound(t, store, "c", 60)
	_, _ = store.EndRound("c")

	clock.Advance(9 * time.Second)
	live := store.ListLiveRounds()
	if len(live) != 1 || live[0].StreamID != "b" {
		t.Errorf("Expected only b live, got %d rounds", len(live))
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store, _ := newTestStore(t)
	round := startRound(t, store, "s1", 30)

	round.Text = "tampered"
	round.Status = types.StatusRevealed

	current, _ := store.GetRound("s1")
	if current.Text != "BTC up?" || current.Status != types.StatusLive {
		t.Errorf("Store state changed through a returned record: %+v", current)
	}
}

func TestStore_ConcurrentVotes(t *testing.T) {
	store, _ := newTestStore(t)
	startRound(t, store, "s1", 60)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := types.SideBull
			if i%2 == 0 {
				side = types.SideBear
			}
			_, _ = store.AddVote(&types.VoteRequest{StreamID: "s1", Side: side, Credits: 2, User: types.Submitter{Name: "u"}})
		}(i)
	}
	wg.Wait()

	_, settlement, err := store.RevealRound("s1")
	if err != nil {
		t.Fatalf("RevealRound failed: %v", err)
	}
	if settlement.BullCredits != 50 || settlement.BearCredits != 50 {
		t.Errorf("Expected 50/50, got %d/%d", settlement.BullCredits, settlement.BearCredits)
	}
}
