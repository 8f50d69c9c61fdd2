package jobs

import (
	"sync"
	"sync/atomic"
	"time"

	"bullmeter/internal/logger"
	"bullmeter/pkg/types"
)

// RoundSweeper expires overdue rounds and purges old ones
type RoundSweeper interface {
	SweepExpired() types.SweepResult
}

// KeyCleaner drops idle rate-limit keys
type KeyCleaner interface {
	Cleanup() int
}

// Sweeper runs the round sweep and rate-limit cleanup on their own tickers
type Sweeper struct {
	rounds          RoundSweeper
	limiter         KeyCleaner
	sweepInterval   time.Duration
	cleanupInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	inFlight        atomic.Bool
	log             *logger.Logger
}

// NewSweeper creates a sweeper. A nil limiter disables the cleanup ticker.
func NewSweeper(rounds RoundSweeper, limiter KeyCleaner, sweepInterval, cleanupInterval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		rounds:          rounds,
		limiter:         limiter,
		sweepInterval:   sweepInterval,
		cleanupInterval: cleanupInterval,
		stopChan:        make(chan struct{}),
		log:             log,
	}
}

// Start blocks running both loops until Stop is called
func (s *Sweeper) Start() {
	s.log.Infof("[Sweeper] Starting round sweep (interval: %v, limiter cleanup: %v)", s.sweepInterval, s.cleanupInterval)

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	var cleanupC <-chan time.Time
	if s.limiter != nil && s.cleanupInterval > 0 {
		cleanup := time.NewTicker(s.cleanupInterval)
		defer cleanup.Stop()
		cleanupC = cleanup.C
	}

	for {
		select {
		case <-sweep.C:
			s.RunOnce()
		case <-cleanupC:
			if removed := s.limiter.Cleanup(); removed > 0 {
				s.log.Debugf("[Sweeper] Removed %d idle rate-limit keys", removed)
			}
		case <-s.stopChan:
			s.log.Infof("[Sweeper] Stopping round sweep")
			return
		}
	}
}

// Stop ends the loop; safe to call more than once
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunOnce performs a single sweep. It returns false without sweeping when
// another sweep is still running.
func (s *Sweeper) RunOnce() (types.SweepResult, bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debugf("[Sweeper] Previous sweep still running, skipping")
		return types.SweepResult{}, false
	}
	defer s.inFlight.Store(false)

	result := s.rounds.SweepExpired()
	if result.Expired > 0 || result.Purged > 0 {
		s.log.Infof("[Sweeper] Expired %d rounds, purged %d", result.Expired, result.Purged)
	}
	return result, true
}
