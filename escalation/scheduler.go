package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is used when a Scheduler is created with a non-positive interval.
const DefaultInterval = time.Hour

// Sweeper runs one escalation pass and reports how many requests changed.
type Sweeper interface {
	SweepEscalations(ctx context.Context) (int, error)
}

// Scheduler triggers a Sweeper on a fixed interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{sweeper: sweeper, interval: interval, log: log}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Sweep errors are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Start runs the scheduler in a goroutine. The returned stop func cancels it
// and waits for the running sweep to finish.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	n, err := s.sweeper.SweepEscalations(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("escalation sweep failed")
		}
		return
	}
	s.log.Debug().Int("escalated", n).Dur("took", time.Since(started)).Msg("escalation sweep finished")
}
