package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/songzhibin97/approval-engine/escalation"
	"github.com/songzhibin97/approval-engine/events"
)

// ServeCmd runs the escalation scheduler until SIGINT or SIGTERM.
// Usage: approvalctl -f approval.yaml serve
type ServeCmd struct {
	Purge bool `long:"purge" description:"also purge closed requests on every tick"`
}

func (s *ServeCmd) Execute(_ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	rt.bus.SubscribeFunc(events.All, func(ctx context.Context, e events.Event) error {
		rt.log.Debug().
			Str("event", string(e.Type)).
			Uint64("request_id", e.RequestID).
			Str("status", string(e.Status)).
			Msg("lifecycle event")
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sweeper escalation.Sweeper = rt.engine
	if s.Purge {
		sweeper = purgingSweeper{rt: rt}
	}
	sched := escalation.NewScheduler(sweeper, rt.cfg.Escalation.Interval, rt.log)
	rt.log.Info().
		Dur("interval", sched.Interval()).
		Str("storage", rt.cfg.Storage.Driver).
		Msg("approval scheduler started")

	err = sched.Run(ctx)
	rt.log.Info().Msg("approval scheduler stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// purgingSweeper purges closed requests after each escalation sweep.
type purgingSweeper struct {
	rt *runtime
}

func (p purgingSweeper) SweepEscalations(ctx context.Context) (int, error) {
	n, err := p.rt.engine.SweepEscalations(ctx)
	if err != nil {
		return n, err
	}
	if _, err := p.rt.engine.PurgeClosed(ctx, p.rt.cfg.Escalation.Retention); err != nil {
		return n, err
	}
	return n, nil
}
