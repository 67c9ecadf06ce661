package main

import (
	"context"
	"fmt"
	"os"
	"time"
)

// SweepCmd runs one escalation sweep; meant for cron.
// Usage: approvalctl -f approval.yaml sweep
type SweepCmd struct {
	Timeout time.Duration `long:"timeout" description:"give up after this long" default:"1m"`
}

func (s *SweepCmd) Execute(_ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	n, err := rt.engine.SweepEscalations(ctx)
	if err != nil {
		return fmt.Errorf("escalation sweep: %w", err)
	}
	fmt.Fprintf(os.Stdout, "escalated %d request(s)\n", n)
	return nil
}
