package main

import (
	"context"
	"fmt"
	"os"
	"time"
)

// PurgeCmd deletes cancelled and completed requests.
// Usage: approvalctl -f approval.yaml purge --older-than 720h
type PurgeCmd struct {
	OlderThan time.Duration `long:"older-than" description:"override escalation.retention"`
}

func (p *PurgeCmd) Execute(_ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	retention := rt.cfg.Escalation.Retention
	if p.OlderThan > 0 {
		retention = p.OlderThan
	}
	n, err := rt.engine.PurgeClosed(context.Background(), retention)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "purged %d request(s) closed more than %s ago\n", n, retention)
	return nil
}
