package operator

import (
	"context"
	"time"

	"userflow/internal/dag"
)

// Sleep waits for Duration. It stands in for real work in placeholder DAGs.
type Sleep struct {
	TaskID   string
	Duration time.Duration
}

func (s *Sleep) ID() string { return s.TaskID }

func (s *Sleep) Execute(ctx context.Context, _ *dag.RunContext) error {
	if s.Duration <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
