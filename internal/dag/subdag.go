package dag

import (
	"context"
	"fmt"
)

// SubDAG is a task that runs a child DAG to completion. The child's id is
// conventionally "<parent>.<task id>".
type SubDAG struct {
	TaskID string
	Child  *DAG
	// Runner executes the child; nil uses a Runner without history.
	Runner *Runner
}

func (s *SubDAG) ID() string { return s.TaskID }

// Execute runs the child with the parent's logical date. The child fails
// the task when any of its tasks fail.
func (s *SubDAG) Execute(ctx context.Context, rc *RunContext) error {
	r := s.Runner
	if r == nil {
		r = &Runner{}
	}
	run, err := r.Run(ctx, s.Child, RunOptions{LogicalDate: rc.LogicalDate, Trigger: TriggerSubDAG})
	if err != nil {
		return fmt.Errorf("subdag %s: %w", s.Child.ID, err)
	}
	rc.Push(s.TaskID, ReturnValueKey, run.RunID)
	return nil
}
