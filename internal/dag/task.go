package dag

import (
	"context"
	"fmt"
)

// Task is one unit of work in a DAG.
type Task interface {
	ID() string
	Execute(ctx context.Context, rc *RunContext) error
}

// State is the lifecycle state of a task instance or a run.
type State string

const (
	StateQueued         State = "queued"
	StateRunning        State = "running"
	StateSuccess        State = "success"
	StateFailed         State = "failed"
	StateUpstreamFailed State = "upstream_failed"
)

// Done reports whether s is terminal.
func (s State) Done() bool {
	switch s {
	case StateSuccess, StateFailed, StateUpstreamFailed:
		return true
	}
	return false
}

type funcTask struct {
	id string
	fn func(ctx context.Context, rc *RunContext) error
}

func (t funcTask) ID() string { return t.id }

func (t funcTask) Execute(ctx context.Context, rc *RunContext) error { return t.fn(ctx, rc) }

// NewTask adapts a plain function to Task.
func NewTask(id string, fn func(ctx context.Context, rc *RunContext) error) Task {
	return funcTask{id: id, fn: fn}
}

// TaskError attributes a failure to one task of one DAG.
type TaskError struct {
	DagID  string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("dag %s: task %s: %v", e.DagID, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
