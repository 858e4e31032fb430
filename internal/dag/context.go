package dag

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReturnValueKey is the key a task's primary result is pushed under.
const ReturnValueKey = "return_value"

// RunContext is the per-run state handed to every task: identifiers, the
// logical date, and a cross-task value store.
type RunContext struct {
	DagID       string
	RunID       string
	LogicalDate time.Time

	mu   sync.RWMutex
	xcom map[string]map[string]any
}

// NewRunContext returns a context with a fresh run id.
func NewRunContext(dagID string, logicalDate time.Time) *RunContext {
	return &RunContext{
		DagID:       dagID,
		RunID:       uuid.NewString(),
		LogicalDate: logicalDate,
		xcom:        make(map[string]map[string]any),
	}
}

// Push stores v under (taskID, key).
func (rc *RunContext) Push(taskID, key string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.xcom == nil {
		rc.xcom = make(map[string]map[string]any)
	}
	m := rc.xcom[taskID]
	if m == nil {
		m = make(map[string]any)
		rc.xcom[taskID] = m
	}
	m[key] = v
}

// Pull returns the value stored under (taskID, key).
func (rc *RunContext) Pull(taskID, key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.xcom[taskID][key]
	return v, ok
}

// Keys lists the keys taskID pushed.
func (rc *RunContext) Keys(taskID string) []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, 0, len(rc.xcom[taskID]))
	for k := range rc.xcom[taskID] {
		out = append(out, k)
	}
	return out
}

// PullAs returns taskID's return value as T. A missing value or a value of
// another type is an error.
func PullAs[T any](rc *RunContext, taskID string) (T, error) {
	var zero T
	v, ok := rc.Pull(taskID, ReturnValueKey)
	if !ok {
		return zero, fmt.Errorf("no value pushed by task %q", taskID)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("value pushed by task %q is %T, want %T", taskID, v, zero)
	}
	return t, nil
}
