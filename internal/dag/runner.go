package dag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"userflow/internal/metrics"
)

// Triggers recorded on a Run.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerSubDAG    = "subdag"
	TriggerTest      = "test"
)

// TaskInstance is the outcome of one task within a run.
type TaskInstance struct {
	TaskID string    `json:"task_id"`
	State  State     `json:"state"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Error  string    `json:"error,omitempty"`
}

// Run is a snapshot of one DAG execution.
type Run struct {
	DagID       string         `json:"dag_id"`
	RunID       string         `json:"run_id"`
	LogicalDate time.Time      `json:"logical_date"`
	Trigger     string         `json:"trigger"`
	State       State          `json:"state"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Tasks       []TaskInstance `json:"tasks"`
	Error       string         `json:"error,omitempty"`
}

// RunOptions parameterize a single execution.
type RunOptions struct {
	// LogicalDate defaults to the current time.
	LogicalDate time.Time
	// Trigger defaults to TriggerManual.
	Trigger string
	// RunID overrides the generated run id.
	RunID string
}

// Runner executes DAGs. The zero value is ready to use.
type Runner struct {
	// History receives a snapshot when a run starts and when it ends. Optional.
	History *History

	// Verbose logs every task outcome. Failures and run boundaries are
	// always logged.
	Verbose bool

	// now is replaced by tests.
	now func() time.Time

	mu     sync.Mutex
	active map[string]bool // dag ids claimed by an in-flight run
}

// Claim marks dagID as having a run in flight. It reports false when a run
// of dagID is already claimed; otherwise the caller must call release once
// the run has finished. Entry points that start runs (scheduler ticks,
// manual triggers) claim before running so runs of one DAG never overlap.
func (r *Runner) Claim(dagID string) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[dagID] {
		return nil, false
	}
	if r.active == nil {
		r.active = make(map[string]bool)
	}
	r.active[dagID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, dagID)
			r.mu.Unlock()
		})
	}, true
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run executes d level by level. Tasks in one level run concurrently; a
// task whose upstream did not succeed is marked upstream_failed and never
// started. The returned error is the first *TaskError in declaration order,
// and the returned Run is always non-nil once the DAG validated.
func (r *Runner) Run(ctx context.Context, d *DAG, opts RunOptions) (*Run, error) {
	levels, err := d.Levels()
	if err != nil {
		return nil, err
	}
	if opts.LogicalDate.IsZero() {
		opts.LogicalDate = r.clock()
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}

	rc := NewRunContext(d.ID, opts.LogicalDate)
	if opts.RunID != "" {
		rc.RunID = opts.RunID
	}
	ex := &execution{
		runner: r,
		dag:    d,
		rc:     rc,
		index:  make(map[string]int, len(d.order)),
		run: Run{
			DagID:       d.ID,
			RunID:       rc.RunID,
			LogicalDate: opts.LogicalDate,
			Trigger:     opts.Trigger,
			State:       StateRunning,
			Start:       r.clock(),
			Tasks:       make([]TaskInstance, len(d.order)),
		},
	}
	for i, id := range d.order {
		ex.index[id] = i
		ex.run.Tasks[i] = TaskInstance{TaskID: id, State: StateQueued}
	}

	log.Printf("dag: start dag_id=%s run_id=%s trigger=%s logical_date=%s",
		d.ID, rc.RunID, opts.Trigger, opts.LogicalDate.Format(time.RFC3339))
	ex.publish()

	for _, level := range levels {
		ex.runLevel(ctx, level)
	}

	runErr := ex.finish()
	log.Printf("dag: done dag_id=%s run_id=%s state=%s elapsed=%s",
		d.ID, rc.RunID, ex.run.State, ex.run.End.Sub(ex.run.Start).Truncate(time.Millisecond))
	metrics.RecordRun(d.ID, runErr, ex.run.End.Sub(ex.run.Start))
	ex.publish()

	snap := ex.snapshot()
	return &snap, runErr
}

// RunTask executes a single task of d in isolation with a fresh run context,
// ignoring its upstream tasks. Nothing is recorded in History.
func (r *Runner) RunTask(ctx context.Context, d *DAG, taskID string, opts RunOptions) error {
	t, ok := d.Task(taskID)
	if !ok {
		return fmt.Errorf("dag %s: unknown task %q", d.ID, taskID)
	}
	if opts.LogicalDate.IsZero() {
		opts.LogicalDate = r.clock()
	}
	rc := NewRunContext(d.ID, opts.LogicalDate)
	start := r.clock()
	err := execute(ctx, t, rc)
	elapsed := r.clock().Sub(start)
	metrics.RecordTask(d.ID, taskID, err, elapsed)
	if err != nil {
		log.Printf("dag: test dag_id=%s task=%s state=%s err=%v", d.ID, taskID, StateFailed, err)
		return &TaskError{DagID: d.ID, TaskID: taskID, Err: err}
	}
	log.Printf("dag: test dag_id=%s task=%s state=%s elapsed=%s", d.ID, taskID, StateSuccess, elapsed.Truncate(time.Millisecond))
	return nil
}

type execution struct {
	runner *Runner
	dag    *DAG
	rc     *RunContext
	index  map[string]int

	mu   sync.Mutex
	run  Run
	errs map[int]error
}

func (ex *execution) runLevel(ctx context.Context, level []string) {
	var g errgroup.Group
	for _, id := range level {
		if !ex.upstreamSucceeded(id) {
			ex.set(id, func(ti *TaskInstance) { ti.State = StateUpstreamFailed })
			if ex.runner.Verbose {
				log.Printf("dag: skip dag_id=%s run_id=%s task=%s state=%s", ex.dag.ID, ex.rc.RunID, id, StateUpstreamFailed)
			}
			continue
		}
		id := id
		t := ex.dag.tasks[id]
		g.Go(func() error {
			ex.runTask(ctx, id, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (ex *execution) runTask(ctx context.Context, id string, t Task) {
	start := ex.runner.clock()
	ex.set(id, func(ti *TaskInstance) {
		ti.State = StateRunning
		ti.Start = start
	})
	ex.publish()

	err := execute(ctx, t, ex.rc)
	end := ex.runner.clock()
	metrics.RecordTask(ex.dag.ID, id, err, end.Sub(start))

	ex.set(id, func(ti *TaskInstance) {
		ti.End = end
		if err != nil {
			ti.State = StateFailed
			ti.Error = err.Error()
			return
		}
		ti.State = StateSuccess
	})
	if err != nil {
		log.Printf("dag: task dag_id=%s run_id=%s task=%s state=%s err=%v", ex.dag.ID, ex.rc.RunID, id, StateFailed, err)
		ex.setErr(id, err)
	} else if ex.runner.Verbose {
		log.Printf("dag: task dag_id=%s run_id=%s task=%s state=%s elapsed=%s", ex.dag.ID, ex.rc.RunID, id, StateSuccess, end.Sub(start).Truncate(time.Millisecond))
	}
	ex.publish()
}

// execute runs t, turning a panic into an error.
func execute(ctx context.Context, t Task, rc *RunContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Execute(ctx, rc)
}

func (ex *execution) upstreamSucceeded(id string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, up := range ex.dag.upstream[id] {
		if ex.run.Tasks[ex.index[up]].State != StateSuccess {
			return false
		}
	}
	return true
}

func (ex *execution) set(id string, fn func(*TaskInstance)) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	fn(&ex.run.Tasks[ex.index[id]])
}

func (ex *execution) setErr(id string, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.errs == nil {
		ex.errs = make(map[int]error)
	}
	ex.errs[ex.index[id]] = err
}

func (ex *execution) finish() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.run.End = ex.runner.clock()
	ex.run.State = StateSuccess

	var first error
	for i, ti := range ex.run.Tasks {
		if ti.State == StateSuccess {
			continue
		}
		ex.run.State = StateFailed
		if err, ok := ex.errs[i]; ok && first == nil {
			first = &TaskError{DagID: ex.dag.ID, TaskID: ti.TaskID, Err: err}
		}
	}
	if ex.run.State == StateFailed && first == nil {
		first = errors.New("dag run failed")
	}
	if first != nil {
		ex.run.Error = first.Error()
	}
	return first
}

func (ex *execution) snapshot() Run {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	s := ex.run
	s.Tasks = make([]TaskInstance, len(ex.run.Tasks))
	copy(s.Tasks, ex.run.Tasks)
	return s
}

func (ex *execution) publish() {
	if ex.runner.History == nil {
		return
	}
	ex.runner.History.Put(ex.snapshot())
}
