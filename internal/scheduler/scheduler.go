// Package scheduler triggers DAG runs on their cron schedules.
//
// Runs of the same DAG never overlap: a tick that fires while a previous
// run is still going, scheduled or triggered by hand, is skipped. Missed intervals are not backfilled.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"userflow/internal/config"
	"userflow/internal/dag"
)

// Scheduler manages cron-based DAG execution.
type Scheduler struct {
	cron   *cron.Cron
	runner *dag.Runner

	// now is replaced by tests.
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID // dag id -> cron entry
}

// New returns a Scheduler that executes runs with runner. Times are
// interpreted in UTC.
func New(runner *dag.Runner) *Scheduler {
	logger := cron.PrintfLogger(log.New(log.Writer(), "scheduler: ", log.LstdFlags))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		runner:  runner,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
}

// Add schedules d. A DAG without a recurring schedule is ignored and Add
// reports false. Each DAG gets its own SkipIfStillRunning wrapper so only
// runs of the same DAG are serialized.
func (s *Scheduler) Add(ctx context.Context, d *dag.DAG) (bool, error) {
	if !config.Scheduled(d.Meta.Schedule) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[d.ID]; dup {
		return false, fmt.Errorf("dag %s is already scheduled", d.ID)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))).
		Then(cron.FuncJob(func() { s.fire(ctx, d) }))
	id, err := s.cron.AddJob(d.Meta.Schedule, job)
	if err != nil {
		return false, fmt.Errorf("dag %s: invalid schedule %q: %w", d.ID, d.Meta.Schedule, err)
	}
	s.entries[d.ID] = id
	log.Printf("scheduler: scheduled dag=%s schedule=%s", d.ID, d.Meta.Schedule)
	return true, nil
}

func (s *Scheduler) fire(ctx context.Context, d *dag.DAG) {
	if ctx.Err() != nil {
		return
	}
	now := s.now().UTC()
	if !d.Meta.StartDate.IsZero() && now.Before(d.Meta.StartDate) {
		log.Printf("scheduler: dag=%s not started yet start_date=%s", d.ID, d.Meta.StartDate.Format("2006-01-02"))
		return
	}
	release, ok := s.runner.Claim(d.ID)
	if !ok {
		log.Printf("scheduler: dag=%s skipped tick, a run is still in progress", d.ID)
		return
	}
	defer release()
	_, err := s.runner.Run(ctx, d, dag.RunOptions{
		LogicalDate: now.Truncate(time.Minute),
		Trigger:     dag.TriggerScheduled,
	})
	if err != nil {
		log.Printf("scheduler: dag=%s run failed: %v", d.ID, err)
	}
}

// Next returns the next fire time of dagID.
func (s *Scheduler) Next(dagID string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[dagID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if e.Next.IsZero() {
		return time.Time{}, false
	}
	return e.Next, true
}

// Start begins firing scheduled runs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("scheduler: started entries=%d", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for in-flight runs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Printf("scheduler: stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
