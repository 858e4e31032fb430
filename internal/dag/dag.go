// Package dag models a workflow as a directed acyclic graph of tasks and runs
// it level by level.
//
// A DAG is declared once (tasks plus upstream edges) and executed many times.
// Every execution gets its own RunContext carrying the run id, the logical
// date and a small key/value store tasks use to hand results downstream.
package dag

import (
	"fmt"
	"sort"
	"time"
)

// Meta is the scheduling metadata attached to a DAG.
type Meta struct {
	// Schedule is a cron expression or descriptor such as "@daily". Empty,
	// "@once" and "none" mean the DAG is only triggered manually.
	Schedule  string
	StartDate time.Time
	// Catchup is carried for display; runs are never backfilled.
	Catchup     bool
	Description string
}

// DAG is an immutable-after-build graph of tasks.
type DAG struct {
	ID   string
	Meta Meta

	tasks    map[string]Task
	order    []string
	upstream map[string][]string
}

// New returns an empty DAG.
func New(id string, meta Meta) *DAG {
	return &DAG{
		ID:       id,
		Meta:     meta,
		tasks:    make(map[string]Task),
		upstream: make(map[string][]string),
	}
}

// Add registers tasks. Task ids must be unique within the DAG.
func (d *DAG) Add(tasks ...Task) error {
	for _, t := range tasks {
		id := t.ID()
		if id == "" {
			return fmt.Errorf("dag %s: task id must not be empty", d.ID)
		}
		if _, dup := d.tasks[id]; dup {
			return fmt.Errorf("dag %s: duplicate task id %q", d.ID, id)
		}
		d.tasks[id] = t
		d.order = append(d.order, id)
	}
	return nil
}

// SetUpstream records that task runs only after upstream succeeded.
func (d *DAG) SetUpstream(task, upstream string) error {
	if _, ok := d.tasks[task]; !ok {
		return fmt.Errorf("dag %s: unknown task %q", d.ID, task)
	}
	if _, ok := d.tasks[upstream]; !ok {
		return fmt.Errorf("dag %s: unknown upstream task %q", d.ID, upstream)
	}
	if task == upstream {
		return fmt.Errorf("dag %s: task %q cannot depend on itself", d.ID, task)
	}
	for _, u := range d.upstream[task] {
		if u == upstream {
			return nil
		}
	}
	d.upstream[task] = append(d.upstream[task], upstream)
	return nil
}

// Chain wires ids into a linear sequence: Chain(a, b, c) is a >> b >> c.
func (d *DAG) Chain(ids ...string) error {
	for i := 1; i < len(ids); i++ {
		if err := d.SetUpstream(ids[i], ids[i-1]); err != nil {
			return err
		}
	}
	return nil
}

// Task returns the task registered under id.
func (d *DAG) Task(id string) (Task, bool) {
	t, ok := d.tasks[id]
	return t, ok
}

// TaskIDs returns task ids in declaration order.
func (d *DAG) TaskIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Upstream returns the direct upstream ids of task.
func (d *DAG) Upstream(task string) []string {
	out := make([]string, len(d.upstream[task]))
	copy(out, d.upstream[task])
	return out
}

// Levels computes a topological ordering with Kahn's algorithm. Tasks within
// one level have no edges between them and may run concurrently. Each level
// lists tasks in declaration order. A cycle is an error.
func (d *DAG) Levels() ([][]string, error) {
	if len(d.order) == 0 {
		return nil, nil
	}

	pos := make(map[string]int, len(d.order))
	inDegree := make(map[string]int, len(d.order))
	dependents := make(map[string][]string)
	for i, id := range d.order {
		pos[id] = i
		inDegree[id] = 0
	}
	for _, id := range d.order {
		for _, up := range d.upstream[id] {
			dependents[up] = append(dependents[up], id)
			inDegree[id]++
		}
	}

	var queue []string
	for _, id := range d.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var levels [][]string
	processed := 0
	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool { return pos[queue[i]] < pos[queue[j]] })
		level := make([]string, len(queue))
		copy(level, queue)
		levels = append(levels, level)
		processed += len(level)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if processed != len(d.order) {
		return nil, fmt.Errorf("dag %s: cycle detected in task dependencies", d.ID)
	}
	return levels, nil
}

// Validate reports structural problems: no tasks or a dependency cycle.
func (d *DAG) Validate() error {
	if len(d.order) == 0 {
		return fmt.Errorf("dag %s: no tasks", d.ID)
	}
	_, err := d.Levels()
	return err
}
