// Package dags declares the concrete workflows: user_processing and the
// group_dag parent with its downloads and transforms sub-DAGs.
package dags

import (
	"fmt"

	"userflow/internal/config"
	"userflow/internal/dag"
	"userflow/internal/datasource/httpds"
	"userflow/internal/operator"
)

// Deps are the collaborators DAG builders need beyond configuration.
type Deps struct {
	// Runner executes sub-DAGs; its History also records child runs.
	Runner *dag.Runner

	// Open overrides storage.New for the database tasks.
	Open operator.OpenFunc

	// Verbose turns on per-poke sensor logging.
	Verbose bool
}

// Registry holds the built DAGs by id in registration order.
type Registry struct {
	byID     map[string]*dag.DAG
	order    []string
	children map[string]bool
}

// Build constructs every DAG from cfg. cfg should have defaults applied.
func Build(cfg config.Config, deps Deps) (*Registry, error) {
	if deps.Runner == nil {
		deps.Runner = &dag.Runner{}
	}
	r := &Registry{byID: make(map[string]*dag.DAG), children: make(map[string]bool)}

	up, err := UserProcessing(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := r.add(up); err != nil {
		return nil, err
	}

	group, children, err := GroupDAG(cfg.GroupDAG, deps.Runner)
	if err != nil {
		return nil, err
	}
	if err := r.add(group); err != nil {
		return nil, err
	}
	for _, d := range children {
		if err := r.add(d); err != nil {
			return nil, err
		}
		r.children[d.ID] = true
	}
	return r, nil
}

func (r *Registry) add(d *dag.DAG) error {
	if _, dup := r.byID[d.ID]; dup {
		return fmt.Errorf("duplicate dag id %q", d.ID)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Get returns the DAG registered under id.
func (r *Registry) Get(id string) (*dag.DAG, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IDs returns DAG ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the DAGs in registration order.
func (r *Registry) All() []*dag.DAG {
	out := make([]*dag.DAG, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Roots returns the DAGs that are not sub-DAGs of another, in registration
// order. Only these are scheduled.
func (r *Registry) Roots() []*dag.DAG {
	var out []*dag.DAG
	for _, id := range r.order {
		if !r.children[id] {
			out = append(out, r.byID[id])
		}
	}
	return out
}

// IsChild reports whether id is a sub-DAG.
func (r *Registry) IsChild(id string) bool { return r.children[id] }

func meta(s config.Schedule, description string) (dag.Meta, error) {
	start, err := s.StartTime()
	if err != nil {
		return dag.Meta{}, fmt.Errorf("start_date %q: %w", s.StartDate, err)
	}
	return dag.Meta{
		Schedule:    s.Interval,
		StartDate:   start,
		Catchup:     s.Catchup,
		Description: description,
	}, nil
}

// httpClient builds the client for an HTTP connection.
func httpClient(conn config.Connection) (*httpds.Client, error) {
	return httpds.NewClient(httpds.Config{
		BaseURL:            conn.BaseURL,
		Timeout:            conn.Timeout.D(),
		MaxRetries:         conn.MaxRetries,
		InsecureSkipVerify: conn.InsecureSkipVerify,
	})
}
