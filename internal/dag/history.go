package dag

import (
	"sort"
	"sync"
)

// DefaultHistoryLimit is the number of runs kept per DAG.
const DefaultHistoryLimit = 50

// History keeps the most recent run snapshots per DAG in memory.
type History struct {
	limit int

	mu   sync.RWMutex
	runs map[string][]Run // dag id -> runs, oldest first
}

// NewHistory returns a History keeping at most limit runs per DAG. A
// non-positive limit selects DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, runs: make(map[string][]Run)}
}

// Put inserts run or replaces the snapshot with the same run id.
func (h *History) Put(run Run) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.runs[run.DagID]
	for i := range list {
		if list[i].RunID == run.RunID {
			list[i] = run
			return
		}
	}
	list = append(list, run)
	if len(list) > h.limit {
		list = list[len(list)-h.limit:]
	}
	h.runs[run.DagID] = list
}

// List returns dagID's runs, newest first.
func (h *History) List(dagID string) []Run {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.runs[dagID]
	out := make([]Run, len(list))
	for i, r := range list {
		out[len(list)-1-i] = r
	}
	return out
}

// Get returns one run.
func (h *History) Get(dagID, runID string) (Run, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.runs[dagID] {
		if r.RunID == runID {
			return r, true
		}
	}
	return Run{}, false
}

// Latest returns the most recent run of dagID.
func (h *History) Latest(dagID string) (Run, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.runs[dagID]
	if len(list) == 0 {
		return Run{}, false
	}
	return list[len(list)-1], true
}

// DagIDs returns the ids with at least one recorded run, sorted.
func (h *History) DagIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.runs))
	for id := range h.runs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
