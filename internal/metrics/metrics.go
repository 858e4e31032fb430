// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from DAG runs.
//
// A global backend defaults to a no-op implementation, so the recording
// helpers are always safe to call. Concrete systems (Prometheus Pushgateway,
// DogStatsD) live in subpackages and are installed once at startup with
// SetBackend.
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	TaskTotal       = "userflow_task_total"
	TaskDuration    = "userflow_task_duration_seconds"
	RunTotal        = "userflow_dag_run_total"
	RunDuration     = "userflow_dag_run_duration_seconds"
	RowsTotal       = "userflow_rows_total"
	SensorPokeTotal = "userflow_sensor_poke_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

// backend is replaced only at startup; recording is concurrent afterwards.
var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordTask counts one task execution and its duration.
func RecordTask(dag, task string, err error, d time.Duration) {
	lbls := Labels{
		"dag":    dag,
		"task":   task,
		"status": status(err),
	}
	backend.IncCounter(TaskTotal, 1, lbls)
	backend.ObserveHistogram(TaskDuration, d.Seconds(), lbls)
}

// RecordRun counts one DAG run and its wall time.
func RecordRun(dag string, err error, d time.Duration) {
	lbls := Labels{
		"dag":    dag,
		"status": status(err),
	}
	backend.IncCounter(RunTotal, 1, lbls)
	backend.ObserveHistogram(RunDuration, d.Seconds(), lbls)
}

// RecordRows increments a row-level counter. Typical kinds are "staged" and
// "loaded".
func RecordRows(dag, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"dag":  dag,
		"kind": kind,
	})
}

// RecordPoke counts one sensor poke; ok reports whether the target answered.
func RecordPoke(dag, task string, ok bool) {
	result := "not_ready"
	if ok {
		result = "ready"
	}
	backend.IncCounter(SensorPokeTotal, 1, Labels{
		"dag":    dag,
		"task":   task,
		"result": result,
	})
}
