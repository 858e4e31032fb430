// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// DAG runs are short-lived batch work, so collected series are pushed to a
// Pushgateway on Flush instead of being exposed on a scrape endpoint. The
// Pushgateway "job" grouping key is the configured job name; dag, task and
// status travel as metric labels.
package prompush

import (
	"fmt"

	"userflow/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	taskCounter  *prometheus.CounterVec // userflow_task_total
	taskDuration *prometheus.SummaryVec // userflow_task_duration_seconds
	runCounter   *prometheus.CounterVec // userflow_dag_run_total
	runDuration  *prometheus.SummaryVec // userflow_dag_run_duration_seconds
	rowCounter   *prometheus.CounterVec // userflow_rows_total
	pokeCounter  *prometheus.CounterVec // userflow_sensor_poke_total
}

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" name; gatewayURL is the base URL of the
// Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "userflow"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		taskCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TaskTotal,
			Help: "Task executions, partitioned by dag, task and final state.",
		}, []string{"dag", "task", "status"}),
		taskDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.TaskDuration,
			Help:       "Task execution time in seconds.",
			Objectives: objectives,
		}, []string{"dag", "task", "status"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "DAG runs, partitioned by dag and final state.",
		}, []string{"dag", "status"}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.RunDuration,
			Help:       "DAG run wall time in seconds.",
			Objectives: objectives,
		}, []string{"dag", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows staged and loaded, partitioned by dag and kind.",
		}, []string{"dag", "kind"}),
		pokeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.SensorPokeTotal,
			Help: "Sensor pokes, partitioned by dag, task and result.",
		}, []string{"dag", "task", "result"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"task counter": b.taskCounter,
		"task summary": b.taskDuration,
		"run counter":  b.runCounter,
		"run summary":  b.runDuration,
		"row counter":  b.rowCounter,
		"poke counter": b.pokeCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskTotal:
		if b.taskCounter == nil {
			return
		}
		b.taskCounter.WithLabelValues(labels["dag"], labels["task"], labels["status"]).Add(delta)

	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["dag"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["dag"], labels["kind"]).Add(delta)

	case metrics.SensorPokeTotal:
		if b.pokeCounter == nil {
			return
		}
		b.pokeCounter.WithLabelValues(labels["dag"], labels["task"], labels["result"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskDuration:
		if b.taskDuration == nil {
			return
		}
		b.taskDuration.WithLabelValues(labels["dag"], labels["task"], labels["status"]).Observe(value)

	case metrics.RunDuration:
		if b.runDuration == nil {
			return
		}
		b.runDuration.WithLabelValues(labels["dag"], labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
