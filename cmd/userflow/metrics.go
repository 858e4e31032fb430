package main

import (
	"log"

	"userflow/internal/config"
	"userflow/internal/metrics"
	"userflow/internal/metrics/datadog"
	"userflow/internal/metrics/prompush"
)

const defaultPushgatewayURL = "http://localhost:9091"

// setupMetrics installs the configured metrics backend and returns a function
// that flushes it. A backend that fails to initialize leaves the nop backend
// in place.
func setupMetrics(m config.Metrics) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "pushgateway":
		url := m.PushgatewayURL
		if url == "" {
			url = defaultPushgatewayURL
		}
		b, err = prompush.NewBackend(m.Job, url)
		if err == nil {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", url, m.Backend, m.Job)
		}
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace, GlobalTags: m.Tags})
		if err == nil {
			log.Printf("metrics: addr=%v, backend=%v", m.DatadogAddr, m.Backend)
		}
	case "", "none":
		return func() {}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", m.Backend)
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: failed to init %s backend: %v; using nop", m.Backend, err)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
