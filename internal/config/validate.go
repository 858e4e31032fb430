// Package config provides configuration models and helpers for userflow.
//
// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "connections.postgres.dsn").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// knownStorageKinds mirrors the backends registered by internal/storage/all.
var knownStorageKinds = map[string]struct{}{
	"postgres": {},
	"sqlite":   {},
	"mssql":    {},
	"mysql":    {},
}

// Validate performs static validation of a Config. It does not mutate cfg;
// call ApplyDefaults first if defaults should be taken into account.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, validateConnections(cfg.Connections)...)
	issues = append(issues, validateUserProcessing(cfg.UserProcessing)...)
	issues = append(issues, validateSchedule("group_dag", cfg.GroupDAG.Schedule)...)
	if cfg.GroupDAG.Sleep < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "group_dag.sleep",
			Message:  "sleep must not be negative",
		})
	}
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func validateConnections(conns map[string]Connection) []Issue {
	var issues []Issue

	pg, ok := conns[ConnPostgres]
	switch {
	case !ok:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connections.postgres",
			Message:  "the postgres connection is required by user_processing",
		})
	default:
		if strings.TrimSpace(pg.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "connections.postgres.dsn",
				Message:  "dsn must not be empty",
			})
		}
		if _, known := knownStorageKinds[pg.Kind]; pg.Kind != "" && !known {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "connections.postgres.kind",
				Message:  fmt.Sprintf("unsupported storage kind %q (want postgres, sqlite, mssql or mysql)", pg.Kind),
			})
		}
	}

	api, ok := conns[ConnUserAPI]
	if !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connections.user_api",
			Message:  "the user_api connection is required by user_processing",
		})
		return issues
	}
	u, err := url.Parse(api.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connections.user_api.base_url",
			Message:  fmt.Sprintf("base_url %q must be an absolute http(s) URL", api.BaseURL),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connections.user_api.base_url",
			Message:  fmt.Sprintf("unsupported scheme %q", u.Scheme),
		})
	}
	if api.InsecureSkipVerify {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "connections.user_api.insecure_skip_verify",
			Message:  "TLS certificate verification is disabled",
		})
	}
	if api.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "connections.user_api.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	return issues
}

func validateUserProcessing(u UserProcessing) []Issue {
	var issues []Issue
	if strings.TrimSpace(u.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "user_processing.table",
			Message:  "table must not be empty",
		})
	}
	if strings.TrimSpace(u.StagingPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "user_processing.staging_path",
			Message:  "staging_path must not be empty",
		})
	}
	if n := len([]rune(u.Delimiter)); n != 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "user_processing.delimiter",
			Message:  fmt.Sprintf("delimiter must be exactly one character, got %q", u.Delimiter),
		})
	} else if u.Delimiter == "\"" || u.Delimiter == "\n" || u.Delimiter == "\r" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "user_processing.delimiter",
			Message:  "delimiter must not be a quote or line break",
		})
	}
	if u.Sensor.PokeInterval <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "user_processing.sensor.poke_interval",
			Message:  "poke_interval must be positive",
		})
	}
	if u.Sensor.Timeout > 0 && u.Sensor.Timeout < u.Sensor.PokeInterval {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "user_processing.sensor.timeout",
			Message:  "timeout is shorter than poke_interval; the sensor pokes at most once",
		})
	}
	issues = append(issues, validateSchedule("user_processing", u.Schedule)...)
	return issues
}

func validateSchedule(prefix string, s Schedule) []Issue {
	var issues []Issue
	if !Scheduled(s.Interval) {
		return issues
	}
	if _, err := cron.ParseStandard(s.Interval); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".schedule",
			Message:  fmt.Sprintf("invalid schedule %q: %v", s.Interval, err),
		})
	}
	if _, err := s.StartTime(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + ".start_date",
			Message:  fmt.Sprintf("start_date %q must be YYYY-MM-DD", s.StartDate),
		})
	}
	if s.Catchup {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + ".catchup",
			Message:  "catchup is not supported; missed intervals are not backfilled",
		})
	}
	return issues
}

// Scheduled reports whether interval describes a recurring schedule.
func Scheduled(interval string) bool {
	switch strings.TrimSpace(interval) {
	case "", "@once", "none":
		return false
	}
	return true
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend without URL; http://localhost:9091 is assumed",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend),
		})
	}
	return issues
}
