package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the pipeline file.
const (
	EnvPostgresDSN    = "USERFLOW_POSTGRES_DSN"
	EnvUserAPIURL     = "USERFLOW_USER_API_URL"
	EnvStagingPath    = "USERFLOW_STAGING_PATH"
	EnvMetricsBackend = "METRICS_BACKEND"
	EnvPushgatewayURL = "PUSHGATEWAY_URL"
	EnvDatadogAddr    = "DD_AGENT_ADDR"
)

// Load reads a pipeline file, decodes it as YAML when the extension is .yaml
// or .yml and as JSON otherwise, then applies environment overrides and
// defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(b, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	return cfg, nil
}

// Decode decodes b according to ext (".json", ".yaml", ".yml"). Unknown
// extensions are decoded as JSON. Unknown JSON keys are rejected so typos in
// pipeline files surface early.
func Decode(b []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables. lookup is
// os.LookupEnv in production; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if c.Connections == nil {
		c.Connections = map[string]Connection{}
	}
	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		conn := c.Connections[ConnPostgres]
		conn.DSN = v
		c.Connections[ConnPostgres] = conn
	}
	if v, ok := lookup(EnvUserAPIURL); ok && v != "" {
		conn := c.Connections[ConnUserAPI]
		conn.BaseURL = v
		c.Connections[ConnUserAPI] = conn
	}
	if v, ok := lookup(EnvStagingPath); ok && v != "" {
		c.UserProcessing.StagingPath = v
	}
	if v, ok := lookup(EnvMetricsBackend); ok && v != "" {
		c.Metrics.Backend = v
	}
	if v, ok := lookup(EnvPushgatewayURL); ok && v != "" {
		c.Metrics.PushgatewayURL = v
	}
	if v, ok := lookup(EnvDatadogAddr); ok && v != "" {
		c.Metrics.DatadogAddr = v
	}
}
