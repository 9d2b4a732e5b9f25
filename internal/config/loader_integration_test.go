package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig drops a YAML document into a temp dir and returns its path.
func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spendsight.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadLayering drives all three layers through one LoadFrom call:
// the port comes from env over YAML, the log level from YAML over the
// default, and max_conns from the defaults alone.
func TestLoadLayering(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)
	t.Setenv("SPENDSIGHT_PORT", "7070")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, env should beat YAML", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, YAML should beat the default", cfg.Logging.Level)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want untouched default 15", cfg.Postgres.MaxConns)
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing file should not fail the load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Server.Port)
	}
	// NATS_URL is commonly exported in dev environments, so only check
	// that something survived for validation to accept.
	if cfg.NATS.URL == "" {
		t.Error("nats url empty")
	}
}

func TestLoadRejectsUnparseableYAML(t *testing.T) {
	if _, err := LoadFrom(writeConfig(t, `{{{not yaml`)); err == nil {
		t.Fatal("unparseable YAML accepted")
	}
}

// TestLoadRejectsMalformedEnv pins the failure mode for an operator
// typo: the load stops and the error names every offending variable.
func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("SPENDSIGHT_PG_MAX_CONNS", "ten")
	t.Setenv("SPENDSIGHT_BREAKER_TIMEOUT", "soon")
	t.Setenv("SPENDSIGHT_CACHE_L1_SIZE_MB", "big")

	_, err := LoadFrom(writeConfig(t, ""))
	if err == nil {
		t.Fatal("malformed env values accepted")
	}
	for _, name := range []string{"SPENDSIGHT_PG_MAX_CONNS", "SPENDSIGHT_BREAKER_TIMEOUT", "SPENDSIGHT_CACHE_L1_SIZE_MB"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not name %s: %v", name, err)
		}
	}
}

func TestLoadValidatesMergedResult(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, `
server:
  port: ""
`))
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("want server.port validation error, got: %v", err)
	}
}

func TestLoadCollectorSection(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, `
collector:
  interval: 12h
  max_concurrent: 8
  request_timeout: 90s
`))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if got := cfg.Collector.Interval.String(); got != "12h0m0s" {
		t.Errorf("interval = %s, want 12h", got)
	}
	if cfg.Collector.MaxConcurrent != 8 {
		t.Errorf("max_concurrent = %d, want 8", cfg.Collector.MaxConcurrent)
	}
	if got := cfg.Collector.RequestTimeout.String(); got != "1m30s" {
		t.Errorf("request_timeout = %s, want 90s", got)
	}
	if cfg.Analyzer.BaselineDays != 30 {
		t.Errorf("baseline_days = %d, analyzer defaults should be untouched", cfg.Analyzer.BaselineDays)
	}
}
