package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "spendsight.yaml"

// Load assembles the runtime Config from three layers, each overriding
// the one before: compiled defaults, the optional spendsight.yaml, and
// environment variables.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

// loadYAML unmarshals path over cfg. A missing file is fine: the
// deployment then runs on defaults and environment alone.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator, not a request
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// envSetter overlays environment variables onto config fields. Malformed
// values are collected so Load can fail with the variable named, rather
// than silently running on whatever the YAML layer left behind.
type envSetter struct {
	errs []error
}

func setEnv[T any](s *envSetter, dst *T, key string, parse func(string) (T, error)) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		return
	}
	*dst = v
}

func (s *envSetter) str(dst *string, key string) {
	setEnv(s, dst, key, func(v string) (string, error) { return v, nil })
}

func (s *envSetter) num(dst *int, key string) {
	setEnv(s, dst, key, strconv.Atoi)
}

func (s *envSetter) num32(dst *int32, key string) {
	setEnv(s, dst, key, func(v string) (int32, error) {
		n, err := strconv.ParseInt(v, 10, 32)
		return int32(n), err
	})
}

func (s *envSetter) num64(dst *int64, key string) {
	setEnv(s, dst, key, func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	})
}

func (s *envSetter) flag(dst *bool, key string) {
	setEnv(s, dst, key, strconv.ParseBool)
}

func (s *envSetter) dur(dst *time.Duration, key string) {
	setEnv(s, dst, key, time.ParseDuration)
}

func loadEnv(cfg *Config) error {
	var s envSetter
	s.str(&cfg.Server.Port, "SPENDSIGHT_PORT")
	s.str(&cfg.Server.CORSOrigin, "SPENDSIGHT_CORS_ORIGIN")
	s.str(&cfg.Postgres.DSN, "DATABASE_URL")
	s.num32(&cfg.Postgres.MaxConns, "SPENDSIGHT_PG_MAX_CONNS")
	s.num32(&cfg.Postgres.MinConns, "SPENDSIGHT_PG_MIN_CONNS")
	s.dur(&cfg.Postgres.MaxConnLifetime, "SPENDSIGHT_PG_MAX_CONN_LIFETIME")
	s.dur(&cfg.Postgres.MaxConnIdleTime, "SPENDSIGHT_PG_MAX_CONN_IDLE_TIME")
	s.dur(&cfg.Postgres.HealthCheck, "SPENDSIGHT_PG_HEALTH_CHECK")
	s.str(&cfg.NATS.URL, "NATS_URL")
	s.str(&cfg.NATS.Stream, "SPENDSIGHT_NATS_STREAM")
	s.str(&cfg.Logging.Level, "SPENDSIGHT_LOG_LEVEL")
	s.str(&cfg.Logging.Service, "SPENDSIGHT_LOG_SERVICE")
	s.flag(&cfg.Logging.Async, "SPENDSIGHT_LOG_ASYNC")
	s.num(&cfg.Breaker.MaxFailures, "SPENDSIGHT_BREAKER_MAX_FAILURES")
	s.dur(&cfg.Breaker.Timeout, "SPENDSIGHT_BREAKER_TIMEOUT")
	s.str(&cfg.Vault.MasterKeyEnv, "SPENDSIGHT_MASTER_KEY_ENV")
	s.dur(&cfg.Collector.Interval, "SPENDSIGHT_COLLECT_INTERVAL")
	s.num(&cfg.Collector.MaxConcurrent, "SPENDSIGHT_COLLECT_MAX_CONCURRENT")
	s.dur(&cfg.Collector.RequestTimeout, "SPENDSIGHT_COLLECT_REQUEST_TIMEOUT")
	s.num(&cfg.Analyzer.BaselineDays, "SPENDSIGHT_BASELINE_DAYS")
	s.num(&cfg.Detector.WindowDays, "SPENDSIGHT_DETECTOR_WINDOW_DAYS")
	s.num64(&cfg.Cache.L1MaxSizeMB, "SPENDSIGHT_CACHE_L1_SIZE_MB")
	s.str(&cfg.Cache.L2Bucket, "SPENDSIGHT_CACHE_L2_BUCKET")
	s.dur(&cfg.Cache.L2TTL, "SPENDSIGHT_CACHE_L2_TTL")
	s.str(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	s.flag(&cfg.MCP.Enabled, "SPENDSIGHT_MCP_ENABLED")
	s.str(&cfg.MCP.Addr, "SPENDSIGHT_MCP_ADDR")
	return errors.Join(s.errs...)
}

// validate rejects configurations that cannot run.
func validate(cfg *Config) error {
	required := []struct {
		ok  bool
		msg string
	}{
		{cfg.Server.Port != "", "server.port is required"},
		{cfg.Postgres.DSN != "", "postgres.dsn is required"},
		{cfg.NATS.URL != "", "nats.url is required"},
		{cfg.Postgres.MaxConns >= 1, "postgres.max_conns must be >= 1"},
		{cfg.Breaker.MaxFailures >= 1, "breaker.max_failures must be >= 1"},
		{cfg.Collector.MaxConcurrent >= 1, "collector.max_concurrent must be >= 1"},
		{cfg.Analyzer.BaselineDays >= 1, "analyzer.baseline_days must be >= 1"},
		{cfg.Detector.WindowDays >= 1, "detector.window_days must be >= 1"},
	}
	for _, r := range required {
		if !r.ok {
			return errors.New(r.msg)
		}
	}
	return nil
}
