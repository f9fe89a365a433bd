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
const DefaultConfigFile = "desbank.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DESBANK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DESBANK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DESBANK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DESBANK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DESBANK_PG_HEALTH_CHECK")
	setBool(&cfg.NATS.Enabled, "DESBANK_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "DESBANK_EXTRACTOR_MODEL")
	setString(&cfg.Logging.Level, "DESBANK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DESBANK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DESBANK_LOG_ASYNC")
	setInt(&cfg.Feedback.Workers, "DESBANK_FEEDBACK_WORKERS")
	setInt(&cfg.Feedback.QueueSize, "DESBANK_FEEDBACK_QUEUE_SIZE")
	setDuration(&cfg.Feedback.StatusTTL, "DESBANK_FEEDBACK_STATUS_TTL")
	setFloat64(&cfg.Extractor.Temperature, "DESBANK_EXTRACTOR_TEMPERATURE")
	setInt(&cfg.Extractor.MaxTokens, "DESBANK_EXTRACTOR_MAX_TOKENS")
	setDuration(&cfg.Extractor.Timeout, "DESBANK_EXTRACTOR_TIMEOUT")
	setInt64(&cfg.Cache.L1MaxSizeMB, "DESBANK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "DESBANK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "DESBANK_CACHE_L2_TTL")
	setInt(&cfg.Breaker.MaxFailures, "DESBANK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "DESBANK_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "DESBANK_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Feedback.Workers < 1 {
		return errors.New("feedback.workers must be >= 1")
	}
	if cfg.Feedback.QueueSize < 1 {
		return errors.New("feedback.queue_size must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

// override writes the parsed env value to dst when the variable is set
// and parses cleanly; malformed values are ignored so a typo cannot
// zero out a default.
func override[T any](dst *T, key string, parse func(string) (T, error)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if parsed, err := parse(v); err == nil {
		*dst = parsed
	}
}

func setString(dst *string, key string) {
	override(dst, key, func(v string) (string, error) { return v, nil })
}

func setInt(dst *int, key string) {
	override(dst, key, strconv.Atoi)
}

func setInt32(dst *int32, key string) {
	override(dst, key, func(v string) (int32, error) {
		n, err := strconv.ParseInt(v, 10, 32)
		return int32(n), err
	})
}

func setInt64(dst *int64, key string) {
	override(dst, key, func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	})
}

func setFloat64(dst *float64, key string) {
	override(dst, key, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

func setBool(dst *bool, key string) {
	override(dst, key, strconv.ParseBool)
}

func setDuration(dst *time.Duration, key string) {
	override(dst, key, time.ParseDuration)
}
