// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvFile is the optional dotenv file read by Load and watched for drift.
const EnvFile = ".env"

// MinIssuerTokenLen is the shortest accepted ISSUER_TOKEN.
const MinIssuerTokenLen = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment (e.g. "development", "production"). In production a
	// drift policy file that fails to load stops startup instead of falling back to the built-in policy.
	Env string `mapstructure:"APP_ENV"`

	// Session lifetimes and cap.
	SessionAbsoluteTimeout time.Duration `mapstructure:"SESSION_ABSOLUTE_TIMEOUT"`
	SessionIdleTimeout     time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	SessionMaxPerSubject   int           `mapstructure:"SESSION_MAX_PER_SUBJECT"`
	SessionSweepInterval   time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// SessionCookieName is the name of the session cookie (default sid).
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`

	// Alerting.
	AnomalySweepInterval   time.Duration `mapstructure:"ANOMALY_SWEEP_INTERVAL"`
	RetentionSweepInterval time.Duration `mapstructure:"RETENTION_SWEEP_INTERVAL"`
	AlertRetention         time.Duration `mapstructure:"ALERT_RETENTION"`
	AlertCapacity          int           `mapstructure:"ALERT_CAPACITY"`
	MetricCapacity         int           `mapstructure:"METRIC_CAPACITY"`
	EventWindowCapacity    int           `mapstructure:"EVENT_WINDOW_CAPACITY"`
	// MemorySoftLimitMB is the reference for the resource_usage memoryPercent reading.
	MemorySoftLimitMB int `mapstructure:"MEMORY_SOFT_LIMIT_MB"`
	// AlertRulesFile is an optional YAML rule file replacing the default rules.
	AlertRulesFile string `mapstructure:"ALERT_RULES_FILE"`
	// DriftPolicyFile is an optional Rego policy for session fingerprint drift.
	DriftPolicyFile string `mapstructure:"DRIFT_POLICY_FILE"`

	// IssuerToken is the bearer credential the authentication front end presents to create
	// sessions and ingest security events. Required in production; when empty those routes reject
	// every caller.
	IssuerToken string `mapstructure:"ISSUER_TOKEN"`

	// Per-IP rate limit for session creation and event ingestion. RATE_LIMIT_RPS=0 disables it.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// OpenTelemetry. Empty endpoint disables export (no-op providers).
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Audit shipping (optional). When Kafka brokers are set, audit records are also written to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit records.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the audit worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SESSION_ABSOLUTE_TIMEOUT", "8h")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")
	v.SetDefault("SESSION_MAX_PER_SUBJECT", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "5m")
	v.SetDefault("SESSION_COOKIE_NAME", "sid")
	v.SetDefault("ANOMALY_SWEEP_INTERVAL", "60s")
	v.SetDefault("RETENTION_SWEEP_INTERVAL", "24h")
	v.SetDefault("ALERT_RETENTION", "2160h") // 90d
	v.SetDefault("ALERT_CAPACITY", 10000)
	v.SetDefault("METRIC_CAPACITY", 50000)
	v.SetDefault("EVENT_WINDOW_CAPACITY", 20000)
	v.SetDefault("MEMORY_SOFT_LIMIT_MB", 1024)
	v.SetDefault("ALERT_RULES_FILE", "")
	v.SetDefault("DRIFT_POLICY_FILE", "")
	v.SetDefault("ISSUER_TOKEN", "")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "escrow-sentinel")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "escrow-audit")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "escrow-audit-worker")
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if a field is invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(EnvFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.SessionAbsoluteTimeout <= 0 || c.SessionIdleTimeout <= 0 {
		return errors.New("config: session timeouts must be positive")
	}
	if c.SessionIdleTimeout > c.SessionAbsoluteTimeout {
		return errors.New("config: SESSION_IDLE_TIMEOUT must not exceed SESSION_ABSOLUTE_TIMEOUT")
	}
	if c.SessionMaxPerSubject < 1 {
		return errors.New("config: SESSION_MAX_PER_SUBJECT must be at least 1")
	}
	if c.SessionCookieName == "" {
		return errors.New("config: SESSION_COOKIE_NAME must be set")
	}
	if c.SessionSweepInterval <= 0 || c.AnomalySweepInterval <= 0 || c.RetentionSweepInterval <= 0 {
		return errors.New("config: sweep intervals must be positive")
	}
	if c.AlertRetention <= 0 {
		return errors.New("config: ALERT_RETENTION must be positive")
	}
	if c.AlertCapacity < 1 || c.MetricCapacity < 1 || c.EventWindowCapacity < 1 {
		return errors.New("config: store capacities must be at least 1")
	}
	if c.RateLimitRPS < 0 || (c.RateLimitRPS > 0 && c.RateLimitBurst < 1) {
		return errors.New("config: RATE_LIMIT_RPS must be >= 0 and RATE_LIMIT_BURST >= 1")
	}
	if c.IssuerToken != "" && len(c.IssuerToken) < MinIssuerTokenLen {
		return fmt.Errorf("config: ISSUER_TOKEN must be at least %d characters", MinIssuerTokenLen)
	}
	if c.Production() && c.IssuerToken == "" {
		return errors.New("config: ISSUER_TOKEN must be set in production")
	}
	if c.MemorySoftLimitMB < 1 {
		return errors.New("config: MEMORY_SOFT_LIMIT_MB must be at least 1")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if audit shipping is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
