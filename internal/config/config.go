// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreBackendSQLite   = "sqlite"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
// Both binaries share it; each reads only the fields it needs.
type Config struct {
	// Env is the application environment (e.g. "development", "production").
	// Production rejects plaintext passwords in the identities file.
	Env string `mapstructure:"APP_ENV"`
	// HTTPAddr is the address the credential proxy listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// StoreBackend selects the durable key-value store: sqlite (default), postgres, or memory.
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// SQLitePath is the database file used when StoreBackend is sqlite.
	SQLitePath string `mapstructure:"SQLITE_PATH"`
	// DatabaseURL is the Postgres DSN; required when StoreBackend is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StorePrefix namespaces every persisted key (default voiceAgent_).
	StorePrefix string `mapstructure:"STORE_PREFIX"`

	// IdentitiesFile is the YAML file listing authorized identities.
	IdentitiesFile string `mapstructure:"IDENTITIES_FILE"`
	// AdminPassword gates the administrative panel. Empty disables the panel.
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// UsageLimit is the number of completed utterances allowed per session (default 3).
	UsageLimit int `mapstructure:"USAGE_LIMIT"`
	// SessionWindow is the trial window measured from the first Talk (e.g. "60s").
	SessionWindow string `mapstructure:"SESSION_WINDOW"`
	// TokenLimit is the estimated token budget per session (default 500).
	TokenLimit int `mapstructure:"TOKEN_LIMIT"`
	// PolicyCheckInterval is how often an active session is re-evaluated (default "1s").
	PolicyCheckInterval string `mapstructure:"POLICY_CHECK_INTERVAL"`
	// PolicyRegoFile optionally points at a Rego module that replaces the built-in quota rules.
	PolicyRegoFile string `mapstructure:"POLICY_REGO_FILE"`

	// CredentialProxyURL is the GET endpoint that returns {tempKey}.
	CredentialProxyURL string `mapstructure:"CREDENTIAL_PROXY_URL"`
	// ProxyClientToken is an optional bearer token shared by the client and the proxy.
	ProxyClientToken string `mapstructure:"PROXY_CLIENT_TOKEN"`
	// RealtimeURL is the realtime WebSocket endpoint.
	RealtimeURL string `mapstructure:"REALTIME_URL"`
	// RealtimeModel is the realtime model identifier.
	RealtimeModel string `mapstructure:"REALTIME_MODEL"`
	// PersonaFile optionally overrides the built-in agent persona (YAML).
	PersonaFile string `mapstructure:"PERSONA_FILE"`

	// OpenAIAPIKey is the upstream API key; proxy only.
	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	// OpenAIBaseURL is the upstream REST base URL; proxy only.
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	// ClientSecretTTL is the lifetime requested for minted credentials (e.g. "600s").
	ClientSecretTTL string `mapstructure:"CLIENT_SECRET_TTL"`

	// AudioSampleRate is the PCM16 capture/playback rate in Hz.
	AudioSampleRate int `mapstructure:"AUDIO_SAMPLE_RATE"`
	// AudioDevice is the capture device name; empty selects the system default.
	AudioDevice string `mapstructure:"AUDIO_DEVICE"`

	// Telemetry (optional). Empty endpoint means no-op OTel providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for session events (default voice-telemetry).
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("STORE_BACKEND", StoreBackendSQLite)
	v.SetDefault("SQLITE_PATH", "voiceagent.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_PREFIX", "voiceAgent_")
	v.SetDefault("IDENTITIES_FILE", "identities.yaml")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("USAGE_LIMIT", 3)
	v.SetDefault("SESSION_WINDOW", "60s")
	v.SetDefault("TOKEN_LIMIT", 500)
	v.SetDefault("POLICY_CHECK_INTERVAL", "1s")
	v.SetDefault("POLICY_REGO_FILE", "")
	v.SetDefault("CREDENTIAL_PROXY_URL", "http://localhost:8080/api")
	v.SetDefault("PROXY_CLIENT_TOKEN", "")
	v.SetDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime")
	v.SetDefault("REALTIME_MODEL", "gpt-4o-mini-realtime-preview")
	v.SetDefault("PERSONA_FILE", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("CLIENT_SECRET_TTL", "600s")
	v.SetDefault("AUDIO_SAMPLE_RATE", 24000)
	v.SetDefault("AUDIO_DEVICE", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "voice-trial-agent")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "voice-telemetry")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "voice-telemetry-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case StoreBackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("config: SQLITE_PATH must be set when STORE_BACKEND=sqlite")
		}
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case StoreBackendMemory:
	default:
		return nil, errors.New("config: STORE_BACKEND must be one of sqlite, postgres, memory")
	}

	if cfg.StorePrefix == "" {
		return nil, errors.New("config: STORE_PREFIX must not be empty")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.UsageLimit <= 0 {
		return nil, errors.New("config: USAGE_LIMIT must be positive")
	}
	if cfg.TokenLimit <= 0 {
		return nil, errors.New("config: TOKEN_LIMIT must be positive")
	}
	if cfg.AudioSampleRate <= 0 {
		return nil, errors.New("config: AUDIO_SAMPLE_RATE must be positive")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// Window parses SessionWindow as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) Window() time.Duration {
	return parseDuration(c.SessionWindow, 60*time.Second)
}

// CheckInterval parses PolicyCheckInterval. Returns 1s if unset or invalid.
func (c *Config) CheckInterval() time.Duration {
	return parseDuration(c.PolicyCheckInterval, time.Second)
}

// SecretTTL parses ClientSecretTTL. Returns 600s if unset or invalid.
func (c *Config) SecretTTL() time.Duration {
	return parseDuration(c.ClientSecretTTL, 600*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
