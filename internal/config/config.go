// Package config loads and validates engine config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds engine configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for challenges, profiles, and audit events.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// OTPTTL is the challenge lifetime (e.g. "10m"). A challenge rejects verification after this.
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is how many verify attempts a challenge allows before it is exhausted.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPCodeLength is the number of digits in a generated code (zero-padded).
	OTPCodeLength int `mapstructure:"OTP_CODE_LENGTH"`
	// OTPHashSecret is the server-side secret mixed into code hashes. Required; never logged.
	OTPHashSecret string `mapstructure:"OTP_HASH_SECRET"`
	// OTPRequestsPerHour caps challenge requests per destination per hour (storage-backed window).
	OTPRequestsPerHour int `mapstructure:"OTP_REQUESTS_PER_HOUR"`
	// OTPReturnToClient when true enables dev OTP mode: the plain code is kept in memory for
	// retrieval by test tooling instead of requiring a real delivery channel. Must not be
	// true when Env is production (Load returns an error).
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// SMSAPIKey is the API key for the SMS provider. Required when SMS delivery is enabled.
	SMSAPIKey string `mapstructure:"SMS_API_KEY"`
	// SMSSender is the optional sender ID for the SMS provider.
	SMSSender string `mapstructure:"SMS_SENDER"`
	// SMSBaseURL is the SMS provider API base URL.
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	// WhatsAppToken is the bearer token for the WhatsApp Business API.
	WhatsAppToken string `mapstructure:"WHATSAPP_TOKEN"`
	// WhatsAppBaseURL is the WhatsApp Business API messages endpoint.
	WhatsAppBaseURL string `mapstructure:"WHATSAPP_BASE_URL"`
	// DeliveryTimeout bounds a single outbound send (e.g. "15s"); on timeout the send
	// is reported as a transient delivery failure.
	DeliveryTimeout string `mapstructure:"DELIVERY_TIMEOUT"`

	// DetectorInterval is how often the anomaly detector runs (e.g. "1h").
	DetectorInterval string `mapstructure:"DETECTOR_INTERVAL"`
	// DetectorWindowHours is the audit window the detector aggregates over per run.
	DetectorWindowHours int `mapstructure:"DETECTOR_WINDOW_HOURS"`
	// AnomalyCriticalBlockRate is the block-rate above which a window is CRITICAL.
	AnomalyCriticalBlockRate float64 `mapstructure:"ANOMALY_CRITICAL_BLOCK_RATE"`
	// AnomalyWarningBlockRate is the block-rate above which a window is WARNING.
	AnomalyWarningBlockRate float64 `mapstructure:"ANOMALY_WARNING_BLOCK_RATE"`
	// AnomalyFanoutSources is the unique-source count above which fan-out analysis kicks in.
	AnomalyFanoutSources int `mapstructure:"ANOMALY_FANOUT_SOURCES"`

	// AlertKafkaBrokers is a comma-separated list of Kafka broker addresses. When set,
	// CRITICAL anomaly reports are published to AlertKafkaTopic.
	AlertKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AlertKafkaTopic is the Kafka topic for anomaly alerts (default authn-anomaly-alerts).
	AlertKafkaTopic string `mapstructure:"ANOMALY_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317).
	// Empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_CODE_LENGTH", 6)
	v.SetDefault("OTP_HASH_SECRET", "")
	v.SetDefault("OTP_REQUESTS_PER_HOUR", 5)
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("SMS_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("WHATSAPP_BASE_URL", "")
	v.SetDefault("DELIVERY_TIMEOUT", "15s")
	v.SetDefault("DETECTOR_INTERVAL", "1h")
	v.SetDefault("DETECTOR_WINDOW_HOURS", 24)
	v.SetDefault("ANOMALY_CRITICAL_BLOCK_RATE", 0.50)
	v.SetDefault("ANOMALY_WARNING_BLOCK_RATE", 0.25)
	v.SetDefault("ANOMALY_FANOUT_SOURCES", 100)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ANOMALY_KAFKA_TOPIC", "authn-anomaly-alerts")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.OTPMaxAttempts <= 0 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be positive")
	}
	if cfg.OTPCodeLength < 4 || cfg.OTPCodeLength > 10 {
		return nil, errors.New("config: OTP_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.AnomalyWarningBlockRate >= cfg.AnomalyCriticalBlockRate {
		return nil, errors.New("config: ANOMALY_WARNING_BLOCK_RATE must be below ANOMALY_CRITICAL_BLOCK_RATE")
	}

	return &cfg, nil
}

// ChallengeTTL parses OTPTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.OTPTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// SendTimeout parses DeliveryTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) SendTimeout() time.Duration {
	d, err := time.ParseDuration(c.DeliveryTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// DetectInterval parses DetectorInterval as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) DetectInterval() time.Duration {
	d, err := time.ParseDuration(c.DetectorInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// DetectWindow returns DetectorWindowHours as a time.Duration. Returns 24h if unset
// or invalid.
func (c *Config) DetectWindow() time.Duration {
	if c.DetectorWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.DetectorWindowHours) * time.Hour
}

// AlertKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if alert dispatch is enabled (non-empty list) and to create the producer.
func (c *Config) AlertKafkaBrokersList() []string {
	if c == nil || c.AlertKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AlertKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
