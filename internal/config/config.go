package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr string

	Gateway   GatewayConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig

	SeedCatalog bool
}

// GatewayConfig selects the payment gateway environment and credentials.
type GatewayConfig struct {
	ServerKey  string
	ClientKey  string
	Production bool

	// SnapBaseURL and APIBaseURL override the endpoint derived from
	// Production when set. Used by tests and self-hosted mocks.
	SnapBaseURL string
	APIBaseURL  string
}

// PaymentConfig carries the session lifecycle knobs. PollIntervalMS and
// PollMaxAttempts are client-facing defaults surfaced to the status poller;
// only TokenTTLHours is enforced server-side.
type PaymentConfig struct {
	TokenTTLHours         int
	WebhookTimeoutSeconds int
	PollIntervalMS        int
	PollMaxAttempts       int
}

// RateLimitConfig throttles the public status poll endpoint. Disabled unless
// a redis address is configured.
type RateLimitConfig struct {
	Enabled         bool
	RedisPassword   string
	RedisDB         int
	StatusPollRate  float64
	StatusPollBurst int
}

var Module = fx.Provide(Load)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "undangly"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "undangly"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr: strings.TrimSpace(getenv("REDIS_ADDR", "")),

		Gateway: GatewayConfig{
			ServerKey:   strings.TrimSpace(getenv("GATEWAY_SERVER_KEY", "")),
			ClientKey:   strings.TrimSpace(getenv("GATEWAY_CLIENT_KEY", "")),
			Production:  getenvBool("GATEWAY_PRODUCTION", false),
			SnapBaseURL: strings.TrimSpace(getenv("GATEWAY_SNAP_BASE_URL", "")),
			APIBaseURL:  strings.TrimSpace(getenv("GATEWAY_API_BASE_URL", "")),
		},
		Payment: PaymentConfig{
			TokenTTLHours:         getenvInt("PAYMENT_TOKEN_TTL_HOURS", 24),
			WebhookTimeoutSeconds: getenvInt("PAYMENT_WEBHOOK_TIMEOUT_SECONDS", 30),
			PollIntervalMS:        getenvInt("PAYMENT_POLL_INTERVAL_MS", 3000),
			PollMaxAttempts:       getenvInt("PAYMENT_POLL_MAX_ATTEMPTS", 20),
		},

		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", false),
			RedisPassword:   strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:         getenvInt("REDIS_DB", 0),
			StatusPollRate:  getenvFloat("RATE_LIMIT_STATUS_POLL_RATE", 2),
			StatusPollBurst: getenvInt("RATE_LIMIT_STATUS_POLL_BURST", 10),
		},

		SeedCatalog: getenvBool("SEED_CATALOG", true),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
