package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
// It follows the 12-factor app methodology by prioritizing environment variables.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Payment   PaymentConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Archive   ArchiveConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PaymentConfig describes the policy a payment proof must satisfy and the
// external services used to confirm it.
type PaymentConfig struct {
	// Asset is the contract identifier of the accepted token.
	Asset string
	// Network is the chain the payment must settle on.
	Network string
	// Scheme is the accepted x402 payment scheme.
	Scheme string
	// MinAmount is the price of one message, in the asset's base units.
	MinAmount uint64
	// RelayURL is the base URL of the settlement relay.
	RelayURL string
	// IndexerURL is the base URL of the chain indexer used by the recovery path.
	IndexerURL string
	// SettleTimeout bounds a single relay settlement call.
	SettleTimeout time.Duration
	// RequirementsTTL is how long issued payment requirements stay valid.
	RequirementsTTL time.Duration
	// RedemptionTTL is the retention window of redemption records.
	RedemptionTTL time.Duration
	// MaxContentLength bounds message content, in bytes.
	MaxContentLength int
	// MaxSettlesPerSecond caps outbound settle submissions to the relay.
	MaxSettlesPerSecond float64
}

// RateLimitConfig holds the sliding-window policies for the free write paths.
type RateLimitConfig struct {
	Window            time.Duration
	RegisteredLimit   int
	UnregisteredLimit int
	// FailedLimit throttles requests that failed validation, separately
	// from well-formed traffic.
	FailedLimit int
}

type AdminConfig struct {
	JWTSecret string
	// PasswordHash is the bcrypt hash of the operator password.
	PasswordHash string
	TokenTTL     time.Duration
}

// ArchiveConfig configures the optional S3 proof archive. Disabled when
// Bucket is empty.
type ArchiveConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// LoadConfig loads configuration from environment variables.
// Defaults can be set here if needed.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Payment: PaymentConfig{
			Asset:               getEnv("PAYMENT_ASSET", "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE.sbtc-token"),
			Network:             getEnv("PAYMENT_NETWORK", "stacks-mainnet"),
			Scheme:              getEnv("PAYMENT_SCHEME", "exact"),
			MinAmount:           uint64(getEnvAsInt("PAYMENT_MIN_AMOUNT", 1000)),
			RelayURL:            getEnv("RELAY_URL", "https://relay.agentpost.dev"),
			IndexerURL:          getEnv("INDEXER_URL", "https://api.hiro.so"),
			SettleTimeout:       getEnvAsDuration("SETTLE_TIMEOUT", 30*time.Second),
			RequirementsTTL:     getEnvAsDuration("REQUIREMENTS_TTL", 5*time.Minute),
			RedemptionTTL:       getEnvAsDuration("REDEMPTION_TTL", 30*24*time.Hour),
			MaxContentLength:    getEnvAsInt("MAX_CONTENT_LENGTH", 10000),
			MaxSettlesPerSecond: float64(getEnvAsInt("MAX_SETTLES_PER_SECOND", 5)),
		},
		RateLimit: RateLimitConfig{
			Window:            getEnvAsDuration("RATE_WINDOW", time.Minute),
			RegisteredLimit:   getEnvAsInt("RATE_REGISTERED_LIMIT", 60),
			UnregisteredLimit: getEnvAsInt("RATE_UNREGISTERED_LIMIT", 10),
			FailedLimit:       getEnvAsInt("RATE_FAILED_LIMIT", 5),
		},
		Admin: AdminConfig{
			JWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			TokenTTL:     getEnvAsDuration("ADMIN_TOKEN_TTL", time.Hour),
		},
		Archive: ArchiveConfig{
			Region:    getEnv("ARCHIVE_S3_REGION", ""),
			Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
			AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
			Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
