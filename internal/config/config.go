package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEncryptionKey is used when ENCRYPTION_KEY is unset. Never acceptable in production.
const DefaultEncryptionKey = "your-secret-encryption-key-32-chars-long"

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables    DynamoTables
	S3ArchiveBucket string
	EncryptionKey   string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	AllowedOrigins []string // CORS allowed origins
	RateLimit      RateLimit
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Applications         string
	ApplicationServices  string
	VerificationRequests string
	IdentityLocks        string
}

// RateLimit configures the per-credential limiter. When RedisAddr is set the
// shared fixed-window limiter is used; otherwise an in-process token bucket.
type RateLimit struct {
	RPS           float64
	Burst         int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Window        time.Duration
	Max           int
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Applications:         getEnv("DYNAMO_TABLE_APPLICATIONS", "application_onboarding"),
			ApplicationServices:  getEnv("DYNAMO_TABLE_APPLICATION_SERVICES", "application_services"),
			VerificationRequests: getEnv("DYNAMO_TABLE_VERIFICATION_REQUESTS", "auth_verification_requests"),
			IdentityLocks:        getEnv("DYNAMO_TABLE_IDENTITY_LOCKS", "identity_locks"),
		},
		S3ArchiveBucket:   getEnv("S3_ARCHIVE_BUCKET", "verification-archive"),
		EncryptionKey:     getEnv("ENCRYPTION_KEY", DefaultEncryptionKey),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 12)) * time.Hour,
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RateLimit: RateLimit{
			RPS:           getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst:         getEnvInt("RATE_LIMIT_BURST", 10),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			Window:        getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			Max:           getEnvInt("RATE_LIMIT_MAX", 100),
		},
	}
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesDefaultEncryptionKey reports whether ENCRYPTION_KEY fell back to the fixed default.
func (c *Config) UsesDefaultEncryptionKey() bool {
	return c.EncryptionKey == DefaultEncryptionKey
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
