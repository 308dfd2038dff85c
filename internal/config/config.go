package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Storage      StorageConfig
	SMTP         SMTPConfig
	Notification NotificationConfig
	RateLimit    RateLimitConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitBytes        int
	CORSAllowedOrigins    string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	EnsureSchema   bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig holds the shared secret guarding staff endpoints.
type AuthConfig struct {
	APISecretToken string
}

// StorageConfig selects and configures the resume blob store.
type StorageConfig struct {
	Driver              string
	Bucket              string
	Region              string
	MinIOEndpoint       string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOUseSSL         bool
	ResumeURLTTLSeconds int
}

// ResumeURLTTL returns the lifetime of presigned download links.
func (s StorageConfig) ResumeURLTTL() time.Duration {
	if s.ResumeURLTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(s.ResumeURLTTLSeconds) * time.Second
}

// SMTPConfig holds outbound email credentials.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
	Sender     string
}

// Enabled reports whether SMTP delivery is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// NotificationConfig controls the asynchronous notification dispatcher.
type NotificationConfig struct {
	AdminEmail     string
	Workers        int
	QueueSize      int
	TimeoutSeconds int
}

// Timeout returns the per-event handler deadline.
func (n NotificationConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// RateLimitConfig bounds public lead submissions per client IP.
type RateLimitConfig struct {
	Submissions   int
	WindowSeconds int
}

// Window returns the fixed window length.
func (r RateLimitConfig) Window() time.Duration {
	if r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "lead-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitBytes:        getEnvAsInt("HTTP_BODY_LIMIT_BYTES", 10<<20),
			CORSAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("DATABASE_URL"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			EnsureSchema:   getEnvAsBool("POSTGRES_ENSURE_SCHEMA", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 300)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 1800)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			APISecretToken: os.Getenv("API_SECRET_TOKEN"),
		},
		Storage: StorageConfig{
			Driver:              strings.ToLower(getEnv("STORAGE_DRIVER", "s3")),
			Bucket:              os.Getenv("S3_BUCKET_NAME"),
			Region:              getEnv("AWS_REGION", "us-east-1"),
			MinIOEndpoint:       os.Getenv("MINIO_ENDPOINT"),
			MinIOAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
			MinIOSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
			MinIOUseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
			ResumeURLTTLSeconds: getEnvAsInt("RESUME_URL_TTL_SECONDS", 3600),
		},
		SMTP: SMTPConfig{
			Host:       os.Getenv("SMTP_HOST"),
			Port:       smtpPort,
			Username:   os.Getenv("SMTP_USERNAME"),
			Password:   os.Getenv("SMTP_PASSWORD"),
			SenderName: getEnv("SENDER_NAME", "Lead Intake"),
			Sender:     getEnv("SENDER_EMAIL", "noreply@example.com"),
		},
		Notification: NotificationConfig{
			AdminEmail:     getEnv("DEFAULT_ADMIN_EMAIL", "admin@example.com"),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 30),
		},
		RateLimit: RateLimitConfig{
			Submissions:   getEnvAsInt("RATE_LIMIT_SUBMISSIONS", 10),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the service cannot start without.
// An empty API_SECRET_TOKEN passes; protected routes then fail closed at request time.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
	}
	switch c.Storage.Driver {
	case "s3":
	case "minio":
		if c.Storage.MinIOEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
