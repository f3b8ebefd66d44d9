// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Mail provider names accepted in MAIL_PROVIDER.
const (
	ProviderLog      = "log"
	ProviderSES      = "ses"
	ProviderPostmark = "postmark"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (idempotency + rate limiting; optional)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Mail
	MailProvider         string // log, ses, or postmark
	MailFrom             string
	MailMaxAttempts      int
	MailRetryBase        time.Duration
	PlatformURL          string
	AWSRegion            string
	PostmarkServerToken  string
	PostmarkAccountToken string

	// Rate limiting
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads configuration from environment variables with development
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		DBHost:    "localhost",
		DBPort:    5432,
		DBUser:    "aviso",
		DBName:    "aviso",
		DBSSLMode: "disable",

		RedisHost: "localhost",
		RedisPort: 6379,

		MailProvider:    ProviderLog,
		MailFrom:        "noreply@aviso.local",
		MailMaxAttempts: 3,
		MailRetryBase:   500 * time.Millisecond,
		PlatformURL:     "http://localhost:3000",
		AWSRegion:       "us-east-1",

		RateLimit:       100,
		RateLimitWindow: 1 * time.Minute,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	if provider := os.Getenv("MAIL_PROVIDER"); provider != "" {
		switch provider {
		case ProviderLog, ProviderSES, ProviderPostmark:
			cfg.MailProvider = provider
		default:
			return nil, fmt.Errorf("invalid MAIL_PROVIDER: %q", provider)
		}
	}

	if from := os.Getenv("MAIL_FROM"); from != "" {
		cfg.MailFrom = from
	}

	if attempts := os.Getenv("MAIL_MAX_ATTEMPTS"); attempts != "" {
		a, err := strconv.Atoi(attempts)
		if err != nil || a < 1 {
			return nil, fmt.Errorf("invalid MAIL_MAX_ATTEMPTS: %q", attempts)
		}
		cfg.MailMaxAttempts = a
	}

	if base := os.Getenv("MAIL_RETRY_BASE_MS"); base != "" {
		ms, err := strconv.Atoi(base)
		if err != nil || ms < 1 {
			return nil, fmt.Errorf("invalid MAIL_RETRY_BASE_MS: %q", base)
		}
		cfg.MailRetryBase = time.Duration(ms) * time.Millisecond
	}

	if url := os.Getenv("PLATFORM_URL"); url != "" {
		cfg.PlatformURL = url
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.AWSRegion = region
	}

	if token := os.Getenv("POSTMARK_SERVER_TOKEN"); token != "" {
		cfg.PostmarkServerToken = token
	}

	if token := os.Getenv("POSTMARK_ACCOUNT_TOKEN"); token != "" {
		cfg.PostmarkAccountToken = token
	}

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil || l < 1 {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %q", limit)
		}
		cfg.RateLimit = l
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW_SEC"); window != "" {
		s, err := strconv.Atoi(window)
		if err != nil || s < 1 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SEC: %q", window)
		}
		cfg.RateLimitWindow = time.Duration(s) * time.Second
	}

	return cfg, nil
}
