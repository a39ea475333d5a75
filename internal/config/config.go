package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

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

	Messaging MessagingConfig
	Payment   PaymentConfig
	Mailbox   MailboxConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	AI        AIConfig
}

// MessagingConfig covers the inbound messaging (WhatsApp Cloud style) webhook.
type MessagingConfig struct {
	VerifyToken   string
	WebhookSecret string
}

// PaymentConfig covers the payment provider webhook.
type PaymentConfig struct {
	WebhookToken string
}

// MailboxConfig covers the Gmail-style mailbox API used by the reply poller.
type MailboxConfig struct {
	BaseURL        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration
}

// WorkerConfig covers batch worker endpoints and self-chaining.
type WorkerConfig struct {
	AuthToken      string
	SelfBaseURL    string
	BatchSize      int
	ReplyPollDelay time.Duration
	EnrichDelay    time.Duration
}

// RateLimitConfig covers the redis-backed webhook ingest limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	IngestRate    float64
	IngestBurst   int
}

// AIConfig covers the completion provider used for lead enrichment.
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// SMTPConfig covers outbound operator notifications (quota alerts).
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AlertTo  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "reachway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "reachway"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),

		Messaging: MessagingConfig{
			VerifyToken:   strings.TrimSpace(getenv("MESSAGING_VERIFY_TOKEN", "")),
			WebhookSecret: strings.TrimSpace(getenv("MESSAGING_WEBHOOK_SECRET", "")),
		},
		Payment: PaymentConfig{
			WebhookToken: strings.TrimSpace(getenv("PAYMENT_WEBHOOK_TOKEN", "")),
		},
		Mailbox: MailboxConfig{
			BaseURL:        getenv("MAILBOX_API_BASE_URL", "https://gmail.googleapis.com/gmail/v1"),
			TokenURL:       getenv("MAILBOX_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			ClientID:       strings.TrimSpace(getenv("MAILBOX_CLIENT_ID", "")),
			ClientSecret:   strings.TrimSpace(getenv("MAILBOX_CLIENT_SECRET", "")),
			RequestTimeout: getenvDuration("MAILBOX_REQUEST_TIMEOUT", 10*time.Second),
		},
		Worker: WorkerConfig{
			AuthToken:      strings.TrimSpace(getenv("WORKER_AUTH_TOKEN", "")),
			SelfBaseURL:    strings.TrimSpace(getenv("WORKER_SELF_BASE_URL", "")),
			BatchSize:      getenvInt("WORKER_BATCH_SIZE", 25),
			ReplyPollDelay: getenvDuration("WORKER_REPLY_POLL_DELAY", 500*time.Millisecond),
			EnrichDelay:    getenvDuration("WORKER_ENRICH_DELAY", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestRate:    getenvFloat("RATE_LIMIT_INGEST_RATE", 20),
			IngestBurst:   getenvInt("RATE_LIMIT_INGEST_BURST", 40),
		},
		AI: AIConfig{
			BaseURL:        getenv("AI_API_BASE_URL", ""),
			APIKey:         strings.TrimSpace(getenv("AI_API_KEY", "")),
			Model:          getenv("AI_MODEL", "gpt-4o-mini"),
			RequestTimeout: getenvDuration("AI_REQUEST_TIMEOUT", 30*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "alerts@reachway.app"),
			AlertTo:  getenv("SMTP_ALERT_TO", ""),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
