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

	OTLPEndpoint  string
	Observability ObservabilityConfig

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

	Xendit       XenditConfig
	Fulfillment  FulfillmentConfig
	Redis        RedisConfig
	Mailketing   MailketingConfig
	Email        EmailConfig
	Starsender   StarsenderConfig
	OneSignal    OneSignalConfig
	Notification NotificationConfig

	RevenueConfigPath string
}

// ObservabilityConfig carries the logging and OTel knobs. The exporter
// endpoint stays on Config.OTLPEndpoint.
type ObservabilityConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// XenditConfig controls inbound callback verification.
type XenditConfig struct {
	WebhookToken string
	// Verification is one of VerificationHMAC, VerificationToken or VerificationSkip.
	Verification string
}

const (
	VerificationHMAC  = "hmac"
	VerificationToken = "token"
	VerificationSkip  = "skip"
)

type FulfillmentConfig struct {
	TaskTimeout     time.Duration
	ExternalTimeout time.Duration
	ResumeAfter     time.Duration
	LockTTL         time.Duration
	SweepEnabled    bool
	SweepInterval   time.Duration
	SweepBatchSize  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type MailketingConfig struct {
	APIToken string
	BaseURL  string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type StarsenderConfig struct {
	APIKey   string
	BaseURL  string
	DeviceID string
}

type OneSignalConfig struct {
	AppID  string
	APIKey string
}

type NotificationConfig struct {
	WorkerEnabled bool
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "eksporyuk"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "eksporyuk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Xendit: XenditConfig{
			WebhookToken: strings.TrimSpace(getenv("XENDIT_WEBHOOK_TOKEN", "")),
			Verification: normalizeVerification(getenv("XENDIT_WEBHOOK_VERIFICATION", VerificationHMAC)),
		},
		Fulfillment: FulfillmentConfig{
			TaskTimeout:     getenvDuration("FULFILLMENT_TASK_TIMEOUT", 15*time.Second),
			ExternalTimeout: getenvDuration("FULFILLMENT_EXTERNAL_TIMEOUT", 5*time.Second),
			ResumeAfter:     getenvDuration("FULFILLMENT_RESUME_AFTER", 5*time.Minute),
			LockTTL:         getenvDuration("FULFILLMENT_LOCK_TTL", 2*time.Minute),
			SweepEnabled:    getenvBool("FULFILLMENT_SWEEP_ENABLED", true),
			SweepInterval:   getenvDuration("FULFILLMENT_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:  getenvInt("FULFILLMENT_SWEEP_BATCH_SIZE", 25),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Mailketing: MailketingConfig{
			APIToken: strings.TrimSpace(getenv("MAILKETING_API_TOKEN", "")),
			BaseURL:  getenv("MAILKETING_BASE_URL", "https://api.mailketing.co.id/api/v1"),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@eksporyuk.com"),
		},
		Starsender: StarsenderConfig{
			APIKey:   strings.TrimSpace(getenv("STARSENDER_API_KEY", "")),
			BaseURL:  getenv("STARSENDER_BASE_URL", "https://api.starsender.online/api"),
			DeviceID: strings.TrimSpace(getenv("STARSENDER_DEVICE_ID", "")),
		},
		OneSignal: OneSignalConfig{
			AppID:  strings.TrimSpace(getenv("ONESIGNAL_APP_ID", "")),
			APIKey: strings.TrimSpace(getenv("ONESIGNAL_API_KEY", "")),
		},
		Notification: NotificationConfig{
			WorkerEnabled: getenvBool("NOTIFY_WORKER_ENABLED", true),
			PollInterval:  getenvDuration("NOTIFY_POLL_INTERVAL", 5*time.Second),
			BatchSize:     getenvInt("NOTIFY_BATCH_SIZE", 50),
			MaxAttempts:   getenvInt("NOTIFY_MAX_ATTEMPTS", 8),
		},
		RevenueConfigPath: strings.TrimSpace(getenv("REVENUE_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeVerification(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case VerificationToken:
		return VerificationToken
	case VerificationSkip:
		return VerificationSkip
	default:
		return VerificationHMAC
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

// getenvDuration accepts Go durations ("15s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}
