package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL   string
	DBSchema      string
	DBAutoMigrate bool
	DBMaxConns    int32
	DBMinConns    int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, the fingerprint salt MUST be set (>= 16 bytes) and the
	// capability key must be provided explicitly.
	RequireSecrets bool

	PublicBaseURL      string
	DefaultCountryCode string
	OTPTTL             time.Duration
	MaxAttempts        int
	ResendMax          int
	ResendWindow       time.Duration

	NotifyDriver        string
	NotifyChannel       string
	NotifyWorkers       int
	NotifyQueueSize     int
	NotifyLogBodies     bool
	NATSURL             string
	NATSSubjectPrefix   string
	WhatsAppDataDir     string
	ThrottleSweepPeriod time.Duration

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// Notification drivers.
const (
	NotifyDriverLog      = "log"
	NotifyDriverNATS     = "nats"
	NotifyDriverWhatsApp = "whatsapp"
)

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("VALENTINE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("VALENTINE_LOG_LEVEL", "info"),
		LogFormat: EnvString("VALENTINE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("VALENTINE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("VALENTINE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("VALENTINE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("VALENTINE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("VALENTINE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("VALENTINE_DATABASE_URL", ""),
		DBSchema:      EnvString("VALENTINE_DB_SCHEMA", "valentine"),
		DBAutoMigrate: EnvBool("VALENTINE_DB_AUTO_MIGRATE", false),
		DBMaxConns:    EnvInt32("VALENTINE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("VALENTINE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("VALENTINE_READINESS_REQUIRE_DB", false),

		RequireSecrets: EnvBool("VALENTINE_REQUIRE_SECRETS", false),

		PublicBaseURL:      EnvString("VALENTINE_PUBLIC_BASE_URL", "http://localhost:3000"),
		DefaultCountryCode: EnvString("VALENTINE_DEFAULT_COUNTRY_CODE", "254"),
		OTPTTL:             EnvDuration("VALENTINE_OTP_TTL", 5*time.Minute),
		MaxAttempts:        EnvInt("VALENTINE_MAX_ATTEMPTS", 3),
		ResendMax:          EnvInt("VALENTINE_RESEND_MAX", 3),
		ResendWindow:       EnvDuration("VALENTINE_RESEND_WINDOW", 10*time.Minute),

		NotifyDriver:        EnvString("VALENTINE_NOTIFY_DRIVER", NotifyDriverLog),
		NotifyChannel:       EnvString("VALENTINE_NOTIFY_CHANNEL", "whatsapp"),
		NotifyWorkers:       EnvInt("VALENTINE_NOTIFY_WORKERS", 2),
		NotifyQueueSize:     EnvInt("VALENTINE_NOTIFY_QUEUE", 256),
		NotifyLogBodies:     EnvBool("VALENTINE_NOTIFY_LOG_BODIES", false),
		NATSURL:             EnvString("VALENTINE_NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubjectPrefix:   EnvString("VALENTINE_NATS_SUBJECT_PREFIX", "valentine.notify"),
		WhatsAppDataDir:     EnvString("VALENTINE_WHATSAPP_DATA_DIR", "./data/whatsapp"),
		ThrottleSweepPeriod: EnvDuration("VALENTINE_THROTTLE_SWEEP_INTERVAL", time.Minute),

		CORSAllowedOrigins:   EnvCSV("VALENTINE_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("VALENTINE_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("VALENTINE_CORS_MAX_AGE", 600),
	}
}
