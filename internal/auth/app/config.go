package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/contacts/pkg/httpx"
	"github.com/aussiebroadwan/contacts/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MailLog   = "log"
	MailSMTP  = "smtp"
	MailKafka = "kafka"
)

type Config struct {
	SecretKey  string // Required outside dev: HMAC secret for every token
	Algorithm  string // HS256 or HS512 (default: HS256)
	Issuer     string // iss claim (default: contacts)
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	EmailTTL   time.Duration

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseFile   string // SQLite file (default: ./contacts.db)
	DatabaseURL    string // PostgreSQL connection string
	PepperFile     string // Password pepper (default: ./pepper)

	RedisAddr     string // Enables the user cache when set
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MailTransport    string // log, smtp or kafka (default: log)
	MailServer       string
	MailPort         int
	MailUsername     string
	MailPassword     string
	MailFrom         string
	MailSSLTLS       bool
	MailKafkaBrokers []string
	MailKafkaTopic   string
	EmailQueueSize   int

	S3Bucket        string // Enables avatar uploads when set
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	BaseURL        string   // Prefix for links in emails; required outside dev
	BannedIPs      []string // Rejected with 403
	TrustedProxies []string // CIDRs allowed to set X-Forwarded-For
	CORSOrigins    []string

	Env                  string        // dev, staging, prod (default: dev)
	LogLevel             string        // debug, info, warn, error (default: info)
	LogFormat            string        // json, text (default: json)
	Port                 int           // default: 8080
	ShutdownGracePeriod  time.Duration // default: 10s
	HousekeepingInterval time.Duration // default: 1h
	UnconfirmedRetention time.Duration // default: 7 days
}

func LoadConfig() Config {
	return Config{
		SecretKey:  os.Getenv("CONTACTS_SECRET_KEY"),
		Algorithm:  getEnvOrDefault("CONTACTS_ALGORITHM", jwtx.AlgHS256),
		Issuer:     getEnvOrDefault("CONTACTS_ISSUER", "contacts"),
		AccessTTL:  getEnvDurationOrDefault("CONTACTS_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("CONTACTS_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		EmailTTL:   getEnvDurationOrDefault("CONTACTS_EMAIL_TTL", jwtx.DefaultEmailTokenTTL),

		DatabaseDriver: getEnvOrDefault("CONTACTS_DATABASE_DRIVER", DriverSQLite),
		DatabaseFile:   getEnvOrDefault("CONTACTS_DATABASE_FILE", "contacts.db"),
		DatabaseURL:    os.Getenv("CONTACTS_DATABASE_URL"),
		PepperFile:     getEnvOrDefault("CONTACTS_PEPPER_FILE", "pepper"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		CacheTTL:      getEnvDurationOrDefault("CONTACTS_CACHE_TTL", 5*time.Minute),

		MailTransport:    getEnvOrDefault("MAIL_TRANSPORT", MailLog),
		MailServer:       os.Getenv("MAIL_SERVER"),
		MailPort:         getEnvIntOrDefault("MAIL_PORT", 587),
		MailUsername:     os.Getenv("MAIL_USERNAME"),
		MailPassword:     os.Getenv("MAIL_PASSWORD"),
		MailFrom:         os.Getenv("MAIL_FROM"),
		MailSSLTLS:       getEnvBoolOrDefault("MAIL_SSL_TLS", false),
		MailKafkaBrokers: getEnvList("MAIL_KAFKA_BROKERS"),
		MailKafkaTopic:   getEnvOrDefault("MAIL_KAFKA_TOPIC", "contacts.emails"),
		EmailQueueSize:   getEnvIntOrDefault("EMAIL_QUEUE_SIZE", 128),

		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        os.Getenv("S3_REGION"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),

		BaseURL:        os.Getenv("CONTACTS_BASE_URL"),
		BannedIPs:      getEnvList("BANNED_IPS"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		CORSOrigins:    getEnvList("CORS_ORIGINS"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		UnconfirmedRetention: getEnvDurationOrDefault("UNCONFIRMED_RETENTION", 7*24*time.Hour),
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.SecretKey == "" && c.Env != "dev" {
		errs = append(errs, errors.New("CONTACTS_SECRET_KEY is required outside dev"))
	}
	if c.SecretKey != "" && len(c.SecretKey) < 32 {
		errs = append(errs, errors.New("CONTACTS_SECRET_KEY must be at least 32 bytes"))
	}
	switch c.Algorithm {
	case jwtx.AlgHS256, jwtx.AlgHS512:
	default:
		errs = append(errs, fmt.Errorf("CONTACTS_ALGORITHM %q is not supported", c.Algorithm))
	}
	for name, ttl := range map[string]time.Duration{
		"CONTACTS_ACCESS_TTL":  c.AccessTTL,
		"CONTACTS_REFRESH_TTL": c.RefreshTTL,
		"CONTACTS_EMAIL_TTL":   c.EmailTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("CONTACTS_DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("CONTACTS_DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}

	switch c.MailTransport {
	case MailLog:
	case MailSMTP:
		if c.MailServer == "" || c.MailFrom == "" {
			errs = append(errs, errors.New("MAIL_SERVER and MAIL_FROM are required for the smtp transport"))
		}
	case MailKafka:
		if len(c.MailKafkaBrokers) == 0 || c.MailKafkaTopic == "" {
			errs = append(errs, errors.New("MAIL_KAFKA_BROKERS and MAIL_KAFKA_TOPIC are required for the kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_TRANSPORT %q is not supported", c.MailTransport))
	}

	// Without a fixed base URL, email links would be built from the
	// request's Host header, which any client controls.
	switch {
	case c.BaseURL == "" && c.Env != "dev":
		errs = append(errs, errors.New("CONTACTS_BASE_URL is required outside dev"))
	case c.BaseURL != "":
		if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("CONTACTS_BASE_URL %q must be an absolute http(s) URL", c.BaseURL))
		}
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
