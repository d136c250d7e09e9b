package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Log       LogConfig
	Tracing   TracingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Share     ShareConfig
	Mail      MailConfig
	Reminder  ReminderConfig
	Redis     RedisConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// TLS is enabled when both files are set. ClientCAFile turns on mTLS.
	TLSCertFile  string
	TLSKeyFile   string
	ClientCAFile string
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

type DatabaseConfig struct {
	Host               string
	Port               int
	Name               string
	User               string
	Password           string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level       string
	Format      string
	OutputPath  string
	ServiceName string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type RateLimitConfig struct {
	// Global Rate limit per IP
	RequestsPerSecond float64
	BurstSize         int
	// Auth endpoints have stricter limits
	AuthRequestsPerMinute int
}

type StorageConfig struct {
	Backend        string // "local" | "s3"
	LocalRoot      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3Prefix       string
	MaxUploadBytes int64
}

type ShareConfig struct {
	LinkTTL       time.Duration
	PublicBaseURL string
}

type MailConfig struct {
	Transport    string // "smtp" | "kafka" | "log"
	From         string
	SubjectTag   string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	KafkaBrokers []string
	KafkaTopic   string

	// Circuit breaker around the transport
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

type ReminderConfig struct {
	ScannerEnabled bool
	ScanInterval   time.Duration
	RunTimeout     time.Duration
	LockTTL        time.Duration
	ClaimLease     time.Duration
	BatchSize      int
	LockKey        string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "medvault-api"),
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.0.0"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			TLSCertFile:     getEnv("SERVER_TLS_CERT_FILE", ""),
			TLSKeyFile:      getEnv("SERVER_TLS_KEY_FILE", ""),
			ClientCAFile:    getEnv("SERVER_TLS_CLIENT_CA_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			Name:               getEnv("DB_NAME", "medvault"),
			User:               getEnv("DB_USER", "medvault"),
			Password:           getEnv("DB_PASSWORD", ""),
			SSLMode:            getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime:    getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:    getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQueryThreshold: getEnvDuration("DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          getEnv("JWT_ISSUER", "medvault-api"),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			OutputPath:  getEnv("LOG_OUTPUT", "stdout"),
			ServiceName: getEnv("APP_NAME", "medvault-api"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "medvault-api"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "otel-collector:4318"),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvDuration("CORS_MAX_AGE", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:     getEnvFloat("RATE_LIMIT_RPS", 100),
			BurstSize:             getEnvInt("RATE_LIMIT_BURST", 200),
			AuthRequestsPerMinute: getEnvInt("RATE_LIMIT_AUTH_RPM", 10),
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "local"),
			LocalRoot:      getEnv("STORAGE_LOCAL_ROOT", "./media"),
			S3Bucket:       getEnv("STORAGE_S3_BUCKET", ""),
			S3Region:       getEnv("STORAGE_S3_REGION", "us-east-1"),
			S3Endpoint:     getEnv("STORAGE_S3_ENDPOINT", ""),
			S3Prefix:       getEnv("STORAGE_S3_PREFIX", "prescriptions/"),
			MaxUploadBytes: int64(getEnvInt("STORAGE_MAX_UPLOAD_BYTES", 10*1024*1024)),
		},
		Share: ShareConfig{
			LinkTTL:       getEnvDuration("SHARE_LINK_TTL", 24*time.Hour),
			PublicBaseURL: strings.TrimRight(getEnv("SHARE_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Mail: MailConfig{
			Transport:          getEnv("MAIL_TRANSPORT", "log"),
			From:               getEnv("MAIL_FROM", "noreply@medvault.local"),
			SubjectTag:         getEnv("MAIL_SUBJECT_TAG", "MedVault"),
			SMTPHost:           getEnv("SMTP_HOST", "localhost"),
			SMTPPort:           getEnvInt("SMTP_PORT", 587),
			SMTPUser:           getEnv("SMTP_USER", ""),
			SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
			KafkaBrokers:       getEnvSlice("MAIL_KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:         getEnv("MAIL_KAFKA_TOPIC", "medvault.mail.outbound"),
			BreakerMaxFailures: uint32(getEnvInt("MAIL_BREAKER_MAX_FAILURES", 5)),
			BreakerOpenTimeout: getEnvDuration("MAIL_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Reminder: ReminderConfig{
			ScannerEnabled: getEnvBool("REMINDER_SCANNER_ENABLED", false),
			ScanInterval:   getEnvDuration("REMINDER_SCAN_INTERVAL", time.Minute),
			RunTimeout:     getEnvDuration("REMINDER_RUN_TIMEOUT", 50*time.Second),
			LockTTL:        getEnvDuration("REMINDER_LOCK_TTL", 2*time.Minute),
			ClaimLease:     getEnvDuration("REMINDER_CLAIM_LEASE", 5*time.Minute),
			BatchSize:      getEnvInt("REMINDER_BATCH_SIZE", 200),
			LockKey:        getEnv("REMINDER_LOCK_KEY", "medvault:reminder-scanner"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces production security requirements.
func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.Environment == "production" {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	if cfg.Database.Password == "" && cfg.App.Environment != "development" {
		errs = append(errs, "DB_PASSWORD is required in non-development environments")
	}

	if cfg.Database.SSLMode == "disable" && cfg.App.Environment == "production" {
		errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
	}

	switch cfg.Storage.Backend {
	case "local":
		if cfg.Storage.LocalRoot == "" {
			errs = append(errs, "STORAGE_LOCAL_ROOT is required for the local backend")
		}
	case "s3":
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, "STORAGE_S3_BUCKET is required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND %q is not one of local, s3", cfg.Storage.Backend))
	}

	switch cfg.Mail.Transport {
	case "smtp", "kafka", "log":
	default:
		errs = append(errs, fmt.Sprintf("MAIL_TRANSPORT %q is not one of smtp, kafka, log", cfg.Mail.Transport))
	}

	if cfg.Share.LinkTTL <= 0 {
		errs = append(errs, "SHARE_LINK_TTL must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
