package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Admission     AdmissionConfig
	ProposalCache ProposalCacheConfig
	Notifications NotificationConfig
	Sweeper       SweeperConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	SQLitePath        string
	SQLiteBusyTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdmissionConfig bounds how long a claim may wait on the store.
type AdmissionConfig struct {
	StoreTimeout time.Duration
	RetryOnce    bool
}

// ProposalCacheConfig governs caching of the anonymous proposal listing.
type ProposalCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// NotificationConfig configures the mail dispatch queue.
type NotificationConfig struct {
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
	SendGridAPIKey string
	FromAddress    string
	FromName       string
}

// SweeperConfig toggles the expired-shift cron job.
type SweeperConfig struct {
	Enabled  bool
	Schedule string
	Grace    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:            normaliseDriver(v.GetString("DB_DRIVER")),
		Host:              v.GetString("DB_HOST"),
		Port:              v.GetInt("DB_PORT"),
		User:              v.GetString("DB_USER"),
		Password:          v.GetString("DB_PASSWORD"),
		Name:              v.GetString("DB_NAME"),
		SSLMode:           v.GetString("DB_SSL_MODE"),
		MaxOpenConns:      v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:      v.GetInt("DB_MAX_IDLE_CONNS"),
		SQLitePath:        v.GetString("SQLITE_PATH"),
		SQLiteBusyTimeout: parseDuration(v.GetString("SQLITE_BUSY_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admission = AdmissionConfig{
		StoreTimeout: parseDuration(v.GetString("ADMISSION_STORE_TIMEOUT"), 5*time.Second),
		RetryOnce:    v.GetBool("ADMISSION_RETRY_ONCE"),
	}

	cfg.ProposalCache = ProposalCacheConfig{
		Enabled: v.GetBool("ENABLE_PROPOSAL_CACHE"),
		TTL:     parseDuration(v.GetString("PROPOSAL_CACHE_TTL"), time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Workers:        v.GetInt("NOTIFY_WORKERS"),
		MaxRetries:     v.GetInt("NOTIFY_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("ENABLE_SHIFT_SWEEPER"),
		Schedule: v.GetString("SHIFT_SWEEPER_SCHEDULE"),
		Grace:    parseDuration(v.GetString("SHIFT_SWEEPER_GRACE"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "shiftboard")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SQLITE_PATH", "./db/shiftboard.sqlite")
	v.SetDefault("SQLITE_BUSY_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMISSION_STORE_TIMEOUT", "5s")
	v.SetDefault("ADMISSION_RETRY_ONCE", true)

	v.SetDefault("ENABLE_PROPOSAL_CACHE", false)
	v.SetDefault("PROPOSAL_CACHE_TTL", "1m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@shiftboard.local")
	v.SetDefault("MAIL_FROM_NAME", "Shiftboard")

	v.SetDefault("ENABLE_SHIFT_SWEEPER", false)
	v.SetDefault("SHIFT_SWEEPER_SCHEDULE", "0 15 3 * * *")
	v.SetDefault("SHIFT_SWEEPER_GRACE", "24h")
}

func normaliseDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return DriverPostgres
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
