package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
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
	Scheduler     SchedulerConfig
	Retry         RetryConfig
	Notifications NotificationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig carries the product constants of the booking engine.
type SchedulerConfig struct {
	InitialWeeks         int
	HorizonWeeks         int
	DefaultTimezone      string
	DefaultHorizonDays   int
	DefaultMinNotice     time.Duration
	StoreTimeout         time.Duration
	AvailabilityCacheTTL time.Duration
}

// RetryConfig holds the call-site retry policies for transient store failures.
type RetryConfig struct {
	CriticalAttempts   int
	CriticalBackoff    time.Duration
	BestEffortAttempts int
	BestEffortBackoff  time.Duration
	MaxBackoff         time.Duration
}

// NotificationConfig sizes the fire-and-forget notification worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = SchedulerConfig{
		InitialWeeks:         positiveInt(v.GetInt("SCHEDULER_INITIAL_WEEKS"), 4),
		HorizonWeeks:         positiveInt(v.GetInt("SCHEDULER_HORIZON_WEEKS"), 12),
		DefaultTimezone:      v.GetString("SCHEDULER_DEFAULT_TIMEZONE"),
		DefaultHorizonDays:   positiveInt(v.GetInt("SCHEDULER_BOOKING_HORIZON_DAYS"), 90),
		DefaultMinNotice:     parseDuration(v.GetString("SCHEDULER_MIN_NOTICE"), 0),
		StoreTimeout:         parseDuration(v.GetString("SCHEDULER_STORE_TIMEOUT"), 5*time.Second),
		AvailabilityCacheTTL: parseDuration(v.GetString("AVAILABILITY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Retry = RetryConfig{
		CriticalAttempts:   positiveInt(v.GetInt("RETRY_CRITICAL_ATTEMPTS"), 3),
		CriticalBackoff:    parseDuration(v.GetString("RETRY_CRITICAL_BACKOFF"), 100*time.Millisecond),
		BestEffortAttempts: positiveInt(v.GetInt("RETRY_BEST_EFFORT_ATTEMPTS"), 2),
		BestEffortBackoff:  parseDuration(v.GetString("RETRY_BEST_EFFORT_BACKOFF"), 50*time.Millisecond),
		MaxBackoff:         parseDuration(v.GetString("RETRY_MAX_BACKOFF"), 2*time.Second),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    positiveInt(v.GetInt("NOTIFICATION_WORKERS"), 2),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: positiveInt(v.GetInt("NOTIFICATION_MAX_RETRIES"), 3),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutor_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_INITIAL_WEEKS", 4)
	v.SetDefault("SCHEDULER_HORIZON_WEEKS", 12)
	v.SetDefault("SCHEDULER_DEFAULT_TIMEZONE", "UTC")
	v.SetDefault("SCHEDULER_BOOKING_HORIZON_DAYS", 90)
	v.SetDefault("SCHEDULER_MIN_NOTICE", "0s")
	v.SetDefault("SCHEDULER_STORE_TIMEOUT", "5s")
	v.SetDefault("AVAILABILITY_CACHE_TTL", "5m")

	v.SetDefault("RETRY_CRITICAL_ATTEMPTS", 3)
	v.SetDefault("RETRY_CRITICAL_BACKOFF", "100ms")
	v.SetDefault("RETRY_BEST_EFFORT_ATTEMPTS", 2)
	v.SetDefault("RETRY_BEST_EFFORT_BACKOFF", "50ms")
	v.SetDefault("RETRY_MAX_BACKOFF", "2s")

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "1s")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
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

func positiveInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
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
