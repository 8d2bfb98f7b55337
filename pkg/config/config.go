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

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Payments       PaymentsConfig
	Reminders      RemindersConfig
	Reconciliation ReconciliationConfig
	Audit          AuditConfig
	Idempotency    IdempotencyConfig
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

// PaymentsConfig tunes the payment processor.
type PaymentsConfig struct {
	ReferencePrefix string
	// MinPartialAmount is carried for configuration surface compatibility;
	// the processor settles full balance amounts only.
	MinPartialAmount float64
	MaxGroupSize     int
}

// RemindersConfig supplies defaults for on-demand reminder runs.
type RemindersConfig struct {
	DaysThreshold    int
	IncludeOverdue   bool
	UpcomingTemplate string
	OverdueTemplate  string
	MaxBatchSize     int
}

// ReconciliationConfig gates the duplicate-student merge endpoint.
type ReconciliationConfig struct {
	Enabled bool
}

// AuditConfig tunes the asynchronous activity log sink.
type AuditConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
}

// IdempotencyConfig controls the replay-suppression token store.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

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
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Payments = PaymentsConfig{
		ReferencePrefix:  v.GetString("PAYMENTS_REFERENCE_PREFIX"),
		MinPartialAmount: v.GetFloat64("PAYMENTS_MIN_PARTIAL_AMOUNT"),
		MaxGroupSize:     v.GetInt("PAYMENTS_MAX_GROUP_SIZE"),
	}

	cfg.Reminders = RemindersConfig{
		DaysThreshold:    v.GetInt("REMINDERS_DAYS_THRESHOLD"),
		IncludeOverdue:   v.GetBool("REMINDERS_INCLUDE_OVERDUE"),
		UpcomingTemplate: v.GetString("REMINDERS_UPCOMING_TEMPLATE"),
		OverdueTemplate:  v.GetString("REMINDERS_OVERDUE_TEMPLATE"),
		MaxBatchSize:     v.GetInt("REMINDERS_MAX_BATCH_SIZE"),
	}

	cfg.Reconciliation = ReconciliationConfig{
		Enabled: v.GetBool("ENABLE_RECONCILIATION"),
	}

	cfg.Audit = AuditConfig{
		Enabled:    v.GetBool("ENABLE_AUDIT_LOG"),
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER_SIZE"),
	}

	cfg.Idempotency = IdempotencyConfig{
		Enabled: v.GetBool("ENABLE_IDEMPOTENCY_KEYS"),
		TTL:     parseDuration(v.GetString("IDEMPOTENCY_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_fees")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PAYMENTS_REFERENCE_PREFIX", "PAY")
	v.SetDefault("PAYMENTS_MIN_PARTIAL_AMOUNT", 0)
	v.SetDefault("PAYMENTS_MAX_GROUP_SIZE", 50)

	v.SetDefault("REMINDERS_DAYS_THRESHOLD", 7)
	v.SetDefault("REMINDERS_INCLUDE_OVERDUE", true)
	v.SetDefault("REMINDERS_UPCOMING_TEMPLATE", "Your {type} of {amount} is due in {days} day(s).")
	v.SetDefault("REMINDERS_OVERDUE_TEMPLATE", "Your {type} of {amount} is {days} day(s) overdue.")
	v.SetDefault("REMINDERS_MAX_BATCH_SIZE", 500)

	v.SetDefault("ENABLE_RECONCILIATION", true)

	v.SetDefault("ENABLE_AUDIT_LOG", true)
	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER_SIZE", 64)

	v.SetDefault("ENABLE_IDEMPOTENCY_KEYS", true)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
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
