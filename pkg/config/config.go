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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Engine   EngineConfig
	Agenda   AgendaConfig
	Jobs     JobsConfig
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

// JWTConfig only covers token verification; token issuance lives in the
// identity service, not here.
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

// EngineConfig tunes the scheduling engine. The spaced-repetition
// coefficients are deliberate defaults rather than hard truths, so every
// one of them is overridable from the environment.
type EngineConfig struct {
	ReviewMultiplier     float64
	InitialEaseFactor    float64
	MinEaseFactor        float64
	FailedEasePenalty    float64
	SuccessRateWeight    float64
	MaxSessionHours      float64
	SkipRebalanceRatio   float64
	ExcessiveBufferRatio float64
	MaxPendingSessions   int
}

// AgendaConfig governs agenda caching behaviour.
type AgendaConfig struct {
	CacheTTL time.Duration
}

// JobsConfig sizes the background plan-generation worker pool.
type JobsConfig struct {
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

	cfg.Engine = EngineConfig{
		ReviewMultiplier:     v.GetFloat64("ENGINE_REVIEW_MULTIPLIER"),
		InitialEaseFactor:    v.GetFloat64("ENGINE_INITIAL_EASE"),
		MinEaseFactor:        v.GetFloat64("ENGINE_MIN_EASE"),
		FailedEasePenalty:    v.GetFloat64("ENGINE_FAILED_EASE_PENALTY"),
		SuccessRateWeight:    v.GetFloat64("ENGINE_SUCCESS_RATE_WEIGHT"),
		MaxSessionHours:      v.GetFloat64("ENGINE_MAX_SESSION_HOURS"),
		SkipRebalanceRatio:   v.GetFloat64("ENGINE_SKIP_REBALANCE_RATIO"),
		ExcessiveBufferRatio: v.GetFloat64("ENGINE_EXCESSIVE_BUFFER_RATIO"),
		MaxPendingSessions:   v.GetInt("ENGINE_MAX_PENDING_SESSIONS"),
	}

	cfg.Agenda = AgendaConfig{
		CacheTTL: parseDuration(v.GetString("AGENDA_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
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
	v.SetDefault("DB_NAME", "studyplan")
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

	v.SetDefault("ENGINE_REVIEW_MULTIPLIER", 2.2)
	v.SetDefault("ENGINE_INITIAL_EASE", 2.5)
	v.SetDefault("ENGINE_MIN_EASE", 1.3)
	v.SetDefault("ENGINE_FAILED_EASE_PENALTY", 0.2)
	v.SetDefault("ENGINE_SUCCESS_RATE_WEIGHT", 0.2)
	v.SetDefault("ENGINE_MAX_SESSION_HOURS", 2.0)
	v.SetDefault("ENGINE_SKIP_REBALANCE_RATIO", 0.2)
	v.SetDefault("ENGINE_EXCESSIVE_BUFFER_RATIO", 0.25)
	v.SetDefault("ENGINE_MAX_PENDING_SESSIONS", 4000)

	v.SetDefault("AGENDA_CACHE_TTL", "5m")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_BUFFER_SIZE", 8)
	v.SetDefault("JOBS_MAX_RETRIES", 1)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
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
