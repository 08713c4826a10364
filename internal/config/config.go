// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"agora/internal/validation"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port     string `mapstructure:"PORT" yaml:"port"`
	Env      string `mapstructure:"APP_ENV" yaml:"app_env"`
	LogLevel string `mapstructure:"LOG_LEVEL" yaml:"log_level"`

	DBDriver          string `mapstructure:"DB_DRIVER" yaml:"db_driver"`
	DBHost            string `mapstructure:"DB_HOST" yaml:"db_host"`
	DBPort            string `mapstructure:"DB_PORT" yaml:"db_port"`
	DBUser            string `mapstructure:"DB_USER" yaml:"db_user"`
	DBPassword        string `mapstructure:"DB_PASSWORD" yaml:"-"`
	DBName            string `mapstructure:"DB_NAME" yaml:"db_name"`
	DBSSLMode         string `mapstructure:"DB_SSLMODE" yaml:"db_sslmode"`
	SQLitePath        string `mapstructure:"SQLITE_PATH" yaml:"sqlite_path"`
	DBMaxOpenConns    int    `mapstructure:"DB_MAX_OPEN_CONNS" yaml:"db_max_open_conns"`
	RedisURL          string `mapstructure:"REDIS_URL" yaml:"redis_url"`
	JWTSecret         string `mapstructure:"JWT_SECRET" yaml:"-"`
	FeatureFlags      string `mapstructure:"FEATURE_FLAGS" yaml:"feature_flags"`
	AllowedOrigins    string `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	SessionCookie     string `mapstructure:"SESSION_COOKIE_NAME" yaml:"session_cookie_name"`
	SessionMaxAgeDays int    `mapstructure:"SESSION_MAX_AGE_DAYS" yaml:"session_max_age_days"`

	PostTitleMax        int `mapstructure:"POST_TITLE_MAX" yaml:"post_title_max"`
	PostBodyMax         int `mapstructure:"POST_BODY_MAX" yaml:"post_body_max"`
	CommentBodyMax      int `mapstructure:"COMMENT_BODY_MAX" yaml:"comment_body_max"`
	BoardNameMax        int `mapstructure:"BOARD_NAME_MAX" yaml:"board_name_max"`
	BoardDescriptionMax int `mapstructure:"BOARD_DESCRIPTION_MAX" yaml:"board_description_max"`

	ToggleMaxAttempts       int `mapstructure:"TOGGLE_MAX_ATTEMPTS" yaml:"toggle_max_attempts"`
	ToggleRetryBaseMS       int `mapstructure:"TOGGLE_RETRY_BASE_MS" yaml:"toggle_retry_base_ms"`
	InvalidationTimeoutMS   int `mapstructure:"INVALIDATION_TIMEOUT_MS" yaml:"invalidation_timeout_ms"`
	CommentsCacheTTLSeconds int `mapstructure:"COMMENTS_CACHE_TTL_SECONDS" yaml:"comments_cache_ttl_seconds"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED" yaml:"tracing_enabled"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER" yaml:"tracing_exporter"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT" yaml:"otlp_endpoint"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO" yaml:"tracing_sample_ratio"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars and defaults are enough to boot.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(viper.GetViper())

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	limits := validation.DefaultLimits()

	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "agora")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "agora.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("FEATURE_FLAGS", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("SESSION_COOKIE_NAME", "anonymous_session_id")
	v.SetDefault("SESSION_MAX_AGE_DAYS", 30)
	v.SetDefault("POST_TITLE_MAX", limits.PostTitleMax)
	v.SetDefault("POST_BODY_MAX", limits.PostBodyMax)
	v.SetDefault("COMMENT_BODY_MAX", limits.CommentBodyMax)
	v.SetDefault("BOARD_NAME_MAX", limits.BoardNameMax)
	v.SetDefault("BOARD_DESCRIPTION_MAX", limits.BoardDescriptionMax)
	v.SetDefault("TOGGLE_MAX_ATTEMPTS", 3)
	v.SetDefault("TOGGLE_RETRY_BASE_MS", 10)
	v.SetDefault("INVALIDATION_TIMEOUT_MS", 500)
	v.SetDefault("COMMENTS_CACHE_TTL_SECONDS", 60)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		return errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite")
	}
	if c.ToggleMaxAttempts < 1 {
		return errors.New("TOGGLE_MAX_ATTEMPTS must be at least 1")
	}
	if c.SessionMaxAgeDays < 1 {
		return errors.New("SESSION_MAX_AGE_DAYS must be at least 1")
	}
	for name, v := range map[string]int{
		"POST_TITLE_MAX":        c.PostTitleMax,
		"POST_BODY_MAX":         c.PostBodyMax,
		"COMMENT_BODY_MAX":      c.CommentBodyMax,
		"BOARD_NAME_MAX":        c.BoardNameMax,
		"BOARD_DESCRIPTION_MAX": c.BoardDescriptionMax,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "sqlite" {
			return errors.New("DB_DRIVER=sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}

// ContentLimits returns the configured length bounds for user text.
func (c *Config) ContentLimits() validation.Limits {
	return validation.Limits{
		PostTitleMax:        c.PostTitleMax,
		PostBodyMax:         c.PostBodyMax,
		CommentBodyMax:      c.CommentBodyMax,
		BoardNameMax:        c.BoardNameMax,
		BoardDescriptionMax: c.BoardDescriptionMax,
	}
}

// SessionMaxAge is the lifetime of a freshly minted anonymous session cookie.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeDays) * 24 * time.Hour
}

// ToggleRetryBase is the initial backoff interval between conflicting toggle attempts.
func (c *Config) ToggleRetryBase() time.Duration {
	return time.Duration(c.ToggleRetryBaseMS) * time.Millisecond
}

// InvalidationTimeout bounds a single dispatch to the invalidation sink.
func (c *Config) InvalidationTimeout() time.Duration {
	return time.Duration(c.InvalidationTimeoutMS) * time.Millisecond
}

// CommentsCacheTTL is how long a rendered comment thread stays cached.
func (c *Config) CommentsCacheTTL() time.Duration {
	return time.Duration(c.CommentsCacheTTLSeconds) * time.Second
}

// DatabaseDSN builds the postgres DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
