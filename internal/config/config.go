// Package config provides application configuration loading and management.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	CredentialKey  string `mapstructure:"CREDENTIAL_KEY"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	DataDir        string `mapstructure:"DATA_DIR"`
	LogFile        string `mapstructure:"LOG_FILE"`

	// Pipeline tuning.
	SimilarityThreshold float64 `mapstructure:"SIMILARITY_THRESHOLD"`
	TopicRetryBudget    int     `mapstructure:"TOPIC_RETRY_BUDGET"`
	TopicPool           string  `mapstructure:"TOPIC_POOL"`

	// Upstream API endpoints. Per-user API keys live in user settings; these
	// select the OpenAI-compatible endpoint and models.
	OpenAIBaseURL   string `mapstructure:"OPENAI_BASE_URL"`
	CompletionModel string `mapstructure:"COMPLETION_MODEL"`
	EmbeddingModel  string `mapstructure:"EMBEDDING_MODEL"`

	// Tracing. Disabled by default; the stdout exporter is for local use.
	TracingEnabled    bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter   string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint      string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRate float64 `mapstructure:"TRACING_SAMPLE_RATE"`

	// Shared mail relay for backup notifications.
	MailServer        string `mapstructure:"MAIL_SERVER"`
	MailPort          int    `mapstructure:"MAIL_PORT"`
	MailUseTLS        bool   `mapstructure:"MAIL_USE_TLS"`
	MailUsername      string `mapstructure:"MAIL_USERNAME"`
	MailPassword      string `mapstructure:"MAIL_PASSWORD"`
	MailDefaultSender string `mapstructure:"MAIL_DEFAULT_SENDER"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8460")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "blogforge")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("DATA_DIR", "user_data")
	viper.SetDefault("LOG_FILE", "")
	viper.SetDefault("SIMILARITY_THRESHOLD", 0.85)
	viper.SetDefault("TOPIC_RETRY_BUDGET", 5)
	viper.SetDefault("TOPIC_POOL", "")
	viper.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	viper.SetDefault("COMPLETION_MODEL", "gpt-4o-mini")
	viper.SetDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATE", 1.0)
	viper.SetDefault("MAIL_SERVER", "")
	viper.SetDefault("MAIL_PORT", 587)
	viper.SetDefault("MAIL_USE_TLS", true)
	viper.SetDefault("MAIL_USERNAME", "")
	viper.SetDefault("MAIL_PASSWORD", "")
	viper.SetDefault("MAIL_DEFAULT_SENDER", "")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.CredentialKey == "" {
		return errors.New("CREDENTIAL_KEY is required (base64-encoded 32-byte key)")
	}
	if key, err := base64.StdEncoding.DecodeString(c.CredentialKey); err != nil || len(key) != 32 {
		return errors.New("CREDENTIAL_KEY must be a base64-encoded 32-byte key")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return errors.New("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.TopicRetryBudget < 1 {
		return errors.New("TOPIC_RETRY_BUDGET must be at least 1")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		// Development/Test warnings
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}
