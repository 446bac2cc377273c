package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env for environment variable binding.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// StorageBackend selects the config/token ledger: "memory" or "mongodb".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDBName    string `mapstructure:"MONGO_DB_NAME"`

	// CacheBackend selects the verification cache: "memory" or "redis".
	CacheBackend  string `mapstructure:"CACHE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	CachePrefix   string `mapstructure:"CACHE_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY"`
	// TokenIssuer is stamped into the iss claim of every minted token.
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`

	// SweepIntervalMinutes is the period of the expired-token ledger sweep.
	// Zero disables the sweeper.
	SweepIntervalMinutes int `mapstructure:"SWEEP_INTERVAL_MINUTES"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/gatekey/")
	v.AddConfigPath("$HOME/.gatekey")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/gatekey_dev")
	v.SetDefault("MONGO_DB_NAME", "gatekey_dev")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_PREFIX", "gatekey")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "gatekey-server")
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("TOKEN_ISSUER", "https://gatekey.example.com")
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 10)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		// Other errors (e.g., permission issues, malformed config) should be returned.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
