package config_test

import (
	"os"
	"testing"

	"github.com/gatekey-io/gatekey/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv clears ambient variables that would leak into LoadConfig.
// t.Setenv registers the restore, Unsetenv actually removes the variable.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "STORAGE_BACKEND", "MONGO_URI", "MONGO_DB_NAME",
		"CACHE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CACHE_PREFIX",
		"LOG_LEVEL", "LOG_PRETTY", "TRACING_ENABLED", "OTEL_SERVICE_NAME",
		"JWT_SECRET_KEY", "TOKEN_ISSUER", "SWEEP_INTERVAL_MINUTES",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "mongodb://localhost:27017/gatekey_dev", cfg.MongoURI)
	assert.Equal(t, "gatekey_dev", cfg.MongoDBName)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "gatekey", cfg.CachePrefix)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, "gatekey-server", cfg.OtelServiceName)
	assert.Equal(t, "https://gatekey.example.com", cfg.TokenIssuer)
	assert.Equal(t, 10, cfg.SweepIntervalMinutes)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "mongodb")
	t.Setenv("MONGO_URI", "mongodb://testhost:27018")
	t.Setenv("MONGO_DB_NAME", "gatekey_test")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("TOKEN_ISSUER", "https://sts.gatekey.example.com")
	t.Setenv("SWEEP_INTERVAL_MINUTES", "0")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "mongodb", cfg.StorageBackend)
	assert.Equal(t, "mongodb://testhost:27018", cfg.MongoURI)
	assert.Equal(t, "gatekey_test", cfg.MongoDBName)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, "https://sts.gatekey.example.com", cfg.TokenIssuer)
	assert.Equal(t, 0, cfg.SweepIntervalMinutes)
}
