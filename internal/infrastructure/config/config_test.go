package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "localhost", cfg.Server.Hostname)
	assert.Equal(t, 1337, cfg.Server.Port)
	assert.Equal(t, 1338, cfg.Server.CrossDomainPort)

	// Proxy config
	assert.Equal(t, 6, cfg.Proxy.SessionIDLength)
	assert.Equal(t, "./uploads", cfg.Proxy.UploadsRoot)

	// Destination config
	assert.Equal(t, 2*time.Minute, cfg.Destination.Timeout.Std())
	assert.Equal(t, 2, cfg.Destination.RetryMax)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"PROXY_HOSTNAME":     "proxy.test",
		"CROSS_DOMAIN_PORT":  "9001",
		"SESSION_ID_LENGTH":  "8",
		"DEST_TIMEOUT":       "45s",
		"DEST_RATE_LIMIT":    "2.5",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
		"CORS_ORIGINS":       "http://a.test,http://b.test",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "proxy.test", cfg.Server.Hostname)
	assert.Equal(t, 9001, cfg.Server.CrossDomainPort)
	assert.Equal(t, 8, cfg.Proxy.SessionIDLength)
	assert.Equal(t, 45*time.Second, cfg.Destination.Timeout.Std())
	assert.Equal(t, 2.5, cfg.Destination.RateLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowOrigins)

	// untouched values keep their defaults
	assert.Equal(t, "./uploads", cfg.Proxy.UploadsRoot)
}

func TestLoadInvalidEnvironment(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	assert.ErrorContains(t, err, "failed to load config")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "proxy.yaml", `
server:
  hostname: proxy.local
  port: 2000
  cross_domain_port: 2001
proxy:
  uploads_root: /tmp/uploads
  auth_username: tester
destination:
  timeout: 10s
  breaker_failures: 3
logging:
  level: warn
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "proxy.local", cfg.Server.Hostname)
	assert.Equal(t, 2000, cfg.Server.Port)
	assert.Equal(t, 2001, cfg.Server.CrossDomainPort)
	assert.Equal(t, "/tmp/uploads", cfg.Proxy.UploadsRoot)
	assert.Equal(t, "tester", cfg.Proxy.AuthUsername)
	assert.Equal(t, 10*time.Second, cfg.Destination.Timeout.Std())
	assert.Equal(t, uint32(3), cfg.Destination.BreakerFailures)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// defaults survive for keys the file does not set
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 6, cfg.Proxy.SessionIDLength)
}

func TestLoadFileTOML(t *testing.T) {
	path := writeFile(t, "proxy.toml", `
[server]
hostname = "proxy.toml.local"
port = 3000
cross_domain_port = 3001

[destination]
retry_wait_max = "5s"
rate_limit = 20.0

[cors]
allow_origins = ["http://ui.test"]
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "proxy.toml.local", cfg.Server.Hostname)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Destination.RetryWaitMax.Std())
	assert.Equal(t, 20.0, cfg.Destination.RateLimit)
	assert.Equal(t, []string{"http://ui.test"}, cfg.CORS.AllowOrigins)
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	path := writeFile(t, "proxy.yml", "server:\n  port: 2000\n")
	t.Setenv("PORT", "4000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "proxy.json", "{}"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "bad.toml", "[server\nport = "))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"same ports", func(c *Config) { c.Server.CrossDomainPort = c.Server.Port }},
		{"no hostname", func(c *Config) { c.Server.Hostname = "" }},
		{"session id too long", func(c *Config) { c.Proxy.SessionIDLength = 33 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
