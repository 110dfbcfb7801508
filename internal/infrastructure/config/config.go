package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Proxy       ProxyConfig       `yaml:"proxy" toml:"proxy"`
	Destination DestinationConfig `yaml:"destination" toml:"destination"`
	Logging     LogConfig         `yaml:"logging" toml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit"`
	CORS        CORSConfig        `yaml:"cors" toml:"cors"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	Host            string   `envconfig:"HOST" yaml:"host" toml:"host"`
	Hostname        string   `envconfig:"PROXY_HOSTNAME" yaml:"hostname" toml:"hostname"` // name used in proxy URLs
	Port            int      `envconfig:"PORT" yaml:"port" toml:"port"`
	CrossDomainPort int      `envconfig:"CROSS_DOMAIN_PORT" yaml:"cross_domain_port" toml:"cross_domain_port"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// ProxyConfig holds session and injection configuration.
type ProxyConfig struct {
	UploadsRoot       string `envconfig:"UPLOADS_ROOT" yaml:"uploads_root" toml:"uploads_root"`
	SessionIDLength   int    `envconfig:"SESSION_ID_LENGTH" yaml:"session_id_length" toml:"session_id_length"`
	ClientScriptFile  string `envconfig:"CLIENT_SCRIPT_FILE" yaml:"client_script_file" toml:"client_script_file"`
	PayloadScriptFile string `envconfig:"PAYLOAD_SCRIPT_FILE" yaml:"payload_script_file" toml:"payload_script_file"`
	IframePayloadFile string `envconfig:"IFRAME_PAYLOAD_FILE" yaml:"iframe_payload_file" toml:"iframe_payload_file"`
	AuthUsername      string `envconfig:"AUTH_USERNAME" yaml:"auth_username" toml:"auth_username"`
	AuthPassword      string `envconfig:"AUTH_PASSWORD" yaml:"auth_password" toml:"auth_password"`
	MaxMessageSize    int64  `envconfig:"MAX_MESSAGE_SIZE" yaml:"max_message_size" toml:"max_message_size"`
}

// DestinationConfig holds the outbound client configuration.
type DestinationConfig struct {
	Timeout         Duration `envconfig:"DEST_TIMEOUT" yaml:"timeout" toml:"timeout"`
	RetryMax        int      `envconfig:"DEST_RETRY_MAX" yaml:"retry_max" toml:"retry_max"`
	RetryWaitMin    Duration `envconfig:"DEST_RETRY_WAIT_MIN" yaml:"retry_wait_min" toml:"retry_wait_min"`
	RetryWaitMax    Duration `envconfig:"DEST_RETRY_WAIT_MAX" yaml:"retry_wait_max" toml:"retry_wait_max"`
	RateLimit       float64  `envconfig:"DEST_RATE_LIMIT" yaml:"rate_limit" toml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst       int      `envconfig:"DEST_RATE_BURST" yaml:"rate_burst" toml:"rate_burst"`
	BreakerFailures uint32   `envconfig:"DEST_BREAKER_FAILURES" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"DEST_BREAKER_TIMEOUT" yaml:"breaker_timeout" toml:"breaker_timeout"`
	MaxBodySize     int64    `envconfig:"DEST_MAX_BODY_SIZE" yaml:"max_body_size" toml:"max_body_size"` // largest body buffered for processing
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds per-client rate limiting for the admin API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// CORSConfig holds CORS configuration for the admin API.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ORIGINS" yaml:"allow_origins" toml:"allow_origins"`
}

// Duration is a time.Duration read from strings such as "30s"
type Duration time.Duration

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load loads configuration from environment variables on top of Default.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML or TOML file on top of Default, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Hostname:        "localhost",
			Port:            1337,
			CrossDomainPort: 1338,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Proxy: ProxyConfig{
			UploadsRoot:     "./uploads",
			SessionIDLength: 6,
			MaxMessageSize:  16 << 20,
		},
		Destination: DestinationConfig{
			Timeout:         Duration(2 * time.Minute),
			RetryMax:        2,
			RetryWaitMin:    Duration(100 * time.Millisecond),
			RetryWaitMax:    Duration(2 * time.Second),
			RateBurst:       100,
			BreakerFailures: 10,
			BreakerTimeout:  Duration(30 * time.Second),
			MaxBodySize:     32 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.CrossDomainPort <= 0 {
		return fmt.Errorf("invalid ports %d/%d", c.Server.Port, c.Server.CrossDomainPort)
	}
	if c.Server.Port == c.Server.CrossDomainPort {
		return fmt.Errorf("port and cross-domain port must differ (%d)", c.Server.Port)
	}
	if c.Server.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	if c.Proxy.SessionIDLength < 1 || c.Proxy.SessionIDLength > 32 {
		return fmt.Errorf("session id length must be within 1..32, got %d", c.Proxy.SessionIDLength)
	}
	return nil
}
