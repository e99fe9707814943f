package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env       string          `yaml:"env"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	ESign     ESignConfig     `yaml:"esign"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	StatusTTL time.Duration `yaml:"status_ttl"`
}

type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	RequiredRole string `yaml:"required_role"`
}

type WebhookConfig struct {
	Scheme       string `yaml:"scheme"` // bearer, hmac-sha256
	SharedSecret string `yaml:"shared_secret"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type ESignConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type AnalyticsConfig struct {
	BaseURL    string `yaml:"base_url"`
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`

	// Credentials is resolved by Load; it is never read from YAML.
	Credentials Credentials `yaml:"-"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Capability tags what a credential may be used for.
type Capability int

const (
	CapabilityRead Capability = iota + 1
	CapabilityWrite
)

func (c Capability) String() string {
	switch c {
	case CapabilityRead:
		return "read"
	case CapabilityWrite:
		return "write"
	default:
		return "unknown"
	}
}

type Credential struct {
	Capability Capability
	Key        string
}

// Credentials is the analytics key pair: the public key may only read, the
// private key is used for everything that mutates.
type Credentials struct {
	Read  Credential
	Write Credential
}

// ForMethod picks the credential an outbound request with the given HTTP
// method must carry.
func (c Credentials) ForMethod(method string) Credential {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return c.Read
	default:
		return c.Write
	}
}

func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port:            "8084",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			StatusTTL: 5 * time.Minute,
		},
		Auth: AuthConfig{
			RequiredRole: "manager",
		},
		Webhook: WebhookConfig{
			Scheme:       "bearer",
			MaxBodyBytes: 1 << 20,
		},
		ESign: ESignConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults (a missing file keeps the defaults),
// applies environment overrides and resolves derived values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolve()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	setString(&c.Env, "APP_ENV")
	setString(&c.Server.Port, "SERVICE_PORT")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.RequiredRole, "REQUIRED_ROLE")
	setString(&c.Webhook.Scheme, "WEBHOOK_AUTH_SCHEME")
	setString(&c.Webhook.SharedSecret, "WEBHOOK_SHARED_SECRET")
	setString(&c.ESign.BaseURL, "ESIGN_BASE_URL")
	setString(&c.ESign.APIKey, "ESIGN_API_KEY")
	setString(&c.Analytics.BaseURL, "ANALYTICS_BASE_URL")
	setString(&c.Analytics.PublicKey, "ANALYTICS_PUBLIC_KEY")
	setString(&c.Analytics.PrivateKey, "ANALYTICS_PRIVATE_KEY")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("DATABASE_MAX_CONNS"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("DATABASE_MAX_CONNS: %w", err)
		}
		c.Database.MaxConns = int32(n)
	}
	return nil
}

func (c *Config) resolve() {
	c.Analytics.Credentials = Credentials{
		Read:  Credential{Capability: CapabilityRead, Key: c.Analytics.PublicKey},
		Write: Credential{Capability: CapabilityWrite, Key: c.Analytics.PrivateKey},
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url (DATABASE_URL) is required"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("webhook.max_body_bytes must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func (c *Config) Log(logger *zap.Logger) {
	logger.Info("Application configuration",
		zap.String("env", c.Env),
		zap.String("port", c.Server.Port),
		zap.Bool("database_configured", c.Database.URL != ""),
		zap.Int32("database_max_conns", c.Database.MaxConns),
		zap.String("redis_addr", c.Redis.Addr),
		zap.Bool("role_check_enabled", c.Auth.JWTSecret != ""),
		zap.String("required_role", c.Auth.RequiredRole),
		zap.String("webhook_scheme", c.Webhook.Scheme),
		zap.String("webhook_shared_secret", redacted(c.Webhook.SharedSecret)),
		zap.String("esign_base_url", c.ESign.BaseURL),
		zap.String("esign_api_key", redacted(c.ESign.APIKey)),
		zap.String("analytics_base_url", c.Analytics.BaseURL),
	)
}
