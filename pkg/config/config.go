package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xzegga/ait-saas-sso/pkg/idperr"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
	"github.com/xzegga/ait-saas-sso/pkg/storage"
)

// DefaultURL is the local development backend.
const DefaultURL = "http://127.0.0.1:54321"

// ConfigFileEnv names the variable holding the YAML config file path.
const ConfigFileEnv = "IDP_CONFIG_FILE"

// Config holds all SDK and example app configuration
type Config struct {
	URL            string `yaml:"url"`
	AnonKey        string `yaml:"anon_key"`
	ProductID      string `yaml:"product_id"`
	OrganizationID string `yaml:"organization_id"`
	ClientSecret   string `yaml:"client_secret"`

	// DatabaseURL enables the data API. Without it profile, organization and
	// billing calls are unavailable. It requires JWTSecret or JWKSURL.
	DatabaseURL string `yaml:"database_url"`

	// Token signature verification. JWTSecret takes precedence over JWKSURL.
	JWTSecret string `yaml:"jwt_secret"`
	JWKSURL   string `yaml:"jwks_url"`

	OperationTimeout time.Duration `yaml:"operation_timeout"`
	SignupDelay      time.Duration `yaml:"signup_delay"`

	Session       SessionConfig       `yaml:"session"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SessionConfig selects where sessions persist and how they refresh
type SessionConfig struct {
	Backend         string `yaml:"backend"`
	Path            string `yaml:"path"`
	RedisURL        string `yaml:"redis_url"`
	AutoRefresh     bool   `yaml:"auto_refresh"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// ServerConfig holds HTTP server configuration for the example app
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	SiteURL         string        `yaml:"site_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	LogEnabled bool   `yaml:"log_enabled"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		URL:              DefaultURL,
		OperationTimeout: 30 * time.Second,
		SignupDelay:      500 * time.Millisecond,
		Session: SessionConfig{
			Backend:         storage.BackendMemory,
			RefreshSchedule: "@every 30s",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "text",
			LogEnabled:         true,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    observability.DefaultServiceName,
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig loads configuration from IDP_CONFIG_FILE, if set, and then from
// environment variables, which win over the file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(getEnv(ConfigFileEnv, ""))
}

// LoadConfigFrom is LoadConfig with an explicit file; empty skips the file.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. Keys missing from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return idperr.Configuration(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return idperr.Configuration(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.URL = getEnv("IDP_URL", c.URL)
	c.AnonKey = getEnv("IDP_ANON_KEY", c.AnonKey)
	c.ProductID = getEnv("IDP_PRODUCT_ID", c.ProductID)
	c.OrganizationID = getEnv("IDP_ORGANIZATION_ID", c.OrganizationID)
	c.ClientSecret = getEnv("IDP_CLIENT_SECRET", c.ClientSecret)
	c.DatabaseURL = getEnv("IDP_DATABASE_URL", c.DatabaseURL)
	c.JWTSecret = getEnv("IDP_JWT_SECRET", c.JWTSecret)
	c.JWKSURL = getEnv("IDP_JWKS_URL", c.JWKSURL)
	c.OperationTimeout = getEnvDuration("IDP_OPERATION_TIMEOUT", c.OperationTimeout)
	c.SignupDelay = getEnvDuration("IDP_SIGNUP_DELAY", c.SignupDelay)

	// Session
	c.Session.Backend = strings.ToLower(getEnv("IDP_SESSION_BACKEND", c.Session.Backend))
	c.Session.Path = getEnv("IDP_SESSION_PATH", c.Session.Path)
	c.Session.RedisURL = getEnv("IDP_REDIS_URL", c.Session.RedisURL)
	c.Session.AutoRefresh = getEnvBool("IDP_AUTO_REFRESH", c.Session.AutoRefresh)
	c.Session.RefreshSchedule = getEnv("IDP_REFRESH_SCHEDULE", c.Session.RefreshSchedule)

	// Server
	c.Server.Host = getEnv("IDP_SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("IDP_SERVER_PORT", c.Server.Port)
	c.Server.SiteURL = getEnv("IDP_SITE_URL", c.Server.SiteURL)
	c.Server.ReadTimeout = getEnvDuration("IDP_SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("IDP_SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("IDP_SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Observability
	o := &c.Observability
	o.LogLevel = getEnv("IDP_LOG_LEVEL", o.LogLevel)
	o.LogFormat = strings.ToLower(getEnv("IDP_LOG_FORMAT", o.LogFormat))
	o.LogEnabled = getEnvBool("IDP_LOG_ENABLED", o.LogEnabled)
	o.MetricsEnabled = getEnvBool("IDP_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("IDP_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("IDP_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("IDP_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelInsecure = getEnvBool("IDP_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("IDP_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" || c.AnonKey == "" {
		return idperr.Configuration("Missing required configuration: url and anonKey are required", nil)
	}

	switch c.Session.Backend {
	case "", storage.BackendMemory:
	case storage.BackendFile, storage.BackendSQLite:
		if c.Session.Path == "" {
			return idperr.Configuration(fmt.Sprintf("session path is required for %s session storage", c.Session.Backend), nil)
		}
	case storage.BackendRedis:
		if c.Session.RedisURL == "" {
			return idperr.Configuration("redis URL is required for redis session storage", nil)
		}
	default:
		return idperr.Configuration(fmt.Sprintf("invalid session backend: %s (must be memory, file, redis, or sqlite)", c.Session.Backend), nil)
	}

	if c.DatabaseURL != "" && c.JWTSecret == "" && c.JWKSURL == "" {
		return idperr.Configuration("jwt secret or JWKS URL is required when a database URL is set", nil)
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return idperr.Configuration("OpenTelemetry endpoint is required when OTel is enabled", nil)
	}
	if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
		return idperr.Configuration("OpenTelemetry sample ratio must be between 0 and 1", nil)
	}
	return nil
}

// StorageConfig returns the session storage settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:        c.Session.Backend,
		Path:           c.Session.Path,
		RedisURL:       c.Session.RedisURL,
		RedisKeyPrefix: "idp:session:",
	}
}

// OTelConfig returns the telemetry export settings, tagged with the product
// and auth backend.
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		ProductID:      c.ProductID,
		AuthURL:        c.URL,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// NewLogger builds the logger described by the observability settings.
func (c *Config) NewLogger(w io.Writer) *observability.Logger {
	o := c.Observability
	if !o.LogEnabled {
		return observability.NewNopLogger()
	}
	level := observability.ParseLevel(o.LogLevel)
	if o.LogFormat == "json" {
		return observability.NewJSONLogger(level, w)
	}
	return observability.NewLogger(level, w)
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
