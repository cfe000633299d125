// Package config loads server configuration from a YAML file with
// environment-variable overrides. A .env file in the working directory is
// loaded first, so local development can keep secrets out of the shell.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrFileNotFound is returned when an explicitly named config file is missing.
var ErrFileNotFound = errors.New("configuration file not found")

// Config is the full server configuration.
type Config struct {
	// HTTPPort is the port for the dispatch server.
	HTTPPort int `yaml:"httpPort"`
	// AdminPort is the port for the definition-management API.
	AdminPort int `yaml:"adminPort"`
	// ReadTimeout is the HTTP read timeout in seconds.
	ReadTimeout int `yaml:"readTimeout"`
	// WriteTimeout is the HTTP write timeout in seconds.
	WriteTimeout int `yaml:"writeTimeout"`

	// DatabaseURL is the read-write DSN for the definition store.
	DatabaseURL string `yaml:"databaseUrl"`
	// QueryDatabaseURL is the DSN used for executing defined queries.
	// The session is forced read-only. Defaults to DatabaseURL.
	QueryDatabaseURL string `yaml:"queryDatabaseUrl"`

	// JWTSecret signs and verifies bearer tokens for auth-required routes.
	// Empty disables auth; auth-required routes then reject every request.
	JWTSecret string `yaml:"jwtSecret"`

	// TrustForwardedFor controls whether X-Forwarded-For identifies rate
	// limit clients. Enable only behind a trusted proxy.
	TrustForwardedFor bool `yaml:"trustForwardedFor"`

	// StrictParams rejects undeclared request parameters engine-wide.
	StrictParams bool `yaml:"strictParams"`

	// CacheTTLSeconds bounds definition staleness in the resolver cache.
	CacheTTLSeconds int `yaml:"cacheTtlSeconds"`

	// Guard limits.
	MaxRows                int `yaml:"maxRows"`
	StepTimeoutSeconds     int `yaml:"stepTimeoutSeconds"`
	PipelineTimeoutSeconds int `yaml:"pipelineTimeoutSeconds"`

	// Logging.
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		HTTPPort:        8080,
		AdminPort:       8081,
		ReadTimeout:     30,
		WriteTimeout:    60,
		CacheTTLSeconds: 5,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, in that order. path may be empty.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("ROWAPI_DATABASE_URL", &c.DatabaseURL)
	envString("ROWAPI_QUERY_DATABASE_URL", &c.QueryDatabaseURL)
	envString("ROWAPI_JWT_SECRET", &c.JWTSecret)
	envString("ROWAPI_LOG_LEVEL", &c.LogLevel)
	envString("ROWAPI_LOG_FORMAT", &c.LogFormat)
	envInt("ROWAPI_HTTP_PORT", &c.HTTPPort)
	envInt("ROWAPI_ADMIN_PORT", &c.AdminPort)
	envInt("ROWAPI_MAX_ROWS", &c.MaxRows)
	envBool("ROWAPI_STRICT_PARAMS", &c.StrictParams)
	envBool("ROWAPI_TRUST_FORWARDED_FOR", &c.TrustForwardedFor)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("httpPort %d out of range", c.HTTPPort)
	}
	if c.AdminPort <= 0 || c.AdminPort > 65535 {
		return fmt.Errorf("adminPort %d out of range", c.AdminPort)
	}
	if c.HTTPPort == c.AdminPort {
		return errors.New("httpPort and adminPort must differ")
	}
	return nil
}

// QueryDSN returns the datasource DSN, falling back to the store DSN.
func (c *Config) QueryDSN() string {
	if c.QueryDatabaseURL != "" {
		return c.QueryDatabaseURL
	}
	return c.DatabaseURL
}

// CacheTTL returns the resolver cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
