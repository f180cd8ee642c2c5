// Package config provides configuration structures for querykit.
package config

import (
	"fmt"
	"time"

	"github.com/TFMV/querykit/pkg/engine"
)

// Config represents the querykit configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server" mapstructure:"server"`
	Engine  EngineConfig  `yaml:"engine" json:"engine" mapstructure:"engine"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Auth    AuthConfig    `yaml:"auth" json:"auth" mapstructure:"auth"`
}

// ServerConfig represents HTTP server settings.
type ServerConfig struct {
	Address         string        `yaml:"address" json:"address" mapstructure:"address"`
	LogLevel        string        `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout" mapstructure:"request_timeout"`
}

// EngineConfig represents the engine statements are validated against.
type EngineConfig struct {
	Dialect string `yaml:"dialect" json:"dialect" mapstructure:"dialect"`
	// DSN is used for parsing and strict validation, usually with a
	// database selected.
	DSN string `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	// SyntaxDSN is used for syntax validation. It defaults to the dialect's
	// syntax DSN, or DSN when the dialect has none.
	SyntaxDSN string `yaml:"syntax_dsn" json:"syntax_dsn" mapstructure:"syntax_dsn"`
	// MotherDuckToken is added to MotherDuck DSNs that carry no token.
	MotherDuckToken string `yaml:"motherduck_token" json:"-" mapstructure:"motherduck_token"`

	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections" mapstructure:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections" mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout" json:"connection_timeout" mapstructure:"connection_timeout"`
	HealthCheckPeriod  time.Duration `yaml:"health_check_period" json:"health_check_period" mapstructure:"health_check_period"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker" mapstructure:"circuit_breaker"`

	// Explain attaches a plan to successful parses of SELECT statements.
	Explain bool `yaml:"explain" json:"explain" mapstructure:"explain"`

	VerdictCache VerdictCacheConfig `yaml:"verdict_cache" json:"verdict_cache" mapstructure:"verdict_cache"`
}

// VerdictCacheConfig controls caching of syntax validation outcomes.
type VerdictCacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	MaxSize int64         `yaml:"max_size" json:"max_size" mapstructure:"max_size"` // bytes
	TTL     time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
}

// CircuitBreakerConfig represents circuit breaker configuration.
type CircuitBreakerConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Threshold int           `yaml:"threshold" json:"threshold" mapstructure:"threshold"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// MetricsConfig represents metrics configuration. An empty Address serves
// metrics on the main server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
}

// AuthConfig represents authentication configuration.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Type    string `yaml:"type" json:"type" mapstructure:"type"` // basic, bearer, jwt

	// Basic auth
	BasicAuth BasicAuthConfig `yaml:"basic_auth" json:"basic_auth" mapstructure:"basic_auth"`

	// Bearer token auth
	BearerAuth BearerAuthConfig `yaml:"bearer_auth" json:"bearer_auth" mapstructure:"bearer_auth"`

	// JWT auth
	JWTAuth JWTAuthConfig `yaml:"jwt_auth" json:"jwt_auth" mapstructure:"jwt_auth"`
}

// BasicAuthConfig represents basic authentication configuration.
type BasicAuthConfig struct {
	Users map[string]UserInfo `yaml:"users" json:"users" mapstructure:"users"`
}

// UserInfo represents user information.
type UserInfo struct {
	Password string   `yaml:"password" json:"password" mapstructure:"password"`
	Roles    []string `yaml:"roles" json:"roles" mapstructure:"roles"`
}

// BearerAuthConfig represents bearer token authentication configuration.
type BearerAuthConfig struct {
	Tokens map[string]string `yaml:"tokens" json:"tokens" mapstructure:"tokens"` // token -> username
}

// JWTAuthConfig represents JWT authentication configuration.
type JWTAuthConfig struct {
	Secret   string `yaml:"secret" json:"secret" mapstructure:"secret"`
	Issuer   string `yaml:"issuer" json:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" json:"audience" mapstructure:"audience"`
}

// dialectDSNs are the DSNs used when none is configured.
var dialectDSNs = map[string]struct{ parser, syntax string }{
	"mysql":  {"root@tcp(localhost:3306)/mysql_qp_test", "root@tcp(localhost:3306)/"},
	"duckdb": {"", ""},
	"sqlite": {":memory:", ":memory:"},
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	// Validate auth
	if c.Auth.Enabled {
		switch c.Auth.Type {
		case "basic":
			if len(c.Auth.BasicAuth.Users) == 0 {
				return fmt.Errorf("basic auth requires users")
			}
		case "bearer":
			if len(c.Auth.BearerAuth.Tokens) == 0 {
				return fmt.Errorf("bearer auth requires tokens")
			}
		case "jwt":
			if c.Auth.JWTAuth.Secret == "" {
				return fmt.Errorf("JWT auth requires secret")
			}
		default:
			return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
		}
	}

	// Set defaults for metrics
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return nil
}

func (e *EngineConfig) validate() error {
	if e.Dialect == "" {
		e.Dialect = "mysql"
	}
	d, err := engine.Get(e.Dialect)
	if err != nil {
		return err
	}
	e.Dialect = d.Name()

	defaults, known := dialectDSNs[e.Dialect]
	if e.DSN == "" && known {
		e.DSN = defaults.parser
	}
	if e.DSN == "" && !known {
		return fmt.Errorf("%s requires an engine DSN", e.Dialect)
	}
	if e.SyntaxDSN == "" {
		if known {
			e.SyntaxDSN = defaults.syntax
		} else {
			e.SyntaxDSN = e.DSN
		}
	}
	if n, ok := d.(engine.DSNNormalizer); ok {
		e.DSN = n.NormalizeDSN(e.DSN)
		e.SyntaxDSN = n.NormalizeDSN(e.SyntaxDSN)
	}

	// Set defaults for connection pools
	if e.MaxOpenConnections <= 0 {
		e.MaxOpenConnections = 10
	}
	if e.MaxIdleConnections <= 0 {
		e.MaxIdleConnections = 2
	}
	if e.MaxIdleConnections > e.MaxOpenConnections {
		e.MaxIdleConnections = e.MaxOpenConnections
	}
	if e.ConnMaxLifetime <= 0 {
		e.ConnMaxLifetime = 30 * time.Minute
	}
	if e.ConnMaxIdleTime <= 0 {
		e.ConnMaxIdleTime = 10 * time.Minute
	}
	if e.ConnectionTimeout <= 0 {
		e.ConnectionTimeout = 10 * time.Second
	}
	if e.CircuitBreaker.Threshold <= 0 {
		e.CircuitBreaker.Threshold = 5
	}
	if e.CircuitBreaker.Timeout <= 0 {
		e.CircuitBreaker.Timeout = 30 * time.Second
	}
	if e.VerdictCache.MaxSize <= 0 {
		e.VerdictCache.MaxSize = 16 * 1024 * 1024
	}
	if e.VerdictCache.TTL < 0 {
		e.VerdictCache.TTL = 0
	}
	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0:8080",
			LogLevel:        "info",
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Engine: EngineConfig{
			Dialect:            "mysql",
			DSN:                dialectDSNs["mysql"].parser,
			SyntaxDSN:          dialectDSNs["mysql"].syntax,
			MaxOpenConnections: 10,
			MaxIdleConnections: 2,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    10 * time.Minute,
			ConnectionTimeout:  10 * time.Second,
			HealthCheckPeriod:  time.Minute,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:   false,
				Threshold: 5,
				Timeout:   30 * time.Second,
			},
			VerdictCache: VerdictCacheConfig{
				Enabled: false,
				MaxSize: 16 * 1024 * 1024,
				TTL:     10 * time.Minute,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Auth: AuthConfig{
			Enabled: false,
			Type:    "basic",
		},
	}
}
