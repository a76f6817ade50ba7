// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Xero     XeroConfig
	OTel     OTelConfig
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `env:"SERVICE_NAME" envDefault:"be-ar-invoicing"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig controls the HTTP and gRPC listeners.
type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8086"`
	GRPCPort        int           `env:"GRPC_PORT" envDefault:"9086"`
	PublicURL       string        `env:"PUBLIC_URL" envDefault:"http://localhost:8086"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	// APIToken guards the JSON API. Empty disables the check.
	APIToken        string        `env:"API_TOKEN"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"20s"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        int           `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD"`
	Database    string        `env:"DB_NAME" envDefault:"ar_invoicing"`
	SSLMode     string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnTime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"30m"`
	HealthCheck time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// RedisConfig configures the OAuth state store.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	StateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
}

// NATSConfig configures event publishing. An empty URL disables it.
type NATSConfig struct {
	URL string `env:"NATS_URL"`
}

// XeroConfig configures the Xero OAuth application and API.
type XeroConfig struct {
	ClientID     string   `env:"XERO_CLIENT_ID"`
	ClientSecret string   `env:"XERO_CLIENT_SECRET"`
	RedirectURL  string   `env:"XERO_REDIRECT_URL" envDefault:"http://localhost:8086/api/v1/xero/callback"`
	Scopes       []string `env:"XERO_SCOPES" envSeparator:"," envDefault:"openid,profile,email,offline_access,accounting.transactions,accounting.contacts"`
	AuthURL      string   `env:"XERO_AUTH_URL" envDefault:"https://login.xero.com/identity/connect/authorize"`
	TokenURL     string   `env:"XERO_TOKEN_URL" envDefault:"https://identity.xero.com/connect/token"`
	RevokeURL    string   `env:"XERO_REVOKE_URL" envDefault:"https://identity.xero.com/connect/revocation"`
	APIBaseURL   string   `env:"XERO_API_URL" envDefault:"https://api.xero.com"`
	// SalesAccountCode is the revenue account used on invoice lines.
	SalesAccountCode string  `env:"XERO_SALES_ACCOUNT_CODE" envDefault:"200"`
	Currency         string  `env:"XERO_CURRENCY" envDefault:"USD"`
	RequestsPerSec   float64 `env:"XERO_RPS" envDefault:"1"`
	Burst            int     `env:"XERO_BURST" envDefault:"5"`
	// StateSecret signs the OAuth state parameter.
	StateSecret string `env:"STATE_SECRET"`
}

// OTelConfig configures tracing. An empty endpoint disables export.
type OTelConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// DSN builds a Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.PublicURL) == "" {
		return fmt.Errorf("PUBLIC_URL is required")
	}
	if c.Service.Environment != "development" {
		if c.Xero.ClientID == "" || c.Xero.ClientSecret == "" {
			return fmt.Errorf("XERO_CLIENT_ID and XERO_CLIENT_SECRET are required outside development")
		}
		if len(c.Xero.StateSecret) < 32 {
			return fmt.Errorf("STATE_SECRET must be at least 32 bytes outside development")
		}
	}
	if c.Xero.RequestsPerSec <= 0 {
		return fmt.Errorf("XERO_RPS must be positive")
	}
	return nil
}
