package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Billing  BillingConfig  `yaml:"billing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string `yaml:"host" default:"localhost"`
	Port        int    `yaml:"port" default:"8080"`
	MetricsPort int    `yaml:"metrics_port" default:"0"` // 0 means Port+10
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"5432"`
	Database string `yaml:"database" default:"gatekeeper"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode" default:"disable"` // disable, require, verify-ca, verify-full
}

// AuthConfig holds credential configuration
type AuthConfig struct {
	Credential CredentialConfig `yaml:"credential"`
}

// CredentialConfig holds session credential configuration
type CredentialConfig struct {
	SigningSecret string        `yaml:"signing_secret"`          // HMAC secret, minimum 32 bytes (required)
	Lifetime      time.Duration `yaml:"lifetime" default:"168h"` // Default 7 days
}

// BillingConfig holds billing provider configuration
type BillingConfig struct {
	StripeAPIKey        string `yaml:"stripe_api_key"`        // Secret API key (required)
	StripeWebhookSecret string `yaml:"stripe_webhook_secret"` // Webhook endpoint signing secret (required)
	PortalReturnURL     string `yaml:"portal_return_url" default:"http://localhost:8080/"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`  // Log level: debug, info, warn, error
	Format string `yaml:"format" default:"json"` // Log format: json, text
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// MetricsPort returns the effective metrics port
func (s *ServerConfig) EffectiveMetricsPort() int {
	if s.MetricsPort != 0 {
		return s.MetricsPort
	}
	return s.Port + 10
}

// validate performs startup validation. Missing secrets are fatal: the
// process refuses to start rather than run with gates it cannot enforce.
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if config.Auth.Credential.SigningSecret == "" {
		return fmt.Errorf("auth.credential.signing_secret is required (set CREDENTIAL_SIGNING_SECRET)")
	}
	if len(config.Auth.Credential.SigningSecret) < 32 {
		return fmt.Errorf("auth.credential.signing_secret must be at least 32 bytes")
	}
	if config.Auth.Credential.Lifetime <= 0 {
		return fmt.Errorf("auth.credential.lifetime must be positive")
	}

	if config.Billing.StripeAPIKey == "" {
		return fmt.Errorf("billing.stripe_api_key is required (set STRIPE_API_KEY)")
	}
	if config.Billing.StripeWebhookSecret == "" {
		return fmt.Errorf("billing.stripe_webhook_secret is required (set STRIPE_WEBHOOK_SECRET)")
	}

	return nil
}
