package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
// Uses Go's built-in os.ExpandEnv which is the idiomatic way to handle this
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/config.yaml",
	"./configs/config.yml",
	"./configs/development.yaml",
	"/etc/gatekeeper/config.yaml",
	"/etc/gatekeeper/config.yml",
}

// Load loads the configuration from the specified file or default locations
func Load(configPath string) (*Config, error) {
	// Set default values
	config := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "gatekeeper",
				User:     "postgres",
				SSLMode:  "disable",
			},
		},
		Auth: AuthConfig{
			Credential: CredentialConfig{
				Lifetime: 168 * time.Hour,
			},
		},
		Billing: BillingConfig{
			PortalReturnURL: "http://localhost:8080/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	// If no config path is provided, search in default locations
	if configPath == "" {
		configPath = findConfigFile()
	}

	// Load configuration from file if it exists
	if configPath != "" && fileExists(configPath) {
		fmt.Printf("[CONFIG] Loading config from: %s\n", configPath)
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the config
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		fmt.Printf("[CONFIG] No config file found, using defaults\n")
	}

	// Environment variables take precedence over the config file
	applyEnvOverrides(config)

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides lets deployment environments inject secrets without a
// config file
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CREDENTIAL_SIGNING_SECRET"); v != "" {
		config.Auth.Credential.SigningSecret = v
	}
	if v := os.Getenv("CREDENTIAL_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Auth.Credential.Lifetime = d
		}
	}
	if v := os.Getenv("STRIPE_API_KEY"); v != "" {
		config.Billing.StripeAPIKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		config.Billing.StripeWebhookSecret = v
	}
	if v := os.Getenv("PORTAL_RETURN_URL"); v != "" {
		config.Billing.PortalReturnURL = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		config.Database.Postgres.Password = v
	}
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
