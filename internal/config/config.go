// Package config loads agent configuration from the environment, with an
// optional YAML overlay file for the classic inventory-source options.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/stacklio/inventory-agent/internal/secrets"
)

// Config holds all configuration for the agent.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Stackl   StacklConfig
	Secrets  SecretsConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds run-history database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/inventory-agent.db"`
}

// StacklConfig holds Stackl API configuration.
type StacklConfig struct {
	Host     string `env:"STACKL_HOST"`
	FileShim string `env:"STACKL_FILE_SHIM"` // Path to instance file for testing shim (disables real API)

	// Client-credentials auth for deployments where Stackl sits behind an
	// identity-aware proxy. Optional.
	OAuthTokenURL     string `env:"STACKL_OAUTH_TOKEN_URL"`
	OAuthClientID     string `env:"STACKL_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"STACKL_OAUTH_CLIENT_SECRET"`
}

// SecretsConfig selects and configures the secret handler.
type SecretsConfig struct {
	Handler string `env:"SECRET_HANDLER" envDefault:"base64" yaml:"secret_handler"`

	VaultAddr      string `env:"VAULT_ADDR" yaml:"vault_addr"`
	VaultTokenPath string `env:"VAULT_TOKEN_PATH" yaml:"vault_token_path"`

	ConjurAddr      string `env:"CONJUR_ADDR" yaml:"conjur_addr"`
	ConjurAccount   string `env:"CONJUR_ACCOUNT" yaml:"conjur_account"`
	ConjurTokenPath string `env:"CONJUR_TOKEN_PATH" yaml:"conjur_token_path"`
	ConjurVerify    string `env:"CONJUR_VERIFY" yaml:"conjur_verify"`
}

// ResolverOptions maps the section onto secret-resolver options.
func (c *SecretsConfig) ResolverOptions() secrets.Options {
	return secrets.Options{
		Handler:         c.Handler,
		VaultAddr:       c.VaultAddr,
		VaultTokenPath:  c.VaultTokenPath,
		ConjurAddr:      c.ConjurAddr,
		ConjurAccount:   c.ConjurAccount,
		ConjurTokenPath: c.ConjurTokenPath,
		ConjurVerify:    c.ConjurVerify,
	}
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`

	OIDCEnabled   bool   `env:"OIDC_ENABLED" envDefault:"false"`
	OIDCIssuerURL string `env:"OIDC_ISSUER_URL"`
	OIDCClientID  string `env:"OIDC_CLIENT_ID"`
}

// sourceFile is the YAML overlay shape: the classic inventory-source config
// (host plus secret-handler options).
type sourceFile struct {
	Host    string        `yaml:"host"`
	Secrets SecretsConfig `yaml:",inline"`
}

// Load loads configuration from environment variables. When CONFIG_FILE is
// set, the named YAML file overrides the Stackl host and secret options.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Stackl); err != nil {
		return nil, fmt.Errorf("parsing stackl config: %w", err)
	}
	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if file.Host != "" {
		c.Stackl.Host = file.Host
	}
	overlaySecrets(&c.Secrets, &file.Secrets)
	return nil
}

func overlaySecrets(dst, src *SecretsConfig) {
	if src.Handler != "" {
		dst.Handler = src.Handler
	}
	if src.VaultAddr != "" {
		dst.VaultAddr = src.VaultAddr
	}
	if src.VaultTokenPath != "" {
		dst.VaultTokenPath = src.VaultTokenPath
	}
	if src.ConjurAddr != "" {
		dst.ConjurAddr = src.ConjurAddr
	}
	if src.ConjurAccount != "" {
		dst.ConjurAccount = src.ConjurAccount
	}
	if src.ConjurTokenPath != "" {
		dst.ConjurTokenPath = src.ConjurTokenPath
	}
	if src.ConjurVerify != "" {
		dst.ConjurVerify = src.ConjurVerify
	}
}

// UseFileShim returns true if the file shim should be used instead of the
// real API.
func (c *Config) UseFileShim() bool {
	return c.Stackl.FileShim != ""
}

// UseOAuth returns true when the Stackl client should authenticate with
// client credentials.
func (c *StacklConfig) UseOAuth() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Stackl.FileShim == "" && c.Stackl.Host == "" {
		return fmt.Errorf("STACKL_HOST is required (or set STACKL_FILE_SHIM for testing)")
	}

	switch c.Secrets.Handler {
	case "", secrets.HandlerBase64:
	case secrets.HandlerVault:
		if c.Secrets.VaultAddr == "" {
			return fmt.Errorf("VAULT_ADDR is required for the vault secret handler")
		}
		if c.Secrets.VaultTokenPath == "" {
			return fmt.Errorf("VAULT_TOKEN_PATH is required for the vault secret handler")
		}
	case secrets.HandlerConjur:
		if c.Secrets.ConjurAddr == "" {
			return fmt.Errorf("CONJUR_ADDR is required for the conjur secret handler")
		}
		if c.Secrets.ConjurAccount == "" {
			return fmt.Errorf("CONJUR_ACCOUNT is required for the conjur secret handler")
		}
		if c.Secrets.ConjurTokenPath == "" {
			return fmt.Errorf("CONJUR_TOKEN_PATH is required for the conjur secret handler")
		}
	default:
		return fmt.Errorf("unknown SECRET_HANDLER %q (want base64, vault or conjur)", c.Secrets.Handler)
	}

	if c.Auth.OIDCEnabled {
		if c.Auth.OIDCIssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
	}

	return nil
}
