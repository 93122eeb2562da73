package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for forge-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8123"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Workspace confinement configuration
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Deployment configuration
	Deploy DeployConfig `yaml:"deploy"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Code generation agent configuration
	Agent AgentConfig `yaml:"agent"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"forge"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"forge_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// WorkspaceConfig holds settings for agent workspace directories.
type WorkspaceConfig struct {
	// BaseDir is the directory under which every app workspace is created.
	// All agent file operations are confined to one workspace below it.
	BaseDir string `yaml:"base_dir" env:"WORKSPACE_BASE_DIR" env-default:"/var/lib/forge-engine/workspaces"`
}

// DeployConfig holds deployment key settings.
type DeployConfig struct {
	// KeyLength is the length in characters of generated deploy keys.
	KeyLength int `yaml:"key_length" env:"DEPLOY_KEY_LENGTH" env-default:"12"`
	// MaxKeyAttempts bounds retries when a generated key collides with the
	// unique index. Allocation fails after this many collisions.
	MaxKeyAttempts int `yaml:"max_key_attempts" env:"DEPLOY_MAX_KEY_ATTEMPTS" env-default:"5"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// SigningKey signs issued JWTs (HS256). Secret - env only.
	SigningKey string `yaml:"-" env:"AUTH_SIGNING_KEY"`
	// TokenTTLMinutes is the lifetime of issued access tokens.
	TokenTTLMinutes int `yaml:"token_ttl_minutes" env:"AUTH_TOKEN_TTL_MINUTES" env-default:"30"`
}

// AgentConfig holds the code generation agent settings.
type AgentConfig struct {
	// AnthropicAPIKey authenticates the LLM client. Secret - env only.
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	// Model is the model identifier passed to the LLM API.
	Model string `yaml:"model" env:"AGENT_MODEL" env-default:"claude-sonnet-4-20250514"`
	// MaxTokens caps a single completion.
	MaxTokens int `yaml:"max_tokens" env:"AGENT_MAX_TOKENS" env-default:"8192"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// If config.yaml does not exist, configuration comes from the environment alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if !filepath.IsAbs(c.Workspace.BaseDir) {
		return fmt.Errorf("workspace base_dir must be an absolute path, got %q", c.Workspace.BaseDir)
	}
	if c.Deploy.KeyLength < 6 {
		return fmt.Errorf("deploy key_length must be at least 6, got %d", c.Deploy.KeyLength)
	}
	if c.Deploy.MaxKeyAttempts < 1 {
		return fmt.Errorf("deploy max_key_attempts must be at least 1, got %d", c.Deploy.MaxKeyAttempts)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
