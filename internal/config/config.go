// ABOUTME: Configuration loading and parsing for tutor-gateway
// ABOUTME: Supports YAML files with environment variable expansion and validation

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete tutor-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	MCP      MCPConfig      `yaml:"mcp"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Wolfram  WolframConfig  `yaml:"wolfram"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MCPConfig holds MCP transport configuration.
type MCPConfig struct {
	// MessagesPath is the inbound message endpoint advertised to SSE clients.
	MessagesPath string `yaml:"messages_path"`

	// StrictSessionRouting disables the fallback-to-any-session policy on
	// dispatch. Leave false for single-tenant deployments.
	StrictSessionRouting bool `yaml:"strict_session_routing"`
}

// OpenAIConfig holds the LLM collaborator configuration for the tutor tools.
type OpenAIConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// WolframConfig holds the WolframAlpha collaborator configuration.
type WolframConfig struct {
	AppID string `yaml:"app_id"`
}

// StorageConfig holds S3-compatible object storage configuration for uploads.
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// DatabaseConfig holds the invocation audit database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultMessagesPath is the inbound endpoint advertised when none is configured.
const DefaultMessagesPath = "/messages"

// DefaultModel is the completion model used when openai.model is not set.
const DefaultModel = "gpt-4o-mini"

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.MCP.MessagesPath == "" {
		c.MCP.MessagesPath = DefaultMessagesPath
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultModel
	}
	if c.Database.Path == "" {
		c.Database.Path = ":memory:"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	// Storage is optional, but when any connection field is set the rest
	// must be present too.
	s := c.Storage
	if s.Endpoint != "" || s.Bucket != "" || s.AccessKey != "" {
		if s.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required when storage is configured")
		}
		if s.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage is configured")
		}
		if s.AccessKey == "" || s.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is configured")
		}
	}

	return nil
}
