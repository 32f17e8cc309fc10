// ABOUTME: Tests for configuration loading, env expansion, defaults, and validation.
// ABOUTME: Uses temp files to exercise the YAML loading path end to end.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:3000"
openai:
  api_key: "sk-test"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:3000" {
		t.Errorf("expected http_addr 'localhost:3000', got %q", cfg.Server.HTTPAddr)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("expected api_key 'sk-test', got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level 'debug', got %q", cfg.Logging.Level)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:3000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MCP.MessagesPath != DefaultMessagesPath {
		t.Errorf("expected default messages path %q, got %q", DefaultMessagesPath, cfg.MCP.MessagesPath)
	}
	if cfg.OpenAI.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.OpenAI.Model)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("expected default database path ':memory:', got %q", cfg.Database.Path)
	}
	if cfg.MCP.StrictSessionRouting {
		t.Error("strict session routing should default to false")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TUTOR_TEST_SECRET", "s3cret")

	path := writeConfig(t, `
server:
  http_addr: "localhost:3000"
auth:
  jwt_secret: "${TUTOR_TEST_SECRET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected expanded secret 's3cret', got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingHTTPAddr(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing http_addr")
	}
}

func TestLoadPartialStorageConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "endpoint without bucket",
			yaml: `
server:
  http_addr: "localhost:3000"
storage:
  endpoint: "s3.example.com"
  access_key: "ak"
  secret_key: "sk"
`,
		},
		{
			name: "bucket without credentials",
			yaml: `
server:
  http_addr: "localhost:3000"
storage:
  endpoint: "s3.example.com"
  bucket: "uploads"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error for partial storage config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
