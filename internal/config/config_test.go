package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Engine: EngineConfig{
			BinaryPath:      "/usr/local/bin/whisper-cli",
			ModelsDir:       "./models",
			DefaultModel:    "base",
			DefaultLanguage: "auto",
			MaxThreads:      4,
		},
		Session: SessionConfig{
			ScratchDir: "/tmp/asr",
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "empty binary path",
			mutate:      func(c *Config) { c.Engine.BinaryPath = "" },
			expectError: true,
			errorMsg:    "binary_path cannot be empty",
		},
		{
			name:        "empty models dir",
			mutate:      func(c *Config) { c.Engine.ModelsDir = "" },
			expectError: true,
			errorMsg:    "models_dir cannot be empty",
		},
		{
			name:        "zero threads",
			mutate:      func(c *Config) { c.Engine.MaxThreads = 0 },
			expectError: true,
			errorMsg:    "max_threads must be at least 1",
		},
		{
			name:        "empty scratch dir",
			mutate:      func(c *Config) { c.Session.ScratchDir = "" },
			expectError: true,
			errorMsg:    "scratch_dir cannot be empty",
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "http disabled skips port check",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
engine:
  binary_path: "/usr/local/bin/whisper-cli"
  models_dir: "./models"
  default_model: "base"
  default_language: "auto"
  max_threads: 4
session:
  scratch_dir: "/tmp/asr"
http:
  port: 8080
  address: "127.0.0.1"
  enabled: true
logging:
  level: "info"
  format: "json"
  output: "stderr"
`,
			expectError: false,
		},
		{
			name: "defaults fill optional fields",
			configYAML: `
engine:
  binary_path: "/usr/local/bin/whisper-cli"
  models_dir: "./models"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
engine:
  binary_path: "/usr/local/bin/whisper-cli"
  max_threads: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
engine:
  models_dir: "./models"
`,
			expectError: true,
			errorMsg:    "binary_path cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0o644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	var config Config
	config.Engine.BinaryPath = "/usr/local/bin/whisper-cli"
	config.Engine.ModelsDir = "./models"
	config.applyDefaults()

	if config.Engine.DefaultModel != "base" {
		t.Errorf("Expected default model 'base', got %s", config.Engine.DefaultModel)
	}
	if config.Engine.DefaultLanguage != "auto" {
		t.Errorf("Expected default language 'auto', got %s", config.Engine.DefaultLanguage)
	}
	if config.Engine.MaxThreads != 4 {
		t.Errorf("Expected default max threads 4, got %d", config.Engine.MaxThreads)
	}
	if config.Session.ScratchDir == "" {
		t.Error("Expected scratch dir default")
	}
	if config.Logging.Level != "info" || config.Logging.Format != "json" || config.Logging.Output != "stderr" {
		t.Errorf("Unexpected logging defaults: %+v", config.Logging)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Defaulted config should validate, got: %v", err)
	}
}
