package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "stdio" {
		t.Errorf("Expected default mode to be 'stdio', got '%s'", cfg.Mode)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Port)
	}

	if cfg.ServerName != "dokmap" {
		t.Errorf("Expected default server name to be 'dokmap', got '%s'", cfg.ServerName)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.MaxFileSize != 50*1024*1024 {
		t.Errorf("Expected default max file size to be 50MB, got %d", cfg.MaxFileSize)
	}

	if cfg.LLMMaxAttempts != 4 {
		t.Errorf("Expected default model call attempts to be 4, got %d", cfg.LLMMaxAttempts)
	}

	if cfg.SurfaceThreshold != 40.0 || cfg.AcceptThreshold != 50.0 {
		t.Errorf("Expected default thresholds 40/50, got %v/%v", cfg.SurfaceThreshold, cfg.AcceptThreshold)
	}

	// Template directory defaults to the current working directory
	currentDir, _ := os.Getwd()
	if cfg.TemplateDir != currentDir {
		t.Errorf("Expected default template directory to be '%s', got '%s'", currentDir, cfg.TemplateDir)
	}
}

func validServerConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = ModeServer
	cfg.TemplateDir = t.TempDir()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config - stdio mode",
			mutate:  func(c *Config) { c.Mode = ModeStdio },
			wantErr: false,
		},
		{
			name:    "valid config - server mode",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid mode",
			mutate:  func(c *Config) { c.Mode = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid port - too low",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.Port = 65536 },
			wantErr: true,
		},
		{
			name:    "empty template directory",
			mutate:  func(c *Config) { c.TemplateDir = "" },
			wantErr: true,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: true,
		},
		{
			name:    "zero max file size",
			mutate:  func(c *Config) { c.MaxFileSize = 0 },
			wantErr: true,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLMTemperature = 3.0 },
			wantErr: true,
		},
		{
			name:    "zero model call attempts",
			mutate:  func(c *Config) { c.LLMMaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "threshold above 100",
			mutate:  func(c *Config) { c.AcceptThreshold = 150 },
			wantErr: true,
		},
		{
			name: "accept threshold below surface threshold",
			mutate: func(c *Config) {
				c.SurfaceThreshold = 60
				c.AcceptThreshold = 50
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServerConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "0.0.0.0", Port: 9090}
	if got := cfg.Address(); got != "0.0.0.0:9090" {
		t.Errorf("Address() = %v, want 0.0.0.0:9090", got)
	}
}

func TestConfigIsDebug(t *testing.T) {
	tests := []struct {
		logLevel string
		want     bool
	}{
		{"debug", true},
		{"info", false},
		{"warn", false},
		{"error", false},
	}

	for _, tt := range tests {
		t.Run(tt.logLevel, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validServerConfig(t)
	cfg.TemplateDir = filepath.Join(t.TempDir(), "nested", "store")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	if _, err := os.Stat(cfg.TemplateDir); err != nil {
		t.Errorf("Validate() should have created %s: %v", cfg.TemplateDir, err)
	}
}

func TestConfigIsServerMode(t *testing.T) {
	cfg := &Config{Mode: ModeServer}
	if !cfg.IsServerMode() {
		t.Error("IsServerMode() should be true for server mode")
	}
	if cfg.IsStdioMode() {
		t.Error("IsStdioMode() should be false for server mode")
	}

	cfg.Mode = ModeStdio
	if cfg.IsServerMode() {
		t.Error("IsServerMode() should be false for stdio mode")
	}
	if !cfg.IsStdioMode() {
		t.Error("IsStdioMode() should be true for stdio mode")
	}
}
