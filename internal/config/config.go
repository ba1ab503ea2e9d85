// Package config loads the pipeline configuration from defaults,
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort         = 8080
	DefaultHost         = "127.0.0.1"
	DefaultLogLevel     = "info"
	DefaultMaxFileSize  = 50 * 1024 * 1024 // 50MB
	DefaultDatabasePath = "dokmap.db"
	DefaultLLMModel     = "gpt-4o-mini"
	DefaultTemperature  = 0.1
	DefaultMaxAttempts  = 4
	DefaultBaseDelay    = time.Second

	// Matcher thresholds
	DefaultSurfaceThreshold = 40.0
	DefaultAcceptThreshold  = 50.0

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the document mapping pipeline.
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Storage configuration
	TemplateDir  string // root of the filesystem object store
	DatabasePath string

	// OCR service configuration
	OCREndpoint string
	OCRLanguage string

	// Language-model service configuration
	LLMEndpoint    string
	LLMModel       string
	LLMAPIKey      string
	LLMTemperature float64
	LLMMaxAttempts int
	LLMBaseDelay   time.Duration

	// Matcher thresholds
	SurfaceThreshold float64
	AcceptThreshold  float64

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:             ModeStdio, // Default to stdio mode for MCP compatibility
		Host:             DefaultHost,
		Port:             DefaultPort,
		TemplateDir:      currentDir,
		DatabasePath:     DefaultDatabasePath,
		OCRLanguage:      "deu",
		LLMModel:         DefaultLLMModel,
		LLMTemperature:   DefaultTemperature,
		LLMMaxAttempts:   DefaultMaxAttempts,
		LLMBaseDelay:     DefaultBaseDelay,
		SurfaceThreshold: DefaultSurfaceThreshold,
		AcceptThreshold:  DefaultAcceptThreshold,
		Version:          "1.0.0",
		ServerName:       "dokmap",
		LogLevel:         DefaultLogLevel,
		MaxFileSize:      DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.TemplateDir != "" {
		if expandedPath, err := filepath.Abs(cfg.TemplateDir); err == nil {
			cfg.TemplateDir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("DOKMAP")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("templatedir", cfg.TemplateDir)
	viper.SetDefault("database", cfg.DatabasePath)
	viper.SetDefault("ocrendpoint", cfg.OCREndpoint)
	viper.SetDefault("ocrlanguage", cfg.OCRLanguage)
	viper.SetDefault("llmendpoint", cfg.LLMEndpoint)
	viper.SetDefault("llmmodel", cfg.LLMModel)
	viper.SetDefault("llmapikey", cfg.LLMAPIKey)
	viper.SetDefault("llmtemperature", cfg.LLMTemperature)
	viper.SetDefault("llmmaxattempts", cfg.LLMMaxAttempts)
	viper.SetDefault("llmbasedelay", cfg.LLMBaseDelay)
	viper.SetDefault("surfacethreshold", cfg.SurfaceThreshold)
	viper.SetDefault("acceptthreshold", cfg.AcceptThreshold)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("templatedir", cfg.TemplateDir, "Root directory of the template/document object store")
	pflag.String("database", cfg.DatabasePath, "Path to the SQLite mapping database")
	pflag.String("ocrendpoint", cfg.OCREndpoint, "OCR service URL (empty to use only native text layers)")
	pflag.String("ocrlanguage", cfg.OCRLanguage, "OCR recognition language code")
	pflag.String("llmendpoint", cfg.LLMEndpoint, "Chat-completions endpoint for model-assisted extraction")
	pflag.String("llmmodel", cfg.LLMModel, "Model name for model-assisted extraction")
	pflag.String("llmapikey", cfg.LLMAPIKey, "API key for the chat-completions endpoint")
	pflag.Float64("llmtemperature", cfg.LLMTemperature, "Sampling temperature for model-assisted extraction")
	pflag.Int("llmmaxattempts", cfg.LLMMaxAttempts, "Total model call attempts including retries")
	pflag.Duration("llmbasedelay", cfg.LLMBaseDelay, "Initial retry backoff delay")
	pflag.Float64("surfacethreshold", cfg.SurfaceThreshold, "Minimum score for a mapping candidate to be surfaced")
	pflag.Float64("acceptthreshold", cfg.AcceptThreshold, "Minimum score for a mapping to be auto-accepted")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "templatedir", "database",
		"ocrendpoint", "ocrlanguage",
		"llmendpoint", "llmmodel", "llmapikey", "llmtemperature",
		"llmmaxattempts", "llmbasedelay",
		"surfacethreshold", "acceptthreshold",
		"loglevel", "maxfilesize",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\ndokmap - document extraction and PDF field mapping pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# stdio mode, current directory as object store (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --templatedir=/data/store                "+
			"# stdio mode with custom object store\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --port=8081                # HTTP server mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_MODE              Server mode\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_HOST              Server host\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_PORT              Server port\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_TEMPLATEDIR       Object store root\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_DATABASE          SQLite database path\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_OCRENDPOINT       OCR service URL\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_LLMENDPOINT       Chat-completions endpoint\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_LLMAPIKEY         Chat-completions API key\n")
		fmt.Fprintf(os.Stderr, "  DOKMAP_LOGLEVEL          Log level\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.TemplateDir = viper.GetString("templatedir")
	cfg.DatabasePath = viper.GetString("database")
	cfg.OCREndpoint = viper.GetString("ocrendpoint")
	cfg.OCRLanguage = viper.GetString("ocrlanguage")
	cfg.LLMEndpoint = viper.GetString("llmendpoint")
	cfg.LLMModel = viper.GetString("llmmodel")
	cfg.LLMAPIKey = viper.GetString("llmapikey")
	cfg.LLMTemperature = viper.GetFloat64("llmtemperature")
	cfg.LLMMaxAttempts = viper.GetInt("llmmaxattempts")
	cfg.LLMBaseDelay = viper.GetDuration("llmbasedelay")
	cfg.SurfaceThreshold = viper.GetFloat64("surfacethreshold")
	cfg.AcceptThreshold = viper.GetFloat64("acceptthreshold")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.TemplateDir == "" {
		return errors.New("template directory cannot be empty")
	}

	// Create the object store root if it does not exist yet
	if _, err := os.Stat(c.TemplateDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.TemplateDir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create template directory %s: %w", c.TemplateDir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access template directory %s: %w", c.TemplateDir, err)
	}

	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}

	if c.LLMMaxAttempts < 1 {
		return errors.New("model call attempts must be at least 1")
	}

	if c.SurfaceThreshold < 0 || c.SurfaceThreshold > 100 ||
		c.AcceptThreshold < 0 || c.AcceptThreshold > 100 {
		return errors.New("matcher thresholds must be between 0 and 100")
	}
	if c.AcceptThreshold < c.SurfaceThreshold {
		return errors.New("accept threshold cannot be below surface threshold")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, TemplateDir: %s, Database: %s, LogLevel: %s}",
		c.Mode, c.Host, c.Port, c.TemplateDir, c.DatabasePath, c.LogLevel)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
