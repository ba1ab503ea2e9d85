package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dokmap/dokmap/internal/config"
	"github.com/dokmap/dokmap/internal/extract"
	"github.com/dokmap/dokmap/internal/layout"
	"github.com/dokmap/dokmap/internal/llm"
	"github.com/dokmap/dokmap/internal/match"
	"github.com/dokmap/dokmap/internal/mcp"
	"github.com/dokmap/dokmap/internal/ocr"
	"github.com/dokmap/dokmap/internal/pipeline"
	"github.com/dokmap/dokmap/internal/schema"
	"github.com/dokmap/dokmap/internal/storage"
	"github.com/dokmap/dokmap/internal/store"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging configures logging based on the server mode and returns the
// structured logger the pipeline components share.
func setupLogging(cfg *config.Config) *slog.Logger {
	if cfg.IsStdioMode() {
		// In stdio mode, redirect log output to stderr to avoid interfering with MCP protocol
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(os.NewFile(0, os.DevNull))
		}
	} else {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Structured logs always go to stderr; stdout belongs to the protocol.
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildService wires the pipeline from the configuration.
func buildService(cfg *config.Config, logger *slog.Logger) (*pipeline.Service, error) {
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store: %w", err)
	}

	patterns, err := extract.NewPatternExtractor(extract.DefaultRules(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction rules: %w", err)
	}

	var recognizer ocr.Recognizer
	if cfg.OCREndpoint != "" {
		recognizer = ocr.NewHTTPClient(ocr.ClientConfig{
			Endpoint: cfg.OCREndpoint,
			Language: cfg.OCRLanguage,
		}, nil, logger)
	}

	var model *llm.Extractor
	if cfg.LLMEndpoint != "" {
		chatClient := llm.NewHTTPChatClient(llm.ClientConfig{
			Endpoint:    cfg.LLMEndpoint,
			Model:       cfg.LLMModel,
			APIKey:      cfg.LLMAPIKey,
			Temperature: cfg.LLMTemperature,
			Retry: llm.RetryPolicy{
				MaxAttempts: cfg.LLMMaxAttempts,
				BaseDelay:   cfg.LLMBaseDelay,
			},
		}, nil, nil, logger)
		model = llm.NewExtractor(chatClient, logger)
	}

	return pipeline.NewService(pipeline.Deps{
		Layout:      layout.NewExtractor(logger),
		Matcher:     match.NewMatcher(cfg.SurfaceThreshold, cfg.AcceptThreshold),
		Patterns:    patterns,
		Model:       model,
		Recognizer:  recognizer,
		TextLayer:   ocr.NewTextLayerReader(logger),
		Storage:     storage.NewFilesystem(cfg.TemplateDir, logger),
		Catalog:     schema.NewCatalog(st.DB()),
		Store:       st,
		MaxFileSize: cfg.MaxFileSize,
		Logger:      logger,
	}), nil
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		log.Printf("Received signal: %s", sig)
		log.Println("Initiating graceful shutdown...")
		cancel()

		if err := <-serverErrCh; err != nil {
			log.Printf("Server shutdown with error: %v", err)
			os.Exit(1)
		}

	case err := <-serverErrCh:
		if err != nil {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
	}

	log.Println("Server stopped successfully")
}

// runStdioMode handles stdio mode execution
func runStdioMode(ctx context.Context, _ context.CancelFunc, server *mcp.Server) {
	// In stdio mode the parent process controls our lifecycle; exit cleanly
	// when stdin closes.
	if err := server.Run(ctx); err != nil {
		if os.Getenv("DEBUG") != "" {
			log.Printf("Server error: %v", err)
		}
		os.Exit(1)
	}
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg)

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() && cfg.IsServerMode() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	service, err := buildService(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	server, err := mcp.NewServer(cfg, service)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		runServerMode(ctx, cancel, server)
	} else {
		runStdioMode(ctx, cancel, server)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("dokmap\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
