// Package main is the entry point for the sheet service daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avasheets/internal/audit"
	"github.com/vyrodovalexey/avasheets/internal/auth"
	"github.com/vyrodovalexey/avasheets/internal/config"
	"github.com/vyrodovalexey/avasheets/internal/gateway"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/store"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runService(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SHEETD_CONFIG_PATH", "configs/sheetd.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SHEETD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SHEETD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avasheets version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.ServiceConfig {
	logger.Info("starting avasheets",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.Validate(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("listen", cfg.Server.Addr()),
		observability.String("store", cfg.Store.Type),
		observability.Bool("audit", cfg.Audit.IsEnabled()),
	)

	return cfg
}

// application holds all application components.
type application struct {
	gateway *gateway.Gateway
	store   store.Store
	audit   audit.Logger
	config  *config.ServiceConfig
}

// initApplication initializes all application components.
func initApplication(cfg *config.ServiceConfig, logger observability.Logger) *application {
	st, err := store.New(&cfg.Store, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", observability.Error(err))
	}

	auditLogger, err := audit.NewLogger(&audit.Config{
		Enabled: cfg.Audit.IsEnabled(),
		Output:  cfg.Audit.Output,
		Format:  cfg.Audit.Format,
	}, audit.WithLoggerLogger(logger))
	if err != nil {
		logger.Fatal("failed to initialize audit logger", observability.Error(err))
	}

	verifier, err := auth.NewJWTVerifier(&cfg.Auth)
	if err != nil {
		logger.Fatal("failed to initialize token verifier", observability.Error(err))
	}

	gw, err := gateway.New(gateway.Options{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Verifier:    verifier,
		AuditLogger: auditLogger,
	})
	if err != nil {
		logger.Fatal("failed to create gateway", observability.Error(err))
	}

	return &application{
		gateway: gw,
		store:   st,
		audit:   auditLogger,
		config:  cfg,
	}
}

// runService starts the gateway and handles shutdown.
func runService(app *application, configPath string, logger observability.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.gateway.Start()
	}()

	watcher := startConfigWatcher(configPath, logger)

	waitForShutdown(app, watcher, errCh, logger)
}

// startConfigWatcher starts the configuration watcher. Reloads are validated
// and logged; the running service keeps its startup settings, so a restart is
// needed for them to take effect.
func startConfigWatcher(configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.ServiceConfig) {
		logger.Info("configuration changed",
			observability.String("listen", newCfg.Server.Addr()))
	}, config.WithLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown waits for a shutdown signal and drains gracefully.
func waitForShutdown(app *application, watcher *config.Watcher, errCh <-chan error, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("gateway failed", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.gateway.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	if err := app.store.Close(); err != nil {
		logger.Error("failed to close store", observability.Error(err))
	}

	if err := app.audit.Close(); err != nil {
		logger.Error("failed to close audit logger", observability.Error(err))
	}

	logger.Info("sheet service stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
