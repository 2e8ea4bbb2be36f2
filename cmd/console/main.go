// Package main is the entry point for the Vitalis console.
// It loads configuration, opens the live telemetry channels, starts the
// background scheduler and serves the dashboard API, either as a Windows
// service or as a standalone foreground process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Guliveer/vitalis/console/internal/api"
	"github.com/Guliveer/vitalis/console/internal/collector"
	"github.com/Guliveer/vitalis/console/internal/config"
	"github.com/Guliveer/vitalis/console/internal/core"
	"github.com/Guliveer/vitalis/console/internal/pull"
	"github.com/Guliveer/vitalis/console/internal/scheduler"
	"github.com/Guliveer/vitalis/console/internal/service"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (default: search standard locations)")
	showVersion = flag.Bool("version", false, "Show version and exit")
	channelBase = flag.String("url", "", "WebSocket base URL for the live channels, e.g. ws://host:8000")
	fallbackURL = flag.String("fallback", "", "HTTP base URL for the fallback pull endpoints")
	listenAddr  = flag.String("listen", "", "Address for the dashboard API")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("vitalis-console %s\n", version)
		os.Exit(0)
	}

	cli := config.CLIOverrides{
		ChannelBase: *channelBase,
		FallbackURL: *fallbackURL,
		Listen:      *listenAddr,
	}
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadLayered(cli, embeddedConfig, *configPath)
	} else {
		cfg, err = config.LoadLayered(cli, embeddedConfig)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := dumpConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting Vitalis Console",
		zap.String("version", version),
		zap.Int("channels", len(cfg.Channels.Endpoints)),
		zap.String("fallback", cfg.Fallback.URL))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			runConsole(ctx, cfg, logger)
		})
		if err := svc.Run(); err != nil {
			logger.Fatal("Service failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	runConsole(ctx, cfg, logger)
	logger.Info("Console stopped")
}

// runConsole wires the session, scheduler and API together.
// It blocks until the context is cancelled.
func runConsole(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	session, err := core.New(cfg, core.Options{}, logger)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}
	defer session.Close()

	// The scheduler's first refresh seeds state before the first live push.
	var source core.Source
	if client := pull.New(cfg.Fallback, logger); client.Enabled() {
		source = client
	}

	opts := scheduler.Options{
		Source:          source,
		RefreshInterval: cfg.Fallback.RefreshInterval.Duration,
		PruneInterval:   pruneInterval(cfg.Alerts.Retention.Duration),
		Timeout:         cfg.Fallback.Timeout.Duration,
	}
	if cfg.Host.Enabled {
		opts.Sampler = collector.HostRegistry(cfg.Host.DiskPath, logger)
		opts.HostInterval = cfg.Host.Interval.Duration
	}
	sched := scheduler.New(session, opts, logger)

	session.Start()
	go sched.Start(ctx)

	logger.Info("Console running",
		zap.Bool("auto_connect", cfg.Channels.AutoConnect),
		zap.Bool("host_sampling", cfg.Host.Enabled),
		zap.String("listen", cfg.API.Listen))

	if err := api.New(session, source, logger).Run(ctx, cfg.API.Listen); err != nil {
		logger.Error("API server stopped", zap.Error(err))
	}
}

// dumpConfig writes the layered configuration so it can be edited and
// passed back with -config. Invalid configurations are not written.
func dumpConfig(cfg *config.Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.WriteConfig(cfg, path)
}

// pruneInterval sweeps expired alerts ten times per retention window.
func pruneInterval(retention time.Duration) time.Duration {
	if d := retention / 10; d >= time.Second {
		return d
	}
	return time.Second
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a rotating JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Console output (human-readable)
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	// File output (structured JSON, rotated by size)
	if cfg.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		)
		cores = append(cores, fileCore)
	}

	return zap.New(zapcore.NewTee(cores...))
}
