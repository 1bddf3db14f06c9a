package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zigsight/zigsight/pkg/analytics"
	"github.com/zigsight/zigsight/pkg/api"
	"github.com/zigsight/zigsight/pkg/collector"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/metrics"
	"github.com/zigsight/zigsight/pkg/pidfile"
	"github.com/zigsight/zigsight/pkg/poller"
	"github.com/zigsight/zigsight/pkg/recommend"
	"github.com/zigsight/zigsight/pkg/scanner"
	"github.com/zigsight/zigsight/pkg/telem"
	"github.com/zigsight/zigsight/pkg/topology"
)

var (
	configPath = flag.String("config", "/etc/zigsight/zigsight.yaml", "Path to YAML configuration file")
	envPath    = flag.String("env-file", "", "Path to .env file with credentials")
	pidPath    = flag.String("pid-file", "/tmp/zigsightd.pid", "Path to PID file")
	logLevel   = flag.String("log-level", "", "Override log level (debug|info|warn|error|trace)")
	version    = flag.Bool("version", false, "Show version information")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (equivalent to trace level)")
	force      = flag.Bool("force", false, "Force start by removing stale PID file")
)

const (
	AppName    = "zigsightd"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	// Credentials come from the environment; an optional .env file feeds it
	// before the config load picks the values up.
	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load env file %s: %v\n", *envPath, err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	effectiveLogLevel := cfg.LogLevel
	if *logLevel != "" {
		effectiveLogLevel = *logLevel
	}
	if *verbose {
		effectiveLogLevel = "trace"
	}

	logger := logx.NewLogger(effectiveLogLevel, AppName)

	pidFile := pidfile.New(*pidPath)
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		logger.Error("Failed to check for running instance", "error", err)
		os.Exit(1)
	}
	if running {
		if *force {
			logger.Warn("Another instance is running, but force flag specified", "existing_pid", existingPID)
			if err := pidFile.ForceRemove(); err != nil {
				logger.Error("Failed to remove existing PID file", "error", err)
				os.Exit(1)
			}
		} else {
			logger.Error("Another instance is already running", "existing_pid", existingPID, "pid_file", *pidPath)
			fmt.Fprintf(os.Stderr, "Error: %s is already running with PID %d\n", AppName, existingPID)
			fmt.Fprintf(os.Stderr, "Use --force to override, or stop the existing instance first\n")
			os.Exit(1)
		}
	}
	if err := pidFile.Create(); err != nil {
		logger.Error("Failed to create PID file", "error", err, "path", *pidPath)
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting zigsightd",
		"version", AppVersion,
		"config", *configPath,
		"log_level", effectiveLogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := telem.NewStore(cfg.Store.MaxEntriesPerDevice, cfg.RetentionAge())
	if err != nil {
		logger.Error("Failed to create telemetry store", "error", err)
		os.Exit(1)
	}

	recommendEngine := recommend.NewEngine(logger.WithComponent("recommend"))

	var persister *telem.Persister
	if cfg.Store.PersistPath != "" {
		persister, err = telem.NewPersister(cfg.Store.PersistPath)
		if err != nil {
			logger.Error("Failed to open persistence file", "error", err, "path", cfg.Store.PersistPath)
			os.Exit(1)
		}
		defer persister.Close()

		if err := persister.Load(store); err != nil {
			logger.Warn("Failed to restore persisted histories", "error", err)
		}
		if history, err := persister.LoadRecommendations(); err != nil {
			logger.Warn("Failed to restore recommendation history", "error", err)
		} else {
			recommendEngine.RestoreHistory(history)
		}

		logger.Info("Persisted state restored",
			"devices", len(store.Devices()),
			"path", cfg.Store.PersistPath,
		)
	}

	analyticsEngine, err := analytics.NewEngine(cfg.Analytics, store, logger.WithComponent("analytics"))
	if err != nil {
		logger.Error("Failed to create analytics engine", "error", err)
		os.Exit(1)
	}

	scanSource, err := scanner.NewSource(cfg.Scanner, logger.WithComponent("scanner"))
	if err != nil {
		logger.Error("Failed to create scan source", "error", err)
		os.Exit(1)
	}

	var coll collector.Collector
	if cfg.MQTT.Enabled {
		z2m := collector.NewZigbee2MQTT(cfg.MQTT, store, logger.WithComponent("collector"))
		if err := z2m.Start(ctx); err != nil {
			logger.Error("Failed to start collector", "error", err)
			os.Exit(1)
		}
		coll = z2m
		defer coll.Stop()
	} else {
		logger.Warn("MQTT collector disabled; no telemetry will be ingested")
	}

	var metricsExporter *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsExporter = metrics.New(logger.WithComponent("metrics"))
		if err := metricsExporter.Serve(cfg.Metrics.Port); err != nil {
			logger.Error("Failed to start metrics listener", "error", err)
			os.Exit(1)
		}
	}

	p := poller.New(cfg.Poller, store, analyticsEngine, recommendEngine, metricsExporter, persister, logger.WithComponent("poller"))
	p.Start(ctx)

	healthOf := func() map[string]interface{} {
		health := map[string]interface{}{
			"scanner": scanSource.Name(),
			"version": AppVersion,
		}
		if coll != nil {
			state := "unhealthy"
			if coll.Healthy() {
				state = "healthy"
			}
			health["collector"] = state
		} else {
			health["collector"] = "disabled"
		}
		return health
	}

	server := api.NewServer(
		cfg.API,
		store,
		analyticsEngine,
		recommendEngine,
		scanSource,
		topology.NewBuilder(store, logger.WithComponent("topology")),
		healthOf,
		logger.WithComponent("api"),
	)
	if err := server.Start(); err != nil {
		logger.Error("Failed to start API server", "error", err)
		os.Exit(1)
	}

	logger.Info("zigsightd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", "error", err)
	}
	if metricsExporter != nil {
		if err := metricsExporter.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics listener shutdown failed", "error", err)
		}
	}
	p.Stop()

	logger.Info("zigsightd stopped")
}
