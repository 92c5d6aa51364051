// Compose Doctor - closed-loop repair daemon for Compose-managed services
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/supporttools/compose-doctor/pkg/alertfeed"
	"github.com/supporttools/compose-doctor/pkg/collector"
	"github.com/supporttools/compose-doctor/pkg/controller"
	"github.com/supporttools/compose-doctor/pkg/dispatch"
	"github.com/supporttools/compose-doctor/pkg/dockerplane"
	"github.com/supporttools/compose-doctor/pkg/logger"
	"github.com/supporttools/compose-doctor/pkg/metrics"
	"github.com/supporttools/compose-doctor/pkg/notify"
	"github.com/supporttools/compose-doctor/pkg/reload"
	"github.com/supporttools/compose-doctor/pkg/strategy"
	"github.com/supporttools/compose-doctor/pkg/tracker"
	"github.com/supporttools/compose-doctor/pkg/types"
	"github.com/supporttools/compose-doctor/pkg/util"
)

// Build-time variables set by goreleaser or make
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Command-line flags
var (
	configPath = flag.String("config", "/etc/compose-doctor/config.yaml", "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Override log level (debug, info, warn, error, fatal)")
	logFormat  = flag.String("log-format", "", "Override log format (json, text)")
	dryRun     = flag.Bool("dry-run", false, "Enable dry-run mode (decisions run, actions are logged only)")
	noReload   = flag.Bool("no-reload", false, "Disable configuration hot reload")
	version    = flag.Bool("version", false, "Show version information and exit")
)

func main() {
	flag.Parse()

	// Handle version flag
	if *version {
		printVersion()
		os.Exit(0)
	}

	// Load configuration
	config, err := loadConfiguration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(config.Settings.LogLevel, config.Settings.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	log.Infof("Compose Doctor %s starting", Version)
	log.Infof("Configuration loaded from %s (tick=%v, dryRun=%v)",
		*configPath, config.Settings.TickInterval, config.Settings.DryRun)

	// Strategy table: incomplete coverage is a configuration error.
	table, err := strategy.NewTable(config.Strategies)
	if err != nil {
		log.Fatalf("Failed to build strategy table: %v", err)
	}
	for _, kind := range table.Kinds() {
		rule, _ := table.Rule(kind)
		log.Infof("Strategy for %s: %s, cooldown %v, max %d attempts",
			kind, rule.Action, rule.Cooldown, rule.MaxAttempts)
	}

	// Control plane
	plane, err := dockerplane.New(config.Cleanup)
	if err != nil {
		log.Fatalf("Failed to create docker control plane: %v", err)
	}
	defer plane.Close()
	plane.SetLogger(log)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := plane.Ping(startupCtx); err != nil {
		startupCancel()
		log.Fatalf("Control plane check failed: %v", err)
	}

	// Core components
	queue := collector.NewAlertQueue(0)
	classifier := collector.NewClassifier(
		config.Settings.OptOutLabel,
		config.Settings.OptOutValue,
		config.Settings.RestartStormThreshold,
	)

	col, err := collector.New(plane, queue, classifier)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}
	col.SetLogger(log)

	trk, err := tracker.New(table)
	if err != nil {
		log.Fatalf("Failed to create tracker: %v", err)
	}
	trk.SetLogger(log)

	history := dispatch.NewHistory(config.Settings.HistorySize)
	disp, err := dispatch.New(plane, config.Settings.ActionTimeout, history)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	disp.SetLogger(log)
	disp.SetDryRun(config.Settings.DryRun || *dryRun)

	// Notification transport
	escalator := createEscalator(startupCtx, config)
	startupCancel()

	// Metrics
	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if config.Metrics.Enabled {
		registry := metrics.NewRegistry()
		m, err = metrics.NewMetrics("compose_doctor", nil)
		if err != nil {
			log.Fatalf("Failed to create metrics: %v", err)
		}
		if err := m.Register(registry); err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		metricsServer, err = metrics.NewServer(registry, config.Metrics.Addr, config.Metrics.Path)
		if err != nil {
			log.Fatalf("Failed to create metrics server: %v", err)
		}
		metricsServer.SetLogger(log)
		queue.SetDropFunc(m.AlertsDroppedTotal.Inc)
	}

	ctrl, err := controller.New(col, trk, disp, escalator, m, config.Settings.TickInterval)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	ctrl.SetLogger(log)

	if metricsServer != nil {
		metricsServer.SetStatusFunc(func() interface{} { return ctrl.Status() })
		metricsServer.SetResetFunc(ctrl.Reset)
		if err := metricsServer.Start(); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Alert feed
	var webhook *alertfeed.Webhook
	if config.Alerts.WebhookAddr != "" {
		webhook, err = alertfeed.NewWebhook(queue, config.Alerts.WebhookAddr)
		if err != nil {
			log.Fatalf("Failed to create alert webhook: %v", err)
		}
		webhook.SetLogger(log)
		if err := webhook.Start(); err != nil {
			log.Fatalf("Failed to start alert webhook: %v", err)
		}
	}
	if config.Alerts.PrometheusURL != "" {
		poller, err := alertfeed.NewPoller(queue, config.Alerts.PrometheusURL, config.Alerts.PollPeriod)
		if err != nil {
			log.Fatalf("Failed to create alert poller: %v", err)
		}
		poller.SetLogger(log)
		go poller.Run(ctx)
	}

	// Configuration hot reload
	if !*noReload {
		reloader, err := reload.NewReloader(*configPath, config, func(cfg *types.Config) {
			if err := logger.Initialize(cfg.Settings.LogLevel, cfg.Settings.LogFormat); err != nil {
				logger.Errorf("Keeping previous log settings: %v", err)
			}
			ctrl.UpdateSettings(cfg.Settings)
		})
		if err != nil {
			log.Warnf("Hot reload unavailable: %v", err)
		} else {
			reloader.SetLogger(log)
			go func() {
				if err := reloader.Run(ctx); err != nil {
					log.Errorf("Config reloader stopped: %v", err)
				}
			}()
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	// Start the repair loop in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- ctrl.Run(ctx)
	}()

	log.Infof("Compose Doctor started successfully")

	// Wait for shutdown signal or loop error
	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, initiating graceful shutdown", sig)
	case err := <-errChan:
		if err != nil {
			log.Errorf("Repair loop error: %v", err)
		}
	}

	// Cancel context to signal shutdown
	cancel()

	// Give the loop time to finish its tick and in-flight actions
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		<-errChan
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		log.Warnf("Shutdown timeout exceeded, forcing exit")
	}

	if webhook != nil {
		webhook.Stop(shutdownCtx)
	}
	if metricsServer != nil {
		metricsServer.Stop(shutdownCtx)
	}

	log.Infof("Compose Doctor stopped")
}

// loadConfiguration loads and validates the configuration with proper precedence:
// 1. Start with file config or defaults if file doesn't exist
// 2. Apply CLI flag overrides
// 3. Re-validate the final configuration
func loadConfiguration() (*types.Config, error) {
	var config *types.Config
	var err error

	// Try to load config from file, fall back to defaults
	if _, statErr := os.Stat(*configPath); os.IsNotExist(statErr) {
		config, err = util.DefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		config, err = util.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	}

	// Apply CLI flag overrides
	if *logLevel != "" {
		config.Settings.LogLevel = *logLevel
	}
	if *logFormat != "" {
		config.Settings.LogFormat = *logFormat
	}
	if *dryRun {
		config.Settings.DryRun = true
	}

	// Re-validate configuration after overrides
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after applying overrides: %w", err)
	}

	return config, nil
}

// createEscalator wires the Telegram transport when configured. A failed
// startup check disables notifications rather than aborting the daemon.
func createEscalator(ctx context.Context, config *types.Config) *notify.Escalator {
	log := logger.Get()
	hostname, _ := os.Hostname()

	if config.Notify.TelegramToken == "" {
		log.Infof("No notification transport configured, escalations are logged only")
		esc := notify.NewEscalator(nil, hostname)
		esc.SetLogger(log)
		return esc
	}

	telegram, err := notify.NewTelegram(config.Notify.TelegramToken, config.Notify.TelegramChatID)
	if err != nil {
		log.Errorf("Telegram notifier misconfigured, escalations are logged only: %v", err)
		esc := notify.NewEscalator(nil, hostname)
		esc.SetLogger(log)
		return esc
	}
	telegram.SetLogger(log)

	if err := telegram.Ping(ctx); err != nil {
		log.Warnf("Telegram getMe check failed, keeping transport anyway: %v", err)
	}

	esc := notify.NewEscalator(telegram, hostname)
	esc.SetLogger(log)
	return esc
}

// printVersion prints version information to stdout
func printVersion() {
	fmt.Printf("compose-doctor %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built: %s\n", BuildTime)
	fmt.Printf("  Go Version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
