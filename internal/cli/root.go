package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/internal/config"
	"github.com/viharnani/smart-home-monitoring/pkg/alerts"
	"github.com/viharnani/smart-home-monitoring/pkg/forecast"
	"github.com/viharnani/smart-home-monitoring/pkg/monitor"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "energymon",
	Short: "energymon - smart-home energy monitoring and alerting",
	Long: `energymon records device energy readings, checks them against per-user
budgets and per-device daily, weekly and monthly limits, delivers alerts to
Slack, webhooks, Redis and Kafka, and forecasts upcoming consumption.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.energymon/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage opens the configured storage backend.
func initStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Storage.DSN)
	default:
		return storage.NewSQLite(cfg.Storage.Path)
	}
}

// initNotifiers creates alert notifiers from config. The returned closers
// release broker connections.
func initNotifiers(cfg *config.Config) ([]alerts.Notifier, []io.Closer, error) {
	var notifiers []alerts.Notifier
	var closers []io.Closer

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	if cfg.Alerts.Redis.Enabled {
		r, err := alerts.NewRedisNotifier(
			cfg.Alerts.Redis.Addr,
			cfg.Alerts.Redis.Password,
			cfg.Alerts.Redis.DB,
			cfg.Alerts.Redis.Channel,
		)
		if err != nil {
			return nil, closers, fmt.Errorf("init redis notifier: %w", err)
		}
		notifiers = append(notifiers, r)
		closers = append(closers, r)
	}

	if cfg.Alerts.Kafka.Enabled {
		k, err := alerts.NewKafkaNotifier(
			cfg.Alerts.Kafka.Brokers,
			cfg.Alerts.Kafka.Topic,
			cfg.Alerts.Kafka.Compression,
		)
		if err != nil {
			return nil, closers, fmt.Errorf("init kafka notifier: %w", err)
		}
		notifiers = append(notifiers, k)
		closers = append(closers, k)
	}

	return notifiers, closers, nil
}

// app is the wired set of components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      storage.Storage
	dispatcher *alerts.Dispatcher
	monitor    *monitor.Monitor
	engine     *forecast.Engine
	closers    []io.Closer
}

// initApp wires storage, notifiers, the monitor and the forecast engine.
// extra notifiers are added after the configured ones; publisher receives
// every stored reading when set.
func initApp(ctx context.Context, cfg *config.Config, extra []alerts.Notifier, publisher monitor.ReadingPublisher) (*app, error) {
	logger := newLogger(cfg)

	loc, err := cfg.Monitor.Location()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	notifiers, closers, err := initNotifiers(cfg)
	if err != nil {
		closeAll(closers)
		store.Close()
		return nil, err
	}
	notifiers = append(notifiers, extra...)

	dispatcher := alerts.NewDispatcher(notifiers, store, alerts.DispatcherConfig{
		Timeout: cfg.Dispatch.Timeout,
		Breaker: alerts.BreakerConfig{
			Threshold:    cfg.Dispatch.BreakerThreshold,
			ResetTimeout: cfg.Dispatch.BreakerReset,
		},
	}, logger)

	opts := monitor.Options{
		BudgetWindow: cfg.Monitor.BudgetWindow,
		Location:     loc,
		Dispatcher:   dispatcher,
		Publisher:    publisher,
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		monitor:    monitor.New(store, opts, logger),
		engine: forecast.New(store, forecast.Options{
			Lookback: cfg.Forecast.Lookback,
			Retain:   cfg.Forecast.Retain,
			Location: loc,
		}, logger),
		closers: closers,
	}

	if cfg.LimitsFile != "" {
		limits, err := monitor.LoadLimits(cfg.LimitsFile)
		if err == nil {
			err = a.monitor.Registry().Apply(ctx, limits)
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("apply limits file: %w", err)
		}
	}

	return a, nil
}

// openApp loads config and wires the components for a one-shot command.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return initApp(cmd.Context(), cfg, nil, nil)
}

// Close releases notifier connections and storage.
func (a *app) Close() error {
	closeAll(a.closers)
	return a.store.Close()
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
