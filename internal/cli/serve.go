package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/viharnani/smart-home-monitoring/internal/scheduler"
	"github.com/viharnani/smart-home-monitoring/internal/server"
	"github.com/viharnani/smart-home-monitoring/internal/stream"
	"github.com/viharnani/smart-home-monitoring/pkg/alerts"
	"github.com/viharnani/smart-home-monitoring/pkg/monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, live stream and background jobs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}

	logger := newLogger(cfg)

	var hub *stream.Hub
	var extra []alerts.Notifier
	var publisher monitor.ReadingPublisher
	if cfg.Server.Stream {
		hub = stream.NewHub(nil, logger)
		extra = append(extra, hub)
		publisher = hub
	}

	a, err := initApp(cmd.Context(), cfg, extra, publisher)
	if err != nil {
		return err
	}
	defer a.Close()
	if hub != nil {
		hub.SetIngester(a.monitor)
		defer hub.Close()
	}

	apiServer := server.NewServer(a.monitor, a.engine, server.Options{
		Hub:       hub,
		RateLimit: cfg.Server.RateLimit.RPS,
		Burst:     cfg.Server.RateLimit.Burst,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	jobs := scheduler.New(a.engine, a.store, a.dispatcher, scheduler.Config{
		ForecastInterval:   cfg.Forecast.Interval,
		RedispatchInterval: cfg.Dispatch.RedispatchInterval,
	}, logger)

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	jobsDone := make(chan struct{})
	go func() {
		jobs.Run(jobsCtx)
		close(jobsDone)
	}()
	defer func() {
		stopJobs()
		<-jobsDone
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("energymon started",
			"listen", cfg.Server.Listen,
			"storage", cfg.Storage.Driver,
			"notifiers", a.dispatcher.Enabled(),
			"stream", hub != nil,
		)
		fmt.Fprintf(os.Stderr, "energymon listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("energymon stopped")
	return nil
}
