// Package scheduler runs the periodic jobs of the monitoring service:
// forecast generation for every reporting device and redelivery of alerts
// the notifiers did not accept.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

const (
	DefaultForecastInterval   = time.Hour
	DefaultRedispatchInterval = 5 * time.Minute
	DefaultRedispatchBatch    = 100
)

// ForecastRunner generates predictions for every known device.
type ForecastRunner interface {
	GenerateAll(ctx context.Context) (int, error)
}

// PendingSource lists alerts that have not been delivered yet.
type PendingSource interface {
	PendingAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// Dispatcher delivers alerts.
type Dispatcher interface {
	Enabled() bool
	Dispatch(ctx context.Context, alert *model.Alert) error
}

// Config sets the job cadences. A zero interval uses the default; a
// negative interval disables the job.
type Config struct {
	ForecastInterval   time.Duration
	RedispatchInterval time.Duration
	RedispatchBatch    int

	Now func() time.Time
}

// Scheduler owns the background job loops.
type Scheduler struct {
	forecasts  ForecastRunner
	pending    PendingSource
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
}

// New creates a scheduler. forecasts or dispatcher may be nil to disable
// the matching job.
func New(forecasts ForecastRunner, pending PendingSource, dispatcher Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.ForecastInterval == 0 {
		cfg.ForecastInterval = DefaultForecastInterval
	}
	if cfg.RedispatchInterval == 0 {
		cfg.RedispatchInterval = DefaultRedispatchInterval
	}
	if cfg.RedispatchBatch <= 0 {
		cfg.RedispatchBatch = DefaultRedispatchBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		forecasts:  forecasts,
		pending:    pending,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run starts the job loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if s.forecasts != nil && s.cfg.ForecastInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.cfg.ForecastInterval, func(ctx context.Context) {
				if _, err := s.RunForecasts(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("forecast run failed", "error", err)
				}
			})
		}()
	}

	if s.redispatchEnabled() && s.cfg.RedispatchInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.every(ctx, s.cfg.RedispatchInterval, func(ctx context.Context) {
				if _, err := s.Redispatch(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("alert redispatch failed", "error", err)
				}
			})
		}()
	}

	wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// RunForecasts generates a prediction for every device once.
func (s *Scheduler) RunForecasts(ctx context.Context) (int, error) {
	if s.forecasts == nil {
		return 0, nil
	}
	n, err := s.forecasts.GenerateAll(ctx)
	s.logger.Info("forecasts generated", "count", n)
	return n, err
}

func (s *Scheduler) redispatchEnabled() bool {
	return s.pending != nil && s.dispatcher != nil && s.dispatcher.Enabled()
}

// Redispatch retries delivery of undelivered alerts once and returns how
// many were delivered. Alerts raised within the last interval are left to
// the in-flight dispatch of the reading that raised them.
func (s *Scheduler) Redispatch(ctx context.Context) (int, error) {
	if !s.redispatchEnabled() {
		return 0, nil
	}

	list, err := s.pending.PendingAlerts(ctx, s.cfg.RedispatchBatch)
	if err != nil {
		return 0, err
	}

	cutoff := s.cfg.Now().Add(-s.cfg.RedispatchInterval)
	delivered := 0
	for i := range list {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		a := &list[i]
		if a.Timestamp.After(cutoff) {
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, a); err != nil {
			s.logger.Warn("alert redelivery failed", "alert", a.ID, "kind", a.Kind, "error", err)
			continue
		}
		delivered++
	}

	if len(list) > 0 {
		s.logger.Info("alerts redispatched", "pending", len(list), "delivered", delivered)
	}
	return delivered, nil
}
