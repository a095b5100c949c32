package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viharnani/smart-home-monitoring/pkg/metrics"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// DefaultSendTimeout bounds a single notifier call.
const DefaultSendTimeout = 5 * time.Second

var tracer = otel.Tracer("energymon/alerts")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds each notifier call.
	Timeout time.Duration

	// Breaker configures the breaker created for every notifier.
	Breaker BreakerConfig
}

type route struct {
	notifier Notifier
	breaker  *Breaker
}

// Dispatcher hands alerts to every notifier, each behind its own breaker.
// It never retries; undelivered alerts keep their failed status and are
// picked up again by whoever drives re-dispatch, which only reaches the
// notifiers that have not accepted them yet.
type Dispatcher struct {
	routes  []route
	timeout time.Duration
	status  StatusRecorder
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher. status may be nil when delivery
// outcomes need not be persisted.
func NewDispatcher(notifiers []Notifier, status StatusRecorder, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	routes := make([]route, 0, len(notifiers))
	for _, n := range notifiers {
		routes = append(routes, route{notifier: n, breaker: NewBreaker(cfg.Breaker)})
		metrics.BreakerOpen.WithLabelValues(n.Name()).Set(0)
	}
	return &Dispatcher{
		routes:  routes,
		timeout: cfg.Timeout,
		status:  status,
		logger:  logger,
	}
}

// Enabled reports whether any notifier is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.routes) > 0
}

// Dispatch sends alert to every notifier not yet listed in
// alert.DeliveredTo, appends the ones that accept it, and records the
// outcome in alert.Status: sent once every notifier has accepted it, failed
// otherwise. Nothing else about the alert changes. The returned error joins
// the failures of each notifier.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *model.Alert) error {
	if len(d.routes) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "alerts.Dispatch",
		trace.WithAttributes(
			attribute.String("alert.id", alert.ID),
			attribute.String("alert.kind", string(alert.Kind)),
		),
	)
	defer span.End()

	delivered := make(map[string]bool, len(alert.DeliveredTo))
	for _, name := range alert.DeliveredTo {
		delivered[name] = true
	}

	var errs []error
	for _, r := range d.routes {
		name := r.notifier.Name()
		if delivered[name] {
			continue
		}
		if err := d.send(ctx, r, *alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		delivered[name] = true
		alert.DeliveredTo = append(alert.DeliveredTo, name)
	}
	span.SetAttributes(attribute.StringSlice("alert.delivered_to", alert.DeliveredTo))

	alert.Status = model.DeliverySent
	if len(errs) > 0 {
		alert.Status = model.DeliveryFailed
	}
	if d.status != nil && alert.ID != "" {
		if err := d.status.SetAlertDelivery(ctx, alert.ID, alert.Status, alert.DeliveredTo); err != nil {
			d.logger.Error("record alert status", "alert", alert.ID, "status", alert.Status, "error", err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	return err
}

func (d *Dispatcher) send(ctx context.Context, r route, alert model.Alert) error {
	name := r.notifier.Name()
	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return r.notifier.Send(sendCtx, alert)
	})

	open := 0.0
	if r.breaker.State() == BreakerOpen {
		open = 1
	}
	metrics.BreakerOpen.WithLabelValues(name).Set(open)

	switch {
	case err == nil:
		metrics.DispatchTotal.WithLabelValues(name, "sent").Inc()
	case errors.Is(err, ErrCircuitOpen):
		metrics.DispatchTotal.WithLabelValues(name, "circuit_open").Inc()
		d.logger.Warn("notifier circuit open", "notifier", name, "alert", alert.ID)
	default:
		metrics.DispatchTotal.WithLabelValues(name, "failed").Inc()
		d.logger.Error("send alert failed",
			"notifier", name,
			"alert", alert.ID,
			"kind", alert.Kind,
			"error", err,
		)
	}
	return err
}

// Breakers returns the breaker state of every notifier by name.
func (d *Dispatcher) Breakers() map[string]BreakerState {
	states := make(map[string]BreakerState, len(d.routes))
	for _, r := range d.routes {
		states[r.notifier.Name()] = r.breaker.State()
	}
	return states
}
