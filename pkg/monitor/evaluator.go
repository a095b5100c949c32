package monitor

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
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

// DefaultBudgetWindow is the number of most recent readings summed against
// a user's budget.
const DefaultBudgetWindow = 24

var tracer = otel.Tracer("energymon/monitor")

// Evaluator decides which limits a freshly appended reading crosses.
type Evaluator struct {
	store        storage.Storage
	agg          *Aggregator
	budgetWindow int
	now          func() time.Time
	logger       *slog.Logger
}

// NewEvaluator creates an evaluator. budgetWindow <= 0 uses DefaultBudgetWindow.
func NewEvaluator(store storage.Storage, agg *Aggregator, budgetWindow int, now func() time.Time, logger *slog.Logger) *Evaluator {
	if budgetWindow <= 0 {
		budgetWindow = DefaultBudgetWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Evaluator{
		store:        store,
		agg:          agg,
		budgetWindow: budgetWindow,
		now:          now,
		logger:       logger,
	}
}

// Evaluate checks the budget and the device's daily, weekly and monthly
// limits, persisting one alert per crossing. The reading must already be
// stored. Each check runs on its own; failures are logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context, reading model.Reading) []model.Alert {
	ctx, span := tracer.Start(ctx, "monitor.Evaluate",
		trace.WithAttributes(
			attribute.String("user.id", reading.UserID),
			attribute.String("device.id", reading.DeviceID),
		),
	)
	defer span.End()

	now := e.now()
	var raised []model.Alert

	if alert, err := e.checkBudget(ctx, reading, now); err != nil {
		e.fail(ctx, span, "budget", reading, err)
	} else if alert != nil {
		raised = append(raised, *alert)
	}

	threshold, err := e.store.GetThreshold(ctx, reading.UserID, reading.DeviceID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return raised
	case err != nil:
		e.fail(ctx, span, "threshold", reading, err)
		return raised
	}

	checks := []struct {
		period model.Period
		kind   model.AlertKind
		limit  *float64
	}{
		{model.PeriodDaily, model.AlertDailyThreshold, &threshold.DailyLimit},
		{model.PeriodWeekly, model.AlertWeeklyThreshold, threshold.WeeklyLimit},
		{model.PeriodMonthly, model.AlertMonthlyThreshold, threshold.MonthlyLimit},
	}
	for _, c := range checks {
		if c.limit == nil {
			continue
		}
		alert, err := e.checkWindow(ctx, reading, c.period, c.kind, *c.limit, now)
		if err != nil {
			e.fail(ctx, span, string(c.period), reading, err)
			continue
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	span.SetAttributes(attribute.Int("alerts.raised", len(raised)))
	return raised
}

func (e *Evaluator) checkBudget(ctx context.Context, reading model.Reading, now time.Time) (*model.Alert, error) {
	budget, err := e.store.GetBudget(ctx, reading.UserID)
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	if budget <= 0 {
		return nil, nil
	}

	sum, err := e.agg.SumRecentWith(ctx, reading, e.budgetWindow)
	if err != nil {
		return nil, err
	}
	if sum.Sum <= budget {
		return nil, nil
	}

	return e.raise(ctx, &model.Alert{
		UserID:    reading.UserID,
		ReadingID: reading.ID,
		Kind:      model.AlertBudgetExceeded,
		Message: fmt.Sprintf("Energy consumption (%.2f kWh) has exceeded your budget of %.2f kWh",
			sum.Sum, budget),
		Limit:     budget,
		Value:     sum.Sum,
		Timestamp: now,
	})
}

func (e *Evaluator) checkWindow(ctx context.Context, reading model.Reading, period model.Period, kind model.AlertKind, limit float64, now time.Time) (*model.Alert, error) {
	_, sum, err := e.agg.SumPeriod(ctx, reading.UserID, reading.DeviceID, period, now)
	if err != nil {
		return nil, err
	}
	if sum.Sum <= limit {
		return nil, nil
	}

	return e.raise(ctx, &model.Alert{
		UserID:    reading.UserID,
		DeviceID:  reading.DeviceID,
		ReadingID: reading.ID,
		Kind:      kind,
		Message: fmt.Sprintf("%s consumption of device %s (%.2f kWh) has exceeded the limit of %.2f kWh",
			periodLabel(period), reading.DeviceID, sum.Sum, limit),
		Limit:     limit,
		Value:     sum.Sum,
		Timestamp: now,
	})
}

// raise persists an alert. An alert that cannot be stored is not returned.
func (e *Evaluator) raise(ctx context.Context, alert *model.Alert) (*model.Alert, error) {
	alert.Status = model.DeliveryPending
	if err := e.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persist %s alert: %w", alert.Kind, err)
	}

	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Kind)).Inc()
	e.logger.Warn("limit crossed",
		"user", alert.UserID,
		"device", alert.DeviceID,
		"kind", alert.Kind,
		"value", alert.Value,
		"limit", alert.Limit,
	)
	return alert, nil
}

func (e *Evaluator) fail(ctx context.Context, span trace.Span, window string, reading model.Reading, err error) {
	metrics.WindowEvaluationFailuresTotal.WithLabelValues(window).Inc()
	span.RecordError(err, trace.WithAttributes(attribute.String("window", window)))
	span.SetStatus(codes.Error, "window evaluation failed")
	e.logger.ErrorContext(ctx, "window evaluation failed",
		"window", window,
		"user", reading.UserID,
		"device", reading.DeviceID,
		"reading", reading.ID,
		"error", err,
	)
}

func periodLabel(p model.Period) string {
	switch p {
	case model.PeriodWeekly:
		return "Weekly"
	case model.PeriodMonthly:
		return "Monthly"
	default:
		return "Daily"
	}
}
