package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/metrics"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

// DefaultReadingsLimit caps reading listings when no limit is given.
const DefaultReadingsLimit = 100

// Dispatcher delivers alerts to the notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *model.Alert) error
}

// ReadingPublisher is told about every stored reading.
type ReadingPublisher interface {
	PublishReading(reading model.Reading)
}

// Options tune a Monitor.
type Options struct {
	// BudgetWindow is the number of recent readings summed against the budget.
	BudgetWindow int

	// Location is the time zone of the calendar windows. Defaults to UTC.
	Location *time.Location

	// Now overrides the clock used for window boundaries.
	Now func() time.Time

	Dispatcher Dispatcher
	Publisher  ReadingPublisher
}

// Monitor records readings and raises alerts for the limits they cross.
type Monitor struct {
	store      storage.Storage
	registry   *Registry
	aggregator *Aggregator
	evaluator  *Evaluator
	dispatcher Dispatcher
	publisher  ReadingPublisher
	locks      *pairLocks
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a monitor over store.
func New(store storage.Storage, opts Options, logger *slog.Logger) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	agg := NewAggregator(store, opts.Location)
	return &Monitor{
		store:      store,
		registry:   NewRegistry(store, logger),
		aggregator: agg,
		evaluator:  NewEvaluator(store, agg, opts.BudgetWindow, opts.Now, logger),
		dispatcher: opts.Dispatcher,
		publisher:  opts.Publisher,
		locks:      newPairLocks(),
		now:        opts.Now,
		logger:     logger,
	}
}

// Registry returns the limit registry.
func (m *Monitor) Registry() *Registry {
	return m.registry
}

// Aggregator returns the window aggregator.
func (m *Monitor) Aggregator() *Aggregator {
	return m.aggregator
}

// Ingest validates and stores a reading, evaluates it and hands raised
// alerts to the dispatcher. A reading without a timestamp is stamped with
// the monitor clock. Readings of the same device are processed one at a
// time. Delivery failures are logged; the alerts stay persisted.
func (m *Monitor) Ingest(ctx context.Context, reading *model.Reading) ([]model.Alert, error) {
	if err := reading.Validate(); err != nil {
		metrics.ReadingsIngestedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = m.now().UTC()
	}

	unlock := m.locks.lock(reading.UserID, reading.DeviceID)
	if err := m.store.AppendReading(ctx, reading); err != nil {
		unlock()
		metrics.ReadingsIngestedTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("append reading: %w", err)
	}
	raised := m.evaluator.Evaluate(ctx, *reading)
	unlock()

	metrics.ReadingsIngestedTotal.WithLabelValues("accepted").Inc()
	m.logger.Debug("reading ingested",
		"user", reading.UserID,
		"device", reading.DeviceID,
		"kwh", reading.ConsumptionKWh,
		"alerts", len(raised),
	)

	if m.publisher != nil {
		m.publisher.PublishReading(*reading)
	}

	if m.dispatcher != nil {
		for i := range raised {
			if err := m.dispatcher.Dispatch(ctx, &raised[i]); err != nil {
				m.logger.Error("dispatch alert failed",
					"alert", raised[i].ID,
					"kind", raised[i].Kind,
					"error", err,
				)
			}
		}
	}

	return raised, nil
}

// Readings lists a user's readings, newest first.
func (m *Monitor) Readings(ctx context.Context, userID, deviceID string, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		limit = DefaultReadingsLimit
	}
	return m.store.RecentReadings(ctx, userID, deviceID, limit)
}

// ReadingsBetween lists a user's readings in [start, end), newest first,
// keeping the newest limit of them. A zero start or end leaves that side
// of the range open.
func (m *Monitor) ReadingsBetween(ctx context.Context, userID, deviceID string, start, end time.Time, limit int) ([]model.Reading, error) {
	if limit <= 0 {
		limit = DefaultReadingsLimit
	}
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	if end.IsZero() {
		end = time.Unix(0, math.MaxInt64)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("range start %s must be before end %s: %w",
			start.Format(time.RFC3339), end.Format(time.RFC3339), model.ErrInvalidValue)
	}

	readings, err := m.store.ReadingsInRange(ctx, userID, deviceID, start, end)
	if err != nil {
		return nil, err
	}
	if len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}
	slices.Reverse(readings)
	return readings, nil
}

// Aggregate groups a user's readings into hourly or daily buckets, newest
// first. limit <= 0 returns the newest 24 buckets.
func (m *Monitor) Aggregate(ctx context.Context, userID, deviceID string, interval model.Interval, limit int) ([]model.UsageBucket, error) {
	return m.store.AggregateReadings(ctx, userID, deviceID, interval, limit)
}

// Alerts lists a user's alerts, newest first. limit <= 0 returns all.
func (m *Monitor) Alerts(ctx context.Context, userID string, limit int) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, userID, limit)
}

// MarkRead flags an alert as read. It is safe to call more than once.
func (m *Monitor) MarkRead(ctx context.Context, alertID string) error {
	return m.store.MarkRead(ctx, alertID)
}

// Usage reports the daily, weekly and monthly consumption of a device at now.
func (m *Monitor) Usage(ctx context.Context, userID, deviceID string, now time.Time) (map[model.Period]model.WindowSum, error) {
	usage := make(map[model.Period]model.WindowSum, 3)
	for _, p := range []model.Period{model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly} {
		_, sum, err := m.aggregator.SumPeriod(ctx, userID, deviceID, p, now)
		if err != nil {
			return nil, err
		}
		usage[p] = sum
	}
	return usage, nil
}
