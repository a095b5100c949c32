package storage

import (
	"context"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// ReadingStore is the append-only store of device readings.
type ReadingStore interface {
	// AppendReading persists a reading, assigning an ID and timestamp if unset.
	AppendReading(ctx context.Context, reading *model.Reading) error

	// SumConsumption sums readings in [start, end). An empty deviceID sums
	// across all of the user's devices.
	SumConsumption(ctx context.Context, userID, deviceID string, start, end time.Time) (model.WindowSum, error)

	// RecentReadings returns up to n readings, newest first. An empty
	// deviceID includes every device of the user.
	RecentReadings(ctx context.Context, userID, deviceID string, n int) ([]model.Reading, error)

	// ReadingsInRange returns readings in [start, end), oldest first.
	ReadingsInRange(ctx context.Context, userID, deviceID string, start, end time.Time) ([]model.Reading, error)

	// AggregateReadings groups a user's readings into UTC-aligned buckets
	// and returns up to limit buckets, newest first. An empty deviceID
	// includes every device. limit <= 0 uses DefaultAggregateBuckets.
	AggregateReadings(ctx context.Context, userID, deviceID string, interval model.Interval, limit int) ([]model.UsageBucket, error)

	// DevicePairs lists every (user, device) pair that has reported readings.
	DevicePairs(ctx context.Context) ([]model.DevicePair, error)
}

// ThresholdStore holds per-device limits.
type ThresholdStore interface {
	// GetThreshold returns model.ErrNotFound when no threshold is registered.
	GetThreshold(ctx context.Context, userID, deviceID string) (*model.Threshold, error)

	// SetThreshold replaces the threshold for the (user, device) pair.
	SetThreshold(ctx context.Context, threshold *model.Threshold) error

	// ListThresholds returns every threshold configured by a user.
	ListThresholds(ctx context.Context, userID string) ([]model.Threshold, error)
}

// BudgetStore holds the per-user aggregate budget.
type BudgetStore interface {
	// GetBudget returns 0 for users without a budget.
	GetBudget(ctx context.Context, userID string) (float64, error)
	SetBudget(ctx context.Context, userID string, budget float64) error
}

// AlertStore persists alerts raised by the evaluator.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *model.Alert) error
	GetAlert(ctx context.Context, alertID string) (*model.Alert, error)

	// ListAlerts returns a user's alerts, newest first. limit <= 0 returns all.
	ListAlerts(ctx context.Context, userID string, limit int) ([]model.Alert, error)

	// MarkRead flags an alert as read. Marking a read alert again is a no-op.
	MarkRead(ctx context.Context, alertID string) error

	// SetAlertDelivery records the delivery outcome of an alert and the
	// notifiers that have accepted it so far.
	SetAlertDelivery(ctx context.Context, alertID string, status model.DeliveryStatus, deliveredTo []string) error

	// PendingAlerts returns undelivered alerts, oldest first.
	PendingAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// ForecastStore persists predictions.
type ForecastStore interface {
	SaveForecast(ctx context.Context, prediction *model.Prediction) error

	// LatestForecasts returns the newest predictions for a user. An empty
	// deviceID includes every device.
	LatestForecasts(ctx context.Context, userID, deviceID string, limit int) ([]model.Prediction, error)

	// PruneForecasts keeps only the newest keep predictions for the pair.
	PruneForecasts(ctx context.Context, userID, deviceID string, keep int) error
}

// Storage combines every persistence contract used by the monitor.
type Storage interface {
	ReadingStore
	ThresholdStore
	BudgetStore
	AlertStore
	ForecastStore

	// Close releases resources.
	Close() error
}

const (
	// DefaultForecastLimit is used when LatestForecasts is called without a limit.
	DefaultForecastLimit = 10

	// DefaultAggregateBuckets is used when AggregateReadings is called without a limit.
	DefaultAggregateBuckets = 24
)
