package forecast

import (
	"context"
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

// DefaultLookback is the history window used when none is configured.
const DefaultLookback = 24 * time.Hour

var tracer = otel.Tracer("energymon/forecast")

// Store is the persistence used by the engine.
type Store interface {
	storage.ReadingStore
	storage.ForecastStore
}

// Options tune an Engine.
type Options struct {
	Lookback time.Duration

	// Retain is the number of predictions kept per device.
	Retain int

	// Location buckets readings into local hours of day.
	Location *time.Location

	Now func() time.Time
}

// Engine produces statistical predictions from recent readings.
type Engine struct {
	store    Store
	lookback time.Duration
	retain   int
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a forecast engine.
func New(store Store, opts Options, logger *slog.Logger) *Engine {
	e := &Engine{
		store:    store,
		lookback: opts.Lookback,
		retain:   opts.Retain,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   logger,
	}
	if e.lookback <= 0 {
		e.lookback = DefaultLookback
	}
	if e.retain <= 0 {
		e.retain = storage.DefaultForecastLimit
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Predict forecasts the next period of a device from the readings taken in
// the lookback window before now. lookback <= 0 uses the engine default.
// Nothing is persisted.
func (e *Engine) Predict(ctx context.Context, userID, deviceID string, lookback time.Duration) (*model.Prediction, error) {
	if lookback <= 0 {
		lookback = e.lookback
	}

	ctx, span := tracer.Start(ctx, "forecast.Predict",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("device.id", deviceID),
		),
	)
	defer span.End()

	now := e.now()
	readings, err := e.store.ReadingsInRange(ctx, userID, deviceID, now.Add(-lookback), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load history")
		return nil, fmt.Errorf("load history: %w", err)
	}

	prediction := &model.Prediction{
		UserID:          userID,
		DeviceID:        deviceID,
		SampleSize:      len(readings),
		Recommendations: []model.Recommendation{},
		Timestamp:       now.UTC(),
	}
	if len(readings) == 0 {
		return prediction, nil
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.ConsumptionKWh
	}

	mean := Mean(values)
	stddev := StdDev(values, mean)
	peaks := PeakHours(readings, e.loc)
	anomalous := IsAnomalous(values, mean, stddev)

	prediction.PredictedConsumption = mean
	prediction.Confidence = Confidence(mean, stddev)
	prediction.PeakHours = peaks
	prediction.Anomalous = anomalous
	if recs := Recommend(mean, mean, peaks, anomalous); len(recs) > 0 {
		prediction.Recommendations = recs
	}

	span.SetAttributes(
		attribute.Int("sample.size", len(readings)),
		attribute.Bool("anomalous", anomalous),
	)
	return prediction, nil
}

// Generate predicts, stores the prediction and prunes older ones beyond the
// retention limit.
func (e *Engine) Generate(ctx context.Context, userID, deviceID string) (*model.Prediction, error) {
	prediction, err := e.Predict(ctx, userID, deviceID, 0)
	if err != nil {
		metrics.ForecastsGeneratedTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := e.store.SaveForecast(ctx, prediction); err != nil {
		metrics.ForecastsGeneratedTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("save prediction: %w", err)
	}
	metrics.ForecastsGeneratedTotal.WithLabelValues("saved").Inc()
	if prediction.Anomalous {
		metrics.ForecastAnomaliesTotal.Inc()
	}

	if err := e.store.PruneForecasts(ctx, userID, deviceID, e.retain); err != nil {
		e.logger.Error("prune predictions", "user", userID, "device", deviceID, "error", err)
	}

	e.logger.Debug("prediction generated",
		"user", userID,
		"device", deviceID,
		"predicted", prediction.PredictedConsumption,
		"confidence", prediction.Confidence,
		"samples", prediction.SampleSize,
	)
	return prediction, nil
}

// Latest returns the newest stored predictions, newest first.
func (e *Engine) Latest(ctx context.Context, userID, deviceID string, limit int) ([]model.Prediction, error) {
	return e.store.LatestForecasts(ctx, userID, deviceID, limit)
}

// GenerateAll runs Generate for every device that has reported readings and
// returns the number of predictions stored. Per-device failures are logged.
func (e *Engine) GenerateAll(ctx context.Context) (int, error) {
	pairs, err := e.store.DevicePairs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list devices: %w", err)
	}

	generated := 0
	for _, p := range pairs {
		if ctx.Err() != nil {
			return generated, ctx.Err()
		}
		if _, err := e.Generate(ctx, p.UserID, p.DeviceID); err != nil {
			e.logger.Error("generate prediction", "user", p.UserID, "device", p.DeviceID, "error", err)
			continue
		}
		generated++
	}
	return generated, nil
}
