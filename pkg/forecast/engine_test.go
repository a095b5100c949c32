package forecast_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viharnani/smart-home-monitoring/pkg/forecast"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

var testNow = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts forecast.Options) (*forecast.Engine, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return forecast.New(store, opts, logger), store
}

func hourly(t *testing.T, store storage.Storage, userID, deviceID string, values ...float64) {
	t.Helper()
	for i, v := range values {
		require.NoError(t, store.AppendReading(context.Background(), &model.Reading{
			UserID:         userID,
			DeviceID:       deviceID,
			ConsumptionKWh: v,
			Timestamp:      testNow.Add(-time.Duration(len(values)-i) * time.Hour),
		}))
	}
}

func TestEngine_Predict_Empty(t *testing.T) {
	engine, _ := newTestEngine(t, forecast.Options{})

	p, err := engine.Predict(context.Background(), "u1", "d1", 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, p.PredictedConsumption)
	assert.Zero(t, p.Confidence)
	assert.Empty(t, p.Recommendations)
	assert.Zero(t, p.SampleSize)
	assert.False(t, p.Anomalous)
}

func TestEngine_Predict_Uniform(t *testing.T) {
	engine, store := newTestEngine(t, forecast.Options{})

	values := make([]float64, 24)
	for i := range values {
		values[i] = 2.0
	}
	hourly(t, store, "u1", "d1", values...)

	p, err := engine.Predict(context.Background(), "u1", "d1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 24, p.SampleSize)
	assert.InDelta(t, 2.0, p.PredictedConsumption, 1e-9)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.False(t, p.Anomalous)
	assert.Empty(t, p.PeakHours)
	for _, r := range p.Recommendations {
		assert.NotEqual(t, model.RecommendReduceUsage, r.Kind)
		assert.NotEqual(t, model.RecommendMaintenance, r.Kind)
	}
}

func TestEngine_Predict_SpikeRecommendations(t *testing.T) {
	engine, store := newTestEngine(t, forecast.Options{})

	values := make([]float64, 12)
	for i := range values {
		values[i] = 1
	}
	values[5] = 20
	hourly(t, store, "u1", "d1", values...)

	p, err := engine.Predict(context.Background(), "u1", "d1", 0)
	require.NoError(t, err)
	assert.True(t, p.Anomalous)
	require.Len(t, p.PeakHours, 1)

	var kinds []model.RecommendationKind
	for _, r := range p.Recommendations {
		kinds = append(kinds, r.Kind)
	}
	assert.Equal(t, []model.RecommendationKind{model.RecommendScheduleUsage, model.RecommendMaintenance}, kinds)
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
}

func TestEngine_Predict_LookbackExcludesOlderReadings(t *testing.T) {
	engine, store := newTestEngine(t, forecast.Options{})
	ctx := context.Background()

	require.NoError(t, store.AppendReading(ctx, &model.Reading{
		UserID: "u1", DeviceID: "d1", ConsumptionKWh: 100, Timestamp: testNow.Add(-48 * time.Hour),
	}))
	hourly(t, store, "u1", "d1", 3, 3)

	p, err := engine.Predict(ctx, "u1", "d1", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, p.SampleSize)
	assert.InDelta(t, 3.0, p.PredictedConsumption, 1e-9)
}

func TestEngine_Generate_RetainsLatest(t *testing.T) {
	engine, store := newTestEngine(t, forecast.Options{Retain: 3})
	ctx := context.Background()
	hourly(t, store, "u1", "d1", 1, 2, 3)

	for i := 0; i < 5; i++ {
		_, err := engine.Generate(ctx, "u1", "d1")
		require.NoError(t, err)
	}

	latest, err := engine.Latest(ctx, "u1", "d1", 10)
	require.NoError(t, err)
	assert.Len(t, latest, 3)
	assert.InDelta(t, 2.0, latest[0].PredictedConsumption, 1e-9)
}

func TestEngine_GenerateAll(t *testing.T) {
	engine, store := newTestEngine(t, forecast.Options{})
	ctx := context.Background()
	hourly(t, store, "u1", "d1", 1, 2)
	hourly(t, store, "u1", "d2", 3)
	hourly(t, store, "u2", "d1", 4)

	n, err := engine.GenerateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	u1, err := engine.Latest(ctx, "u1", "", 0)
	require.NoError(t, err)
	assert.Len(t, u1, 2)
}
