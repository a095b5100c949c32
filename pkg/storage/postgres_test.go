package storage_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

func newMockPostgres(t *testing.T) (*storage.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewPostgresFromDB(db), mock
}

func TestPostgres_AppendReading(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO readings")).
		WithArgs(sqlmock.AnyArg(), "u1", "d1", sqlmock.AnyArg(), 1.5, 230.0, 0.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	reading := &model.Reading{UserID: "u1", DeviceID: "d1", ConsumptionKWh: 1.5, Voltage: 230}
	require.NoError(t, store.AppendReading(context.Background(), reading))
	assert.NotEmpty(t, reading.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SumConsumption(t *testing.T) {
	store, mock := newMockPostgres(t)

	start := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COALESCE(SUM(consumption_kwh), 0), COUNT(*) FROM readings WHERE user_id = $1 AND ts >= $2 AND ts < $3 AND device_id = $4")).
		WithArgs("u1", start, end, "d1").
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(5.3, 2))

	sum, err := store.SumConsumption(context.Background(), "u1", "d1", start, end)
	require.NoError(t, err)
	assert.InDelta(t, 5.3, sum.Sum, 1e-9)
	assert.Equal(t, int64(2), sum.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecentReadings(t *testing.T) {
	store, mock := newMockPostgres(t)

	ts := time.Date(2024, 3, 14, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM readings WHERE user_id = $1 ORDER BY ts DESC, seq DESC LIMIT $2")).
		WithArgs("u1", 24).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "device_id", "ts", "consumption_kwh", "voltage_v", "current_a"}).
			AddRow("r2", "u1", "d2", ts.Add(time.Hour), 2.0, 0.0, 0.0).
			AddRow("r1", "u1", "d1", ts, 1.0, 0.0, 0.0))

	readings, err := store.RecentReadings(context.Background(), "u1", "", 24)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "r2", readings[0].ID)
	assert.True(t, readings[1].Timestamp.Equal(ts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AggregateReadings(t *testing.T) {
	store, mock := newMockPostgres(t)

	bucket := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT date_trunc('day', ts AT TIME ZONE 'UTC') AT TIME ZONE 'UTC' AS bucket")).
		WithArgs("u1", "d1", storage.DefaultAggregateBuckets).
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "sum", "avg_voltage", "avg_current", "count"}).
			AddRow(bucket, 6.5, 231.0, nil, 3))

	buckets, err := store.AggregateReadings(context.Background(), "u1", "d1", model.IntervalDay, 0)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Start.Equal(bucket))
	assert.InDelta(t, 6.5, buckets[0].TotalConsumption, 1e-9)
	require.NotNil(t, buckets[0].AvgVoltage)
	assert.InDelta(t, 231.0, *buckets[0].AvgVoltage, 1e-9)
	assert.Nil(t, buckets[0].AvgCurrent)
	assert.Equal(t, int64(3), buckets[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetBudget_NotSet(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT budget_kwh FROM budgets WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"budget_kwh"}))

	budget, err := store.GetBudget(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, budget)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetBudget(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO budgets")).
		WithArgs("u1", 10.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SetBudget(context.Background(), "u1", 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetThreshold(t *testing.T) {
	store, mock := newMockPostgres(t)
	query := regexp.QuoteMeta("FROM thresholds WHERE user_id = $1 AND device_id = $2 LIMIT 1")

	mock.ExpectQuery(query).
		WithArgs("u1", "d1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "device_id", "daily_limit", "weekly_limit", "monthly_limit", "updated_at"}).
			AddRow("u1", "d1", 5.0, nil, 100.0, time.Now()))

	th, err := store.GetThreshold(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, th.DailyLimit, 1e-9)
	assert.Nil(t, th.WeeklyLimit)
	require.NotNil(t, th.MonthlyLimit)
	assert.InDelta(t, 100.0, *th.MonthlyLimit, 1e-9)

	mock.ExpectQuery(query).
		WithArgs("u1", "d9").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "device_id", "daily_limit", "weekly_limit", "monthly_limit", "updated_at"}))

	_, err = store.GetThreshold(context.Background(), "u1", "d9")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MarkRead_NotFound(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE alerts SET is_read = $1 WHERE id = $2")).
		WithArgs(true, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkRead(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LatestForecasts(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM predictions WHERE user_id = $1 AND device_id = $2 ORDER BY ts DESC, seq DESC LIMIT $3")).
		WithArgs("u1", "d1", storage.DefaultForecastLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "device_id", "predicted_consumption", "confidence",
			"recommendations", "peak_hours", "anomalous", "sample_size", "ts",
		}).AddRow("p1", "u1", "d1", 2.0, 1.0,
			[]byte(`[{"kind":"SCHEDULE_USAGE","message":"shift","potential_savings":0.1}]`),
			[]byte(`[7,18]`), false, 24, time.Now()))

	predictions, err := store.LatestForecasts(context.Background(), "u1", "d1", 0)
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, []int{7, 18}, predictions[0].PeakHours)
	require.Len(t, predictions[0].Recommendations, 1)
	assert.Equal(t, model.RecommendScheduleUsage, predictions[0].Recommendations[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
