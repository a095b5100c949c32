package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viharnani/smart-home-monitoring/internal/scheduler"
	"github.com/viharnani/smart-home-monitoring/pkg/alerts"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

var testNow = time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type flakyNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (n *flakyNotifier) Name() string { return "flaky" }

func (n *flakyNotifier) Send(_ context.Context, a model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("unavailable")
	}
	n.sent = append(n.sent, a.ID)
	return nil
}

type namedNotifier struct {
	name string

	mu    sync.Mutex
	count int
}

func (n *namedNotifier) Name() string { return n.name }

func (n *namedNotifier) Send(context.Context, model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func (n *namedNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) GenerateAll(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 2, nil
}

func (r *countingRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func createAlert(t *testing.T, store storage.Storage, ts time.Time, status model.DeliveryStatus) model.Alert {
	t.Helper()
	a := model.Alert{
		UserID:    "home-1",
		DeviceID:  "heater",
		Kind:      model.AlertDailyThreshold,
		Message:   "over",
		Timestamp: ts,
		Status:    status,
	}
	require.NoError(t, store.CreateAlert(context.Background(), &a))
	return a
}

func TestScheduler_Redispatch(t *testing.T) {
	store := newTestStore(t)
	notifier := &flakyNotifier{}
	d := alerts.NewDispatcher([]alerts.Notifier{notifier}, store, alerts.DispatcherConfig{}, testLogger())

	failed := createAlert(t, store, testNow.Add(-time.Hour), model.DeliveryFailed)
	pending := createAlert(t, store, testNow.Add(-30*time.Minute), model.DeliveryPending)
	createAlert(t, store, testNow.Add(-2*time.Hour), model.DeliverySent)
	fresh := createAlert(t, store, testNow.Add(-time.Minute), model.DeliveryPending)

	s := scheduler.New(nil, store, d, scheduler.Config{
		RedispatchInterval: 5 * time.Minute,
		Now:                func() time.Time { return testNow },
	}, testLogger())

	n, err := s.Redispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{failed.ID, pending.ID}, notifier.sent)

	got, err := store.GetAlert(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySent, got.Status)
	assert.False(t, got.Read)

	got, err = store.GetAlert(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, got.Status)

	n, err = s.Redispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScheduler_Redispatch_FailureKeepsAlert(t *testing.T) {
	store := newTestStore(t)
	notifier := &flakyNotifier{fail: true}
	d := alerts.NewDispatcher([]alerts.Notifier{notifier}, store, alerts.DispatcherConfig{}, testLogger())
	a := createAlert(t, store, testNow.Add(-time.Hour), model.DeliveryPending)

	s := scheduler.New(nil, store, d, scheduler.Config{Now: func() time.Time { return testNow }}, testLogger())
	n, err := s.Redispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := store.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, got.Status)

	pending, err := store.PendingAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestScheduler_Redispatch_SkipsAcceptedNotifiers(t *testing.T) {
	store := newTestStore(t)
	steady := &namedNotifier{name: "steady"}
	flaky := &flakyNotifier{fail: true}
	d := alerts.NewDispatcher([]alerts.Notifier{steady, flaky}, store, alerts.DispatcherConfig{}, testLogger())
	ctx := context.Background()

	a := createAlert(t, store, testNow.Add(-time.Hour), model.DeliveryPending)
	require.Error(t, d.Dispatch(ctx, &a))

	got, err := store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, got.Status)
	assert.Equal(t, []string{"steady"}, got.DeliveredTo)

	flaky.mu.Lock()
	flaky.fail = false
	flaky.mu.Unlock()

	s := scheduler.New(nil, store, d, scheduler.Config{Now: func() time.Time { return testNow }}, testLogger())
	n, err := s.Redispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, steady.Count(), "steady notifier must not receive a duplicate")
	assert.Equal(t, []string{a.ID}, flaky.sent)

	got, err = store.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliverySent, got.Status)
	assert.Equal(t, []string{"steady", "flaky"}, got.DeliveredTo)
}

func TestScheduler_Redispatch_NoNotifiers(t *testing.T) {
	store := newTestStore(t)
	d := alerts.NewDispatcher(nil, store, alerts.DispatcherConfig{}, testLogger())
	a := createAlert(t, store, testNow.Add(-time.Hour), model.DeliveryPending)

	s := scheduler.New(nil, store, d, scheduler.Config{Now: func() time.Time { return testNow }}, testLogger())
	n, err := s.Redispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := store.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryPending, got.Status)
}

func TestScheduler_RunTicksForecasts(t *testing.T) {
	runner := &countingRunner{}
	s := scheduler.New(runner, nil, nil, scheduler.Config{
		ForecastInterval: 10 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_RunForecasts(t *testing.T) {
	runner := &countingRunner{}
	s := scheduler.New(runner, nil, nil, scheduler.Config{}, testLogger())

	n, err := s.RunForecasts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, runner.Calls())
}
