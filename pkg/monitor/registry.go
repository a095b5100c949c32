package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

// LimitStore is the persistence needed by the Registry.
type LimitStore interface {
	storage.ThresholdStore
	storage.BudgetStore
}

// Registry validates limits before they reach storage.
type Registry struct {
	store  LimitStore
	logger *slog.Logger
}

// NewRegistry creates a registry.
func NewRegistry(store LimitStore, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// SetThreshold replaces the threshold of a device. Invalid limits are
// rejected with model.ErrInvalidValue and nothing is written.
func (r *Registry) SetThreshold(ctx context.Context, threshold *model.Threshold) error {
	if err := threshold.Validate(); err != nil {
		return err
	}
	if err := r.store.SetThreshold(ctx, threshold); err != nil {
		return err
	}
	r.logger.Info("threshold updated",
		"user", threshold.UserID,
		"device", threshold.DeviceID,
		"daily", threshold.DailyLimit,
	)
	return nil
}

// Threshold returns the threshold of a device or model.ErrNotFound.
func (r *Registry) Threshold(ctx context.Context, userID, deviceID string) (*model.Threshold, error) {
	return r.store.GetThreshold(ctx, userID, deviceID)
}

// Thresholds lists every threshold of a user.
func (r *Registry) Thresholds(ctx context.Context, userID string) ([]model.Threshold, error) {
	return r.store.ListThresholds(ctx, userID)
}

// SetBudget sets the user's budget. Zero disables budget alerts.
func (r *Registry) SetBudget(ctx context.Context, userID string, budget float64) error {
	if userID == "" {
		return fmt.Errorf("budget: user id is required: %w", model.ErrInvalidValue)
	}
	if err := model.ValidateBudget(budget); err != nil {
		return err
	}
	if err := r.store.SetBudget(ctx, userID, budget); err != nil {
		return err
	}
	r.logger.Info("budget updated", "user", userID, "budget", budget)
	return nil
}

// Budget returns the user's budget, 0 when unset.
func (r *Registry) Budget(ctx context.Context, userID string) (float64, error) {
	return r.store.GetBudget(ctx, userID)
}

// Apply validates every entry of limits and then writes them.
func (r *Registry) Apply(ctx context.Context, limits *Limits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	for _, b := range limits.Budgets {
		if err := r.SetBudget(ctx, b.UserID, b.BudgetKWh); err != nil {
			return fmt.Errorf("apply budget for %q: %w", b.UserID, err)
		}
	}
	for _, t := range limits.Thresholds {
		th := t.threshold()
		if err := r.SetThreshold(ctx, &th); err != nil {
			return fmt.Errorf("apply threshold for %q/%q: %w", t.UserID, t.DeviceID, err)
		}
	}
	return nil
}
