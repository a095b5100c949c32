package model

import (
	"fmt"
	"math"
	"time"
)

// Reading is a single consumption sample reported by a device.
type Reading struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	DeviceID       string    `json:"device_id" db:"device_id"`
	Timestamp      time.Time `json:"timestamp" db:"ts"`
	ConsumptionKWh float64   `json:"consumption_kwh" db:"consumption_kwh"`
	Voltage        float64   `json:"voltage,omitempty" db:"voltage_v"`
	Current        float64   `json:"current,omitempty" db:"current_a"`
}

// Validate checks that a reading can be recorded.
func (r *Reading) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("reading: user id is required: %w", ErrInvalidValue)
	}
	if r.DeviceID == "" {
		return fmt.Errorf("reading: device id is required: %w", ErrInvalidValue)
	}
	if !finite(r.ConsumptionKWh) || r.ConsumptionKWh < 0 {
		return fmt.Errorf("reading: consumption %v must be a non-negative number: %w", r.ConsumptionKWh, ErrInvalidValue)
	}
	return nil
}

// Threshold holds the per-device consumption limits. The daily limit is
// always required; weekly and monthly limits are optional.
type Threshold struct {
	UserID       string    `json:"user_id" db:"user_id"`
	DeviceID     string    `json:"device_id" db:"device_id"`
	DailyLimit   float64   `json:"daily_limit" db:"daily_limit"`
	WeeklyLimit  *float64  `json:"weekly_limit,omitempty" db:"weekly_limit"`
	MonthlyLimit *float64  `json:"monthly_limit,omitempty" db:"monthly_limit"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Validate rejects thresholds that must never be stored.
func (t *Threshold) Validate() error {
	if t.UserID == "" || t.DeviceID == "" {
		return fmt.Errorf("threshold: user id and device id are required: %w", ErrInvalidValue)
	}
	if !finite(t.DailyLimit) || t.DailyLimit <= 0 {
		return fmt.Errorf("threshold: daily limit %v must be greater than 0: %w", t.DailyLimit, ErrInvalidValue)
	}
	if t.WeeklyLimit != nil && (!finite(*t.WeeklyLimit) || *t.WeeklyLimit <= 0) {
		return fmt.Errorf("threshold: weekly limit %v must be greater than 0: %w", *t.WeeklyLimit, ErrInvalidValue)
	}
	if t.MonthlyLimit != nil && (!finite(*t.MonthlyLimit) || *t.MonthlyLimit <= 0) {
		return fmt.Errorf("threshold: monthly limit %v must be greater than 0: %w", *t.MonthlyLimit, ErrInvalidValue)
	}
	return nil
}

// ValidateBudget checks a per-user budget. Zero disables budget enforcement.
func ValidateBudget(budget float64) error {
	if !finite(budget) || budget < 0 {
		return fmt.Errorf("budget %v must be a non-negative number: %w", budget, ErrInvalidValue)
	}
	return nil
}

// AlertKind identifies which limit an alert was raised for.
type AlertKind string

const (
	AlertBudgetExceeded   AlertKind = "BUDGET_EXCEEDED"
	AlertDailyThreshold   AlertKind = "DAILY_THRESHOLD"
	AlertWeeklyThreshold  AlertKind = "WEEKLY_THRESHOLD"
	AlertMonthlyThreshold AlertKind = "MONTHLY_THRESHOLD"
)

// DeliveryStatus tracks whether an alert reached the notifiers.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Alert is a limit crossing raised by the evaluator.
type Alert struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	DeviceID  string         `json:"device_id,omitempty" db:"device_id"` // empty for budget alerts
	ReadingID string         `json:"reading_id" db:"reading_id"`
	Kind      AlertKind      `json:"kind" db:"kind"`
	Message   string         `json:"message" db:"message"`
	Limit     float64        `json:"limit" db:"limit_kwh"`
	Value     float64        `json:"value" db:"value_kwh"`
	Timestamp time.Time      `json:"timestamp" db:"ts"`
	Read      bool           `json:"read" db:"is_read"`
	Status    DeliveryStatus `json:"status" db:"status"`

	// DeliveredTo names the notifiers that have accepted the alert.
	DeliveredTo []string `json:"delivered_to,omitempty" db:"delivered_to"`
}

// RecommendationKind classifies forecast advice.
type RecommendationKind string

const (
	RecommendReduceUsage   RecommendationKind = "REDUCE_USAGE"
	RecommendScheduleUsage RecommendationKind = "SCHEDULE_USAGE"
	RecommendMaintenance   RecommendationKind = "MAINTENANCE"
)

// Recommendation is one piece of advice attached to a prediction.
type Recommendation struct {
	Kind             RecommendationKind `json:"kind"`
	Message          string             `json:"message"`
	PotentialSavings float64            `json:"potential_savings"`
}

// Prediction is a forecast for the next period of a device's consumption.
type Prediction struct {
	ID                   string           `json:"id" db:"id"`
	UserID               string           `json:"user_id" db:"user_id"`
	DeviceID             string           `json:"device_id" db:"device_id"`
	PredictedConsumption float64          `json:"predicted_consumption" db:"predicted_consumption"`
	Confidence           float64          `json:"confidence" db:"confidence"`
	Recommendations      []Recommendation `json:"recommendations" db:"recommendations"`
	PeakHours            []int            `json:"peak_hours,omitempty" db:"peak_hours"`
	Anomalous            bool             `json:"anomalous" db:"anomalous"`
	SampleSize           int              `json:"sample_size" db:"sample_size"`
	Timestamp            time.Time        `json:"timestamp" db:"timestamp"`
}

// DevicePair identifies one user's device.
type DevicePair struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// WindowSum is the aggregated consumption over a window.
type WindowSum struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
