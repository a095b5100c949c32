package model

import (
	"fmt"
	"time"
)

// Interval is the width of a usage bucket.
type Interval string

const (
	IntervalHour Interval = "hour"
	IntervalDay  Interval = "day"
)

// ParseInterval accepts "hour" or "day". An empty string means hour.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case "", IntervalHour:
		return IntervalHour, nil
	case IntervalDay:
		return IntervalDay, nil
	}
	return "", fmt.Errorf("interval %q must be hour or day: %w", s, ErrInvalidValue)
}

// Duration returns the bucket width.
func (i Interval) Duration() time.Duration {
	if i == IntervalDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// UsageBucket aggregates a user's readings over one UTC-aligned interval.
// The averages only cover readings that reported voltage or current and
// are nil when none did.
type UsageBucket struct {
	Start            time.Time `json:"start"`
	TotalConsumption float64   `json:"total_consumption"`
	AvgVoltage       *float64  `json:"avg_voltage"`
	AvgCurrent       *float64  `json:"avg_current"`
	Count            int64     `json:"count"`
}
