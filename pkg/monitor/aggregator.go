package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"github.com/viharnani/smart-home-monitoring/pkg/storage"
)

// Aggregator sums consumption over calendar windows and reading counts.
type Aggregator struct {
	readings storage.ReadingStore
	loc      *time.Location
}

// NewAggregator creates an aggregator whose calendar windows are computed in loc.
func NewAggregator(readings storage.ReadingStore, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{readings: readings, loc: loc}
}

// Sum returns the consumption inside w. An empty deviceID sums every device
// of the user.
func (a *Aggregator) Sum(ctx context.Context, userID, deviceID string, w model.Window) (model.WindowSum, error) {
	sum, err := a.readings.SumConsumption(ctx, userID, deviceID, w.Start, w.End)
	if err != nil {
		return model.WindowSum{}, fmt.Errorf("sum %s window: %w", w.Period, err)
	}
	return sum, nil
}

// SumPeriod sums the calendar period containing now.
func (a *Aggregator) SumPeriod(ctx context.Context, userID, deviceID string, period model.Period, now time.Time) (model.Window, model.WindowSum, error) {
	w := model.PeriodWindow(period, now, a.loc)
	sum, err := a.Sum(ctx, userID, deviceID, w)
	return w, sum, err
}

// SumRecent sums the user's last n readings across all devices.
func (a *Aggregator) SumRecent(ctx context.Context, userID string, n int) (model.WindowSum, error) {
	if n <= 0 {
		return model.WindowSum{}, nil
	}
	readings, err := a.readings.RecentReadings(ctx, userID, "", n)
	if err != nil {
		return model.WindowSum{}, fmt.Errorf("load last %d readings: %w", n, err)
	}

	var sum model.WindowSum
	for _, r := range readings {
		sum.Sum += r.ConsumptionKWh
		sum.Count++
	}
	return sum, nil
}

// SumRecentWith sums reading together with the n-1 newest other readings
// of the same user. The reading counts even when older readings were
// reported after it.
func (a *Aggregator) SumRecentWith(ctx context.Context, reading model.Reading, n int) (model.WindowSum, error) {
	if n <= 0 {
		return model.WindowSum{}, nil
	}
	readings, err := a.readings.RecentReadings(ctx, reading.UserID, "", n)
	if err != nil {
		return model.WindowSum{}, fmt.Errorf("load last %d readings: %w", n, err)
	}

	sum := model.WindowSum{Sum: reading.ConsumptionKWh, Count: 1}
	for _, r := range readings {
		if sum.Count == int64(n) {
			break
		}
		if r.ID == reading.ID {
			continue
		}
		sum.Sum += r.ConsumptionKWh
		sum.Count++
	}
	return sum, nil
}

// Location returns the time zone used for calendar windows.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}
