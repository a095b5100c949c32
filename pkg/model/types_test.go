package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

func TestDayWindow(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	w := model.DayWindow(now, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.End))
}

func TestWeekWindow_StartsOnSunday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"thursday", time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"sunday", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"saturday", time.Date(2024, 3, 16, 23, 59, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"across month", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := model.WeekWindow(tt.now, time.UTC)
			assert.Equal(t, tt.want, w.Start)
			assert.Equal(t, time.Sunday, w.Start.Weekday())
			assert.Equal(t, 7*24*time.Hour, w.End.Sub(w.Start))
			assert.True(t, w.Contains(tt.now))
		})
	}
}

func TestMonthWindow(t *testing.T) {
	now := time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	w := model.MonthWindow(now, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.End)
}

func TestWindows_UseLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 02:00 UTC on the 15th is still the 14th at UTC-5.
	now := time.Date(2024, 3, 15, 2, 0, 0, 0, time.UTC)
	w := model.DayWindow(now, loc)
	assert.Equal(t, 14, w.Start.Day())
	assert.True(t, w.Contains(now))
}

func TestWindows_DoNotShareState(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	day := model.DayWindow(now, time.UTC)
	week := model.WeekWindow(now, time.UTC)
	month := model.MonthWindow(now, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC), now)
	assert.Equal(t, 14, day.Start.Day())
	assert.Equal(t, 10, week.Start.Day())
	assert.Equal(t, 1, month.Start.Day())
}

func TestPeriodWindow_Default(t *testing.T) {
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	w := model.PeriodWindow("unknown", now, time.UTC)
	assert.Equal(t, model.PeriodDaily, w.Period)
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
}

func TestThreshold_Validate(t *testing.T) {
	neg := -1.0
	zero := 0.0
	ok := 10.0

	tests := []struct {
		name    string
		th      model.Threshold
		wantErr bool
	}{
		{"daily only", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: 5}, false},
		{"all limits", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: 5, WeeklyLimit: &ok, MonthlyLimit: &ok}, false},
		{"missing daily", model.Threshold{UserID: "u", DeviceID: "d"}, true},
		{"negative daily", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: -2}, true},
		{"nan daily", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: math.NaN()}, true},
		{"zero weekly", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: 5, WeeklyLimit: &zero}, true},
		{"negative monthly", model.Threshold{UserID: "u", DeviceID: "d", DailyLimit: 5, MonthlyLimit: &neg}, true},
		{"missing device", model.Threshold{UserID: "u", DailyLimit: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidValue)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBudget(t *testing.T) {
	assert.NoError(t, model.ValidateBudget(0))
	assert.NoError(t, model.ValidateBudget(12.5))
	assert.ErrorIs(t, model.ValidateBudget(-1), model.ErrInvalidValue)
	assert.ErrorIs(t, model.ValidateBudget(math.Inf(1)), model.ErrInvalidValue)
}

func TestReading_Validate(t *testing.T) {
	assert.NoError(t, (&model.Reading{UserID: "u", DeviceID: "d", ConsumptionKWh: 1.5}).Validate())
	assert.ErrorIs(t, (&model.Reading{DeviceID: "d"}).Validate(), model.ErrInvalidValue)
	assert.ErrorIs(t, (&model.Reading{UserID: "u"}).Validate(), model.ErrInvalidValue)
	assert.ErrorIs(t, (&model.Reading{UserID: "u", DeviceID: "d", ConsumptionKWh: -1}).Validate(), model.ErrInvalidValue)
}
