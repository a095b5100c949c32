package model

import "time"

// Period names a calendar-aligned window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Period Period    `json:"period,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DayWindow returns the calendar day containing now, in loc.
func DayWindow(now time.Time, loc *time.Location) Window {
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return Window{Period: PeriodDaily, Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow returns the week containing now. Weeks start on Sunday.
func WeekWindow(now time.Time, loc *time.Location) Window {
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day()-int(now.Weekday()), 0, 0, 0, 0, loc)
	return Window{Period: PeriodWeekly, Start: start, End: start.AddDate(0, 0, 7)}
}

// MonthWindow returns the calendar month containing now.
func MonthWindow(now time.Time, loc *time.Location) Window {
	now = now.In(loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Period: PeriodMonthly, Start: start, End: start.AddDate(0, 1, 0)}
}

// PeriodWindow returns the window for the named period. Unknown periods
// fall back to the daily window.
func PeriodWindow(period Period, now time.Time, loc *time.Location) Window {
	switch period {
	case PeriodWeekly:
		return WeekWindow(now, loc)
	case PeriodMonthly:
		return MonthWindow(now, loc)
	default:
		return DayWindow(now, loc)
	}
}
