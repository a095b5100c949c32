package monitor

import (
	"fmt"
	"os"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
	"gopkg.in/yaml.v3"
)

// Limits is a file of budgets and thresholds applied in one step.
type Limits struct {
	Budgets    []BudgetEntry    `yaml:"budgets"`
	Thresholds []ThresholdEntry `yaml:"thresholds"`
}

// BudgetEntry is one user's budget.
type BudgetEntry struct {
	UserID    string  `yaml:"user_id"`
	BudgetKWh float64 `yaml:"budget_kwh"`
}

// ThresholdEntry is one device's limits. Weekly and monthly are optional.
type ThresholdEntry struct {
	UserID       string   `yaml:"user_id"`
	DeviceID     string   `yaml:"device_id"`
	DailyLimit   float64  `yaml:"daily_limit"`
	WeeklyLimit  *float64 `yaml:"weekly_limit,omitempty"`
	MonthlyLimit *float64 `yaml:"monthly_limit,omitempty"`
}

func (e ThresholdEntry) threshold() model.Threshold {
	return model.Threshold{
		UserID:       e.UserID,
		DeviceID:     e.DeviceID,
		DailyLimit:   e.DailyLimit,
		WeeklyLimit:  e.WeeklyLimit,
		MonthlyLimit: e.MonthlyLimit,
	}
}

// LoadLimits reads a limits file.
func LoadLimits(path string) (*Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read limits file: %w", err)
	}
	return ParseLimits(data)
}

// ParseLimits decodes YAML limits.
func ParseLimits(data []byte) (*Limits, error) {
	var limits Limits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("parse limits: %w", err)
	}
	return &limits, nil
}

// Validate checks every entry without writing anything.
func (l *Limits) Validate() error {
	for i, b := range l.Budgets {
		if b.UserID == "" {
			return fmt.Errorf("budgets[%d]: user id is required: %w", i, model.ErrInvalidValue)
		}
		if err := model.ValidateBudget(b.BudgetKWh); err != nil {
			return fmt.Errorf("budgets[%d]: %w", i, err)
		}
	}
	for i, t := range l.Thresholds {
		th := t.threshold()
		if err := th.Validate(); err != nil {
			return fmt.Errorf("thresholds[%d]: %w", i, err)
		}
	}
	return nil
}
