package alerts

import (
	"context"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert model.Alert) error
}

// StatusRecorder persists the delivery outcome of an alert.
type StatusRecorder interface {
	SetAlertDelivery(ctx context.Context, alertID string, status model.DeliveryStatus, deliveredTo []string) error
}

// severity maps an alert kind to a coarse level used by chat notifiers.
func severity(kind model.AlertKind) string {
	switch kind {
	case model.AlertBudgetExceeded, model.AlertMonthlyThreshold:
		return "critical"
	default:
		return "warning"
	}
}
