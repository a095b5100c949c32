package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// WebhookNotifier posts each alert as a flat JSON document of kWh figures
// to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a generic webhook notifier.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Send(ctx context.Context, alert model.Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert, time.Now()))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "energymon/1.0")
	// Receivers deduplicate re-dispatched alerts by ID.
	req.Header.Set("X-Alert-ID", alert.ID)
	req.Header.Set("X-Alert-Kind", string(alert.Kind))

	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+computeHMAC(body, []byte(w.secret)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", alert.ID, resp.StatusCode)
	}
	return nil
}

// webhookPayload is the flat body posted for every alert. Budget alerts
// leave device_id empty.
type webhookPayload struct {
	Event     string  `json:"event"`
	AlertID   string  `json:"alert_id"`
	UserID    string  `json:"user_id"`
	DeviceID  string  `json:"device_id,omitempty"`
	ReadingID string  `json:"reading_id,omitempty"`
	Kind      string  `json:"kind"`
	Severity  string  `json:"severity"`
	Message   string  `json:"message"`
	LimitKWh  float64 `json:"limit_kwh"`
	ValueKWh  float64 `json:"value_kwh"`
	OverKWh   float64 `json:"over_kwh"`
	RaisedAt  string  `json:"raised_at"`
	SentAt    string  `json:"sent_at"`
}

func newWebhookPayload(alert model.Alert, now time.Time) webhookPayload {
	return webhookPayload{
		Event:     "energy." + strings.ToLower(string(alert.Kind)),
		AlertID:   alert.ID,
		UserID:    alert.UserID,
		DeviceID:  alert.DeviceID,
		ReadingID: alert.ReadingID,
		Kind:      string(alert.Kind),
		Severity:  severity(alert.Kind),
		Message:   alert.Message,
		LimitKWh:  alert.Limit,
		ValueKWh:  alert.Value,
		OverKWh:   max(alert.Value-alert.Limit, 0),
		RaisedAt:  alert.Timestamp.UTC().Format(time.RFC3339),
		SentAt:    now.UTC().Format(time.RFC3339),
	}
}

func computeHMAC(message, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
