package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// SlackNotifier sends alerts to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Send(ctx context.Context, alert model.Alert) error {
	color := "#ff9900" // orange
	if severity(alert.Kind) == "critical" {
		color = "#cc0000" // dark red
	}

	device := alert.DeviceID
	if device == "" {
		device = "all devices"
	}

	fields := []slackField{
		{Title: "User", Value: alert.UserID, Short: true},
		{Title: "Device", Value: device, Short: true},
		{Title: "Consumption", Value: fmt.Sprintf("%.2f kWh", alert.Value), Short: true},
		{Title: "Limit", Value: fmt.Sprintf("%.2f kWh", alert.Limit), Short: true},
	}
	if alert.Limit > 0 {
		fields = append(fields, slackField{
			Title: "Usage", Value: fmt.Sprintf("%.1f%%", alert.Value/alert.Limit*100), Short: true,
		})
	}

	payload := slackPayload{
		Channel: s.channel,
		Attachments: []slackAttachment{
			{
				Color:  color,
				Title:  "Energy alert: " + kindTitle(alert.Kind),
				Text:   alert.Message,
				Fields: fields,
				Footer: "energymon",
				Ts:     alert.Timestamp.Unix(),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func kindTitle(kind model.AlertKind) string {
	switch kind {
	case model.AlertBudgetExceeded:
		return "budget exceeded"
	case model.AlertDailyThreshold:
		return "daily limit exceeded"
	case model.AlertWeeklyThreshold:
		return "weekly limit exceeded"
	case model.AlertMonthlyThreshold:
		return "monthly limit exceeded"
	default:
		return string(kind)
	}
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
