package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

// EventType tags inbound and outbound stream messages.
type EventType string

const (
	EventInit    EventType = "init"
	EventReading EventType = "reading"
	EventAlert   EventType = "alert"
	EventError   EventType = "error"
)

// Event is a decoded inbound message. The only implementations are
// InitEvent and ReadingEvent.
type Event interface {
	Type() EventType
}

// InitEvent subscribes the connection to a user's readings and alerts.
type InitEvent struct {
	UserID string
}

func (InitEvent) Type() EventType { return EventInit }

// ReadingEvent carries a reading pushed by a device gateway. UserID is
// filled from the subscription of the connection.
type ReadingEvent struct {
	DeviceID       string
	ConsumptionKWh float64
	Voltage        float64
	Current        float64
	Timestamp      time.Time
}

func (ReadingEvent) Type() EventType { return EventReading }

// Reading builds the reading for userID.
func (e ReadingEvent) Reading(userID string) model.Reading {
	return model.Reading{
		UserID:         userID,
		DeviceID:       e.DeviceID,
		ConsumptionKWh: e.ConsumptionKWh,
		Voltage:        e.Voltage,
		Current:        e.Current,
		Timestamp:      e.Timestamp,
	}
}

type envelope struct {
	Type   EventType       `json:"type"`
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`

	// Dashboard clients send camelCase.
	UserIDCamel string `json:"userId"`
}

type readingPayload struct {
	DeviceID       string     `json:"device_id"`
	ConsumptionKWh *float64   `json:"consumption_kwh"`
	Voltage        float64    `json:"voltage"`
	Current        float64    `json:"current"`
	Timestamp      *time.Time `json:"timestamp"`
}

// DecodeEvent parses and validates an inbound message. Malformed or unknown
// messages are rejected with model.ErrInvalidValue.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %v: %w", err, model.ErrInvalidValue)
	}

	switch env.Type {
	case EventInit:
		if env.UserID == "" {
			env.UserID = env.UserIDCamel
		}
		if env.UserID == "" {
			return nil, fmt.Errorf("init event: user_id is required: %w", model.ErrInvalidValue)
		}
		return InitEvent{UserID: env.UserID}, nil

	case EventReading:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("reading event: data is required: %w", model.ErrInvalidValue)
		}
		var p readingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("reading event: %v: %w", err, model.ErrInvalidValue)
		}
		if p.DeviceID == "" {
			return nil, fmt.Errorf("reading event: device_id is required: %w", model.ErrInvalidValue)
		}
		if p.ConsumptionKWh == nil {
			return nil, fmt.Errorf("reading event: consumption_kwh is required: %w", model.ErrInvalidValue)
		}
		kwh := *p.ConsumptionKWh
		if math.IsNaN(kwh) || math.IsInf(kwh, 0) || kwh < 0 {
			return nil, fmt.Errorf("reading event: consumption_kwh %v must be non-negative: %w", kwh, model.ErrInvalidValue)
		}
		ev := ReadingEvent{
			DeviceID:       p.DeviceID,
			ConsumptionKWh: kwh,
			Voltage:        p.Voltage,
			Current:        p.Current,
		}
		if p.Timestamp != nil {
			ev.Timestamp = p.Timestamp.UTC()
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("unknown event type %q: %w", env.Type, model.ErrInvalidValue)
	}
}

// Message is an outbound frame.
type Message struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}
