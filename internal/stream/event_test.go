package stream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viharnani/smart-home-monitoring/internal/stream"
	"github.com/viharnani/smart-home-monitoring/pkg/model"
)

func TestDecodeEvent_Init(t *testing.T) {
	ev, err := stream.DecodeEvent([]byte(`{"type":"init","user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, stream.EventInit, ev.Type())
	assert.Equal(t, stream.InitEvent{UserID: "u1"}, ev)
}

func TestDecodeEvent_InitCamelCase(t *testing.T) {
	ev, err := stream.DecodeEvent([]byte(`{"type":"init","userId":"u2"}`))
	require.NoError(t, err)
	assert.Equal(t, stream.InitEvent{UserID: "u2"}, ev)
}

func TestDecodeEvent_Reading(t *testing.T) {
	ev, err := stream.DecodeEvent([]byte(`{"type":"reading","data":{"device_id":"fridge","consumption_kwh":0.42,"voltage":231.5,"timestamp":"2024-03-14T15:00:00+02:00"}}`))
	require.NoError(t, err)

	reading, ok := ev.(stream.ReadingEvent)
	require.True(t, ok)
	assert.Equal(t, "fridge", reading.DeviceID)
	assert.InDelta(t, 0.42, reading.ConsumptionKWh, 1e-9)
	assert.Equal(t, time.Date(2024, 3, 14, 13, 0, 0, 0, time.UTC), reading.Timestamp)

	r := reading.Reading("u1")
	assert.Equal(t, "u1", r.UserID)
	assert.InDelta(t, 231.5, r.Voltage, 1e-9)
}

func TestDecodeEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"subscribe"}`},
		{"init without user", `{"type":"init"}`},
		{"reading without data", `{"type":"reading"}`},
		{"reading without device", `{"type":"reading","data":{"consumption_kwh":1}}`},
		{"reading without consumption", `{"type":"reading","data":{"device_id":"d1"}}`},
		{"negative consumption", `{"type":"reading","data":{"device_id":"d1","consumption_kwh":-1}}`},
		{"wrong field type", `{"type":"reading","data":{"device_id":"d1","consumption_kwh":"lots"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stream.DecodeEvent([]byte(tt.data))
			assert.ErrorIs(t, err, model.ErrInvalidValue)
		})
	}
}
