package protocol

import (
	"encoding/json"
	"time"

	"github.com/smukkama/device-etl/internal/aggregation"
)

// MessageType identifies the kind of event published to Kafka
type MessageType string

const (
	// MsgTypeHourlyAggregate is emitted for every aggregate row loaded by a run
	MsgTypeHourlyAggregate MessageType = "hourly_aggregate"
)

// AggregateMessage is the event format for a loaded hourly aggregate
type AggregateMessage struct {
	Type           MessageType `json:"type"`
	RunID          string      `json:"run_id"`
	DeviceID       string      `json:"device_id"`
	Hour           time.Time   `json:"hour"`
	MaxTemperature float64     `json:"max_temperature"`
	DataPoints     int         `json:"data_points"`
	TotalDistance  float64     `json:"total_distance"`
	LoadedAt       time.Time   `json:"loaded_at"`
}

// NewAggregateMessage builds the event for one aggregate
func NewAggregateMessage(runID string, agg aggregation.DeviceHourAggregate, loadedAt time.Time) *AggregateMessage {
	return &AggregateMessage{
		Type:           MsgTypeHourlyAggregate,
		RunID:          runID,
		DeviceID:       agg.DeviceID,
		Hour:           agg.HourStart,
		MaxTemperature: agg.MaxTemperature,
		DataPoints:     agg.SampleCount,
		TotalDistance:  agg.TotalDistanceMeters,
		LoadedAt:       loadedAt,
	}
}

// EncodeAggregateMessage encodes an AggregateMessage to JSON
func EncodeAggregateMessage(msg *AggregateMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeAggregateMessage decodes JSON to AggregateMessage
func DecodeAggregateMessage(data []byte) (*AggregateMessage, error) {
	var msg AggregateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
