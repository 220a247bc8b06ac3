package aggregation

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Reading represents a single raw telemetry sample as delivered by the source
type Reading struct {
	DeviceID    string
	Temperature float64
	Location    string // serialized mapping literal, parsed during aggregation
	Timestamp   int64  // epoch seconds
}

// Location is a parsed GPS position
type Location struct {
	Latitude  float64
	Longitude float64
}

// HourKey identifies one aggregation bucket
type HourKey struct {
	DeviceID  string
	HourStart int64 // unix seconds of the truncated hour
}

// DeviceHourAggregate holds the hourly summary for a device
type DeviceHourAggregate struct {
	DeviceID            string
	HourStart           time.Time
	MaxTemperature      float64
	SampleCount         int
	TotalDistanceMeters float64
	LastLocation        *Location
}

// Result maps every bucket seen during a fold to its aggregate
type Result map[HourKey]*DeviceHourAggregate

// Rows returns the aggregates ordered by device and hour
func (r Result) Rows() []DeviceHourAggregate {
	keys := make([]HourKey, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DeviceID != keys[j].DeviceID {
			return keys[i].DeviceID < keys[j].DeviceID
		}
		return keys[i].HourStart < keys[j].HourStart
	})

	rows := make([]DeviceHourAggregate, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, *r[k])
	}
	return rows
}

// ParseTimestamp converts a string-encoded epoch into seconds
func ParseTimestamp(deviceID, raw string) (int64, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &MalformedTimestampError{DeviceID: deviceID, Raw: raw, Err: err}
	}
	return ts, nil
}
