package aggregation

import (
	"sort"
	"time"
)

// Order controls the sequence in which readings are folded
type Order string

// Rounding controls when the distance total is rounded to centimeters
type Rounding string

const (
	// OrderSource folds readings exactly as the source delivered them. Distance
	// totals then depend on the source's iteration order.
	OrderSource Order = "source"

	// OrderChronological stable-sorts readings by timestamp before folding
	OrderChronological Order = "chronological"

	// RoundingCumulative rounds the running total after every reading
	RoundingCumulative Rounding = "cumulative"

	// RoundingFinal keeps full precision and rounds once after the fold
	RoundingFinal Rounding = "final"
)

// Options configures a HourlyAggregator
type Options struct {
	Order    Order
	Rounding Rounding
	Location *time.Location // zone used to truncate timestamps, defaults to time.Local
}

// HourlyAggregator folds raw readings into per-device hourly aggregates
type HourlyAggregator struct {
	order    Order
	rounding Rounding
	loc      *time.Location
}

// NewHourlyAggregator creates a new hourly aggregator
func NewHourlyAggregator(opts Options) *HourlyAggregator {
	h := &HourlyAggregator{
		order:    opts.Order,
		rounding: opts.Rounding,
		loc:      opts.Location,
	}
	if h.order == "" {
		h.order = OrderSource
	}
	if h.rounding == "" {
		h.rounding = RoundingCumulative
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	return h
}

// HourStart truncates an epoch timestamp to the top of its hour on the
// aggregator's wall clock
func (h *HourlyAggregator) HourStart(ts int64) time.Time {
	t := time.Unix(ts, 0).In(h.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, h.loc)
}

// Aggregate folds all readings in a single pass. Any malformed reading fails
// the whole fold and no result is returned.
func (h *HourlyAggregator) Aggregate(readings []Reading) (Result, error) {
	if h.order == OrderChronological {
		sorted := make([]Reading, len(readings))
		copy(sorted, readings)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})
		readings = sorted
	}

	result := make(Result)
	for _, r := range readings {
		loc, err := ParseLocation(r.DeviceID, r.Location)
		if err != nil {
			return nil, err
		}

		hour := h.HourStart(r.Timestamp)
		key := HourKey{DeviceID: r.DeviceID, HourStart: hour.Unix()}

		agg, ok := result[key]
		if !ok {
			agg = &DeviceHourAggregate{
				DeviceID:       r.DeviceID,
				HourStart:      hour,
				MaxTemperature: r.Temperature,
			}
			result[key] = agg
		} else if r.Temperature > agg.MaxTemperature {
			agg.MaxTemperature = r.Temperature
		}

		agg.SampleCount++

		if agg.LastLocation != nil {
			agg.TotalDistanceMeters += Distance(*agg.LastLocation, loc)
		}
		agg.LastLocation = &loc

		if h.rounding == RoundingCumulative {
			agg.TotalDistanceMeters = roundMeters(agg.TotalDistanceMeters)
		}
	}

	if h.rounding == RoundingFinal {
		for _, agg := range result {
			agg.TotalDistanceMeters = roundMeters(agg.TotalDistanceMeters)
		}
	}

	return result, nil
}
