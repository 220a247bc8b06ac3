package database

import (
	"context"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/smukkama/device-etl/internal/aggregation"
)

const (
	// DefaultChunkSize is the number of rows written per INSERT statement
	DefaultChunkSize = 500

	// MaxChunkSize keeps one statement under MySQL's limit of 65535
	// placeholders, five per row
	MaxChunkSize = 65535 / upsertColumns

	upsertColumns = 5
)

// Sink merges hourly aggregates into the MySQL aggregated_data table
type Sink struct {
	db        *DB
	chunkSize int
	logger    log.Logger
}

// NewSink creates a new sink. A non-positive chunk size falls back to
// DefaultChunkSize and larger ones are capped at MaxChunkSize.
func NewSink(db *DB, chunkSize int, logger log.Logger) *Sink {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &Sink{
		db:        db,
		chunkSize: chunkSize,
		logger:    log.With(logger, "module", "sink"),
	}
}

// EnsureSchema creates the aggregated_data table if it does not exist
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAggregatedDataTable); err != nil {
		return errors.Wrap(err, "failed to create aggregated_data table")
	}
	return nil
}

// UpsertMany writes all rows keyed by (device_id, hour), overwriting the
// aggregate columns of existing rows. Rows are sent in chunks inside a single
// transaction, so chunking never changes the outcome.
func (s *Sink) UpsertMany(ctx context.Context, rows []aggregation.DeviceHourAggregate) (err error) {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				level.Error(s.logger).Log("msg", "rollback failed", "err", rerr)
			}
		}
	}()

	chunks := 0
	for start := 0; start < len(rows); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		query, args := buildUpsert(rows[start:end])
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "failed to upsert rows %d-%d", start, end-1)
		}
		chunks++
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit aggregates")
	}

	level.Debug(s.logger).Log("msg", "upserted aggregates", "rows", len(rows), "chunks", chunks)

	return nil
}

// ToAggregatedRow converts an aggregate into its sink representation
func ToAggregatedRow(agg aggregation.DeviceHourAggregate) AggregatedRow {
	return AggregatedRow{
		DeviceID:       agg.DeviceID,
		Hour:           agg.HourStart.Format(HourLayout),
		MaxTemperature: agg.MaxTemperature,
		DataPoints:     agg.SampleCount,
		TotalDistance:  agg.TotalDistanceMeters,
	}
}

func buildUpsert(rows []aggregation.DeviceHourAggregate) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO aggregated_data (device_id, hour, max_temperature, data_points, total_distance) VALUES ")

	args := make([]interface{}, 0, len(rows)*upsertColumns)
	for i, agg := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")

		row := ToAggregatedRow(agg)
		args = append(args, row.DeviceID, row.Hour, row.MaxTemperature, row.DataPoints, row.TotalDistance)
	}

	sb.WriteString(" ON DUPLICATE KEY UPDATE" +
		" max_temperature = VALUES(max_temperature)," +
		" data_points = VALUES(data_points)," +
		" total_distance = VALUES(total_distance)")

	return sb.String(), args
}
