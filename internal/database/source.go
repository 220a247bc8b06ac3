package database

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/smukkama/device-etl/internal/aggregation"
)

// Source reads raw readings from the PostgreSQL devices table
type Source struct {
	db     *DB
	logger log.Logger
}

// NewSource creates a new source over an open connection
func NewSource(db *DB, logger log.Logger) *Source {
	return &Source{
		db:     db,
		logger: log.With(logger, "module", "source"),
	}
}

// FetchAll loads every reading into memory, preserving the order in which the
// store returns them
func (s *Source) FetchAll(ctx context.Context) ([]aggregation.Reading, error) {
	rows, err := s.db.QueryxContext(ctx, selectReadingsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query devices")
	}
	defer rows.Close()

	var readings []aggregation.Reading
	for rows.Next() {
		var row DeviceRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.Wrap(err, "failed to scan device row")
		}

		ts, err := aggregation.ParseTimestamp(row.DeviceID, row.Time)
		if err != nil {
			return nil, err
		}

		readings = append(readings, aggregation.Reading{
			DeviceID:    row.DeviceID,
			Temperature: row.Temperature,
			Location:    row.Location,
			Timestamp:   ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate device rows")
	}

	level.Debug(s.logger).Log("msg", "fetched readings", "count", len(readings))

	return readings, nil
}
