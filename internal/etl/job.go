// Package etl runs one extract, transform, load pass from the device readings
// store into the hourly aggregate store.
package etl

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/smukkama/device-etl/internal/aggregation"
	"github.com/smukkama/device-etl/internal/clock"
	"github.com/smukkama/device-etl/internal/state"
)

// Stage names used in failure metrics and run records
const (
	StageLock      = "lock"
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

// ErrRunInProgress is returned when another run holds the run lock
var ErrRunInProgress = errors.New("another etl run is in progress")

// Source yields every raw reading
type Source interface {
	FetchAll(ctx context.Context) ([]aggregation.Reading, error)
}

// Sink persists hourly aggregates
type Sink interface {
	EnsureSchema(ctx context.Context) error
	UpsertMany(ctx context.Context, rows []aggregation.DeviceHourAggregate) error
}

// Aggregator folds readings into hourly aggregates
type Aggregator interface {
	Aggregate(readings []aggregation.Reading) (aggregation.Result, error)
}

// Publisher announces loaded aggregates to downstream consumers
type Publisher interface {
	PublishAggregates(ctx context.Context, runID string, rows []aggregation.DeviceHourAggregate) error
}

// RunState coordinates concurrent runs and remembers the last outcome
type RunState interface {
	Acquire(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
	SaveRun(ctx context.Context, rec *state.RunRecord) error
}

// Metrics records run outcomes
type Metrics interface {
	ObserveSuccess(readings, aggregates int, duration time.Duration, finishedAt time.Time)
	ObserveFailure(stage string, duration time.Duration)
	Push(ctx context.Context) error
}

// Summary describes a finished run
type Summary struct {
	RunID      string
	Readings   int
	Aggregates int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Option configures optional Job collaborators
type Option func(*Job)

// WithPublisher publishes every loaded aggregate after the load commits
func WithPublisher(p Publisher) Option {
	return func(j *Job) { j.publisher = p }
}

// WithState guards the run with a lock and records its outcome
func WithState(s RunState) Option {
	return func(j *Job) { j.state = s }
}

// WithMetrics records run metrics
func WithMetrics(m Metrics) Option {
	return func(j *Job) { j.metrics = m }
}

// WithStartDelay pauses before extraction so an upstream producer can
// populate the source
func WithStartDelay(d time.Duration) Option {
	return func(j *Job) { j.startDelay = d }
}

// Job wires the three stages together
type Job struct {
	source     Source
	sink       Sink
	aggregator Aggregator
	clock      clock.Clock
	logger     log.Logger

	publisher  Publisher
	state      RunState
	metrics    Metrics
	startDelay time.Duration

	newRunID func() string
}

// NewJob creates a new ETL job
func NewJob(source Source, sink Sink, aggregator Aggregator, clk clock.Clock, logger log.Logger, opts ...Option) *Job {
	j := &Job{
		source:     source,
		sink:       sink,
		aggregator: aggregator,
		clock:      clk,
		logger:     log.With(logger, "module", "etl"),
		newRunID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run executes one pass. Nothing is written if extraction or transformation
// fails.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     j.newRunID(),
		StartedAt: j.clock.Now(),
	}
	logger := log.With(j.logger, "run_id", summary.RunID)

	if j.state != nil {
		ok, err := j.state.Acquire(ctx, summary.RunID)
		if err != nil {
			j.observeFailure(ctx, StageLock, summary.StartedAt)
			return nil, errors.Wrap(err, "failed to take run lock")
		}
		if !ok {
			j.observeFailure(ctx, StageLock, summary.StartedAt)
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := j.state.Release(context.WithoutCancel(ctx), summary.RunID); err != nil {
				level.Warn(logger).Log("msg", "failed to release run lock", "err", err)
			}
		}()
	}

	stage, err := j.run(ctx, logger, summary)
	summary.FinishedAt = j.clock.Now()

	if err != nil {
		level.Error(logger).Log("msg", "etl run failed", "stage", stage, "err", err)
		j.observeFailure(ctx, stage, summary.StartedAt)
		j.saveRun(ctx, logger, summary, err)
		return nil, err
	}

	level.Info(logger).Log(
		"msg", "etl run finished",
		"readings", summary.Readings,
		"aggregates", summary.Aggregates,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)

	if j.metrics != nil {
		j.metrics.ObserveSuccess(summary.Readings, summary.Aggregates, summary.FinishedAt.Sub(summary.StartedAt), summary.FinishedAt)
		j.pushMetrics(ctx)
	}
	j.saveRun(ctx, logger, summary, nil)

	return summary, nil
}

// run executes the stages and reports which one failed
func (j *Job) run(ctx context.Context, logger log.Logger, summary *Summary) (string, error) {
	if j.startDelay > 0 {
		level.Info(logger).Log("msg", "waiting before extraction", "delay", j.startDelay)
		if err := j.clock.Sleep(ctx, j.startDelay); err != nil {
			return StageExtract, errors.Wrap(err, "start delay interrupted")
		}
	}

	level.Info(logger).Log("msg", "extracting readings")
	readings, err := j.source.FetchAll(ctx)
	if err != nil {
		return StageExtract, errors.Wrap(err, "extract failed")
	}
	summary.Readings = len(readings)
	level.Info(logger).Log("msg", "extracted readings", "count", len(readings))

	result, err := j.aggregator.Aggregate(readings)
	if err != nil {
		return StageTransform, errors.Wrap(err, "transform failed")
	}
	rows := result.Rows()
	summary.Aggregates = len(rows)
	level.Info(logger).Log("msg", "transformed readings", "aggregates", len(rows))

	if err := j.sink.EnsureSchema(ctx); err != nil {
		return StageLoad, errors.Wrap(err, "load failed")
	}
	if err := j.sink.UpsertMany(ctx, rows); err != nil {
		return StageLoad, errors.Wrap(err, "load failed")
	}
	level.Info(logger).Log("msg", "loaded aggregates", "rows", len(rows))

	// the load is committed, a publish failure only affects downstream consumers
	if j.publisher != nil && len(rows) > 0 {
		if err := j.publisher.PublishAggregates(ctx, summary.RunID, rows); err != nil {
			level.Warn(logger).Log("msg", "failed to publish aggregates", "err", err)
		}
	}

	return "", nil
}

func (j *Job) observeFailure(ctx context.Context, stage string, startedAt time.Time) {
	if j.metrics == nil {
		return
	}
	j.metrics.ObserveFailure(stage, j.clock.Now().Sub(startedAt))
	j.pushMetrics(ctx)
}

func (j *Job) pushMetrics(ctx context.Context) {
	if err := j.metrics.Push(context.WithoutCancel(ctx)); err != nil {
		level.Warn(j.logger).Log("msg", "failed to push metrics", "err", err)
	}
}

func (j *Job) saveRun(ctx context.Context, logger log.Logger, summary *Summary, runErr error) {
	if j.state == nil {
		return
	}

	rec := &state.RunRecord{
		RunID:      summary.RunID,
		Status:     state.RunStatusSucceeded,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Readings:   summary.Readings,
		Aggregates: summary.Aggregates,
	}
	if runErr != nil {
		rec.Status = state.RunStatusFailed
		rec.Error = runErr.Error()
	}

	if err := j.state.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		level.Warn(logger).Log("msg", "failed to save run record", "err", err)
	}
}
