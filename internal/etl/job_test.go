package etl

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/smukkama/device-etl/internal/aggregation"
	"github.com/smukkama/device-etl/internal/clock"
	"github.com/smukkama/device-etl/internal/state"
)

type fakeSource struct {
	readings []aggregation.Reading
	err      error
}

func (f *fakeSource) FetchAll(context.Context) ([]aggregation.Reading, error) {
	return f.readings, f.err
}

type fakeSink struct {
	schemaCalls int
	rows        []aggregation.DeviceHourAggregate
	upserts     int
	err         error
}

func (f *fakeSink) EnsureSchema(context.Context) error {
	f.schemaCalls++
	return nil
}

func (f *fakeSink) UpsertMany(_ context.Context, rows []aggregation.DeviceHourAggregate) error {
	f.upserts++
	if f.err != nil {
		return f.err
	}
	f.rows = rows
	return nil
}

type fakePublisher struct {
	runID string
	rows  int
	err   error
}

func (f *fakePublisher) PublishAggregates(_ context.Context, runID string, rows []aggregation.DeviceHourAggregate) error {
	f.runID = runID
	f.rows = len(rows)
	return f.err
}

type fakeState struct {
	held     bool
	acquired []string
	released []string
	records  []*state.RunRecord
}

func (f *fakeState) Acquire(_ context.Context, token string) (bool, error) {
	if f.held {
		return false, nil
	}
	f.acquired = append(f.acquired, token)
	return true, nil
}

func (f *fakeState) Release(_ context.Context, token string) error {
	f.released = append(f.released, token)
	return nil
}

func (f *fakeState) SaveRun(_ context.Context, rec *state.RunRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeMetrics struct {
	readings, aggregates int
	failures             []string
	pushes               int
}

func (f *fakeMetrics) ObserveSuccess(readings, aggregates int, _ time.Duration, _ time.Time) {
	f.readings = readings
	f.aggregates = aggregates
}

func (f *fakeMetrics) ObserveFailure(stage string, _ time.Duration) {
	f.failures = append(f.failures, stage)
}

func (f *fakeMetrics) Push(context.Context) error {
	f.pushes++
	return nil
}

type JobSuite struct {
	suite.Suite

	source     *fakeSource
	sink       *fakeSink
	aggregator *aggregation.HourlyAggregator
	clock      clock.Mock
}

func TestJobSuite(t *testing.T) {
	suite.Run(t, new(JobSuite))
}

func (s *JobSuite) SetupTest() {
	s.source = &fakeSource{readings: []aggregation.Reading{
		{DeviceID: "dev-1", Temperature: 20, Location: "{'latitude': 0.0, 'longitude': 0.0}", Timestamp: 0},
		{DeviceID: "dev-1", Temperature: 25, Location: "{'latitude': 0.0, 'longitude': 0.001}", Timestamp: 60},
		{DeviceID: "dev-2", Temperature: 18, Location: "{'latitude': 10.0, 'longitude': 10.0}", Timestamp: 3600},
	}}
	s.sink = &fakeSink{}
	s.aggregator = aggregation.NewHourlyAggregator(aggregation.Options{Location: time.UTC})
	s.clock = clock.NewMock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
}

func (s *JobSuite) newJob(opts ...Option) *Job {
	j := NewJob(s.source, s.sink, s.aggregator, s.clock, log.NewNopLogger(), opts...)
	j.newRunID = func() string { return "run-1" }
	return j
}

func (s *JobSuite) TestRunLoadsAggregates() {
	summary, err := s.newJob().Run(context.Background())
	s.Require().NoError(err)

	s.Equal("run-1", summary.RunID)
	s.Equal(3, summary.Readings)
	s.Equal(2, summary.Aggregates)
	s.Equal(1, s.sink.schemaCalls)
	s.Require().Len(s.sink.rows, 2)

	first := s.sink.rows[0]
	s.Equal("dev-1", first.DeviceID)
	s.Equal(2, first.SampleCount)
	s.Equal(25.0, first.MaxTemperature)
	s.InDelta(111.32, first.TotalDistanceMeters, 0.01)

	s.Equal("dev-2", s.sink.rows[1].DeviceID)
	s.Equal(0.0, s.sink.rows[1].TotalDistanceMeters)
}

func (s *JobSuite) TestRunHonoursStartDelay() {
	summary, err := s.newJob(WithStartDelay(20 * time.Second)).Run(context.Background())
	s.Require().NoError(err)

	s.Equal([]time.Duration{20 * time.Second}, s.clock.Sleeps())
	s.Equal(20*time.Second, summary.FinishedAt.Sub(summary.StartedAt))
}

func (s *JobSuite) TestStartDelayCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.newJob(WithStartDelay(time.Second)).Run(ctx)
	s.Require().Error(err)
	s.Equal(context.Canceled, errors.Cause(err))
	s.Zero(s.sink.upserts)
}

func (s *JobSuite) TestMalformedLocationWritesNothing() {
	s.source.readings = append(s.source.readings, aggregation.Reading{
		DeviceID: "dev-3", Location: "not a location", Timestamp: 10,
	})

	_, err := s.newJob().Run(context.Background())
	s.Require().Error(err)

	var malformed *aggregation.MalformedLocationError
	s.Require().True(errors.As(err, &malformed))
	s.Equal("dev-3", malformed.DeviceID)
	s.Zero(s.sink.schemaCalls)
	s.Zero(s.sink.upserts)
}

func (s *JobSuite) TestExtractFailure() {
	s.source.err = errors.New("connection reset")
	m := &fakeMetrics{}

	_, err := s.newJob(WithMetrics(m)).Run(context.Background())
	s.Require().Error(err)
	s.Equal([]string{StageExtract}, m.failures)
	s.Equal(1, m.pushes)
	s.Zero(s.sink.upserts)
}

func (s *JobSuite) TestLoadFailureIsReturned() {
	s.sink.err = errors.New("deadlock")
	st := &fakeState{}

	_, err := s.newJob(WithState(st)).Run(context.Background())
	s.Require().Error(err)
	s.Equal("deadlock", errors.Cause(err).Error())

	s.Require().Len(st.records, 1)
	s.Equal(state.RunStatusFailed, st.records[0].Status)
	s.Contains(st.records[0].Error, "deadlock")
	s.Equal([]string{"run-1"}, st.released)
}

func (s *JobSuite) TestRunRecordsSuccess() {
	st := &fakeState{}
	m := &fakeMetrics{}
	p := &fakePublisher{}

	_, err := s.newJob(WithState(st), WithMetrics(m), WithPublisher(p)).Run(context.Background())
	s.Require().NoError(err)

	s.Equal([]string{"run-1"}, st.acquired)
	s.Equal([]string{"run-1"}, st.released)
	s.Require().Len(st.records, 1)
	s.Equal(state.RunStatusSucceeded, st.records[0].Status)
	s.Equal(2, st.records[0].Aggregates)

	s.Equal(3, m.readings)
	s.Equal(2, m.aggregates)
	s.Equal(1, m.pushes)

	s.Equal("run-1", p.runID)
	s.Equal(2, p.rows)
}

func (s *JobSuite) TestRunInProgress() {
	st := &fakeState{held: true}

	_, err := s.newJob(WithState(st)).Run(context.Background())
	s.Equal(ErrRunInProgress, err)
	s.Zero(s.sink.upserts)
	s.Empty(st.released)
}

func (s *JobSuite) TestPublishFailureDoesNotFailRun() {
	p := &fakePublisher{err: errors.New("broker down")}

	summary, err := s.newJob(WithPublisher(p)).Run(context.Background())
	s.Require().NoError(err)
	s.Equal(2, summary.Aggregates)
}

func TestRunEmptySource(t *testing.T) {
	sink := &fakeSink{}
	p := &fakePublisher{}
	j := NewJob(&fakeSource{}, sink, aggregation.NewHourlyAggregator(aggregation.Options{}),
		clock.NewMock(time.Unix(0, 0)), log.NewNopLogger(), WithPublisher(p))

	summary, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Aggregates)
	assert.Equal(t, 1, sink.upserts)
	assert.Empty(t, p.runID)
}
