package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/device-etl/internal/aggregation"
	"github.com/smukkama/device-etl/internal/clock"
	"github.com/smukkama/device-etl/internal/database"
	"github.com/smukkama/device-etl/internal/etl"
	"github.com/smukkama/device-etl/internal/logger"
	"github.com/smukkama/device-etl/internal/metrics"
	"github.com/smukkama/device-etl/internal/queue"
	"github.com/smukkama/device-etl/internal/retry"
	"github.com/smukkama/device-etl/internal/state"
	"github.com/smukkama/device-etl/internal/version"
	"github.com/smukkama/device-etl/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no level configured yet
		logger.NewLogger("info").Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	l := logger.NewLogger(cfg.LogLevel)
	level.Info(l).Log("msg", "starting device etl", "version", version.VersionString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		level.Error(l).Log("msg", "device etl failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l log.Logger) error {
	clk := clock.New()

	retrier := retry.New(retry.Policy{
		Interval:    cfg.Source.ConnectInterval,
		MaxAttempts: cfg.Source.ConnectMaxAttempts,
	}, clk, l)

	level.Info(l).Log("msg", "connecting to source database")
	sourceDB, err := database.Connect(ctx, database.DriverPostgres, database.PostgresDSN(cfg.Source.DSN), retrier)
	if err != nil {
		return errors.Wrap(err, "failed to connect to source database")
	}
	defer sourceDB.Close()
	level.Info(l).Log("msg", "connected to source database")

	sinkDSN, err := database.MySQLDSN(cfg.Sink.DSN)
	if err != nil {
		return err
	}
	sinkDB, err := database.Open(database.DriverMySQL, sinkDSN)
	if err != nil {
		return errors.Wrap(err, "failed to open sink database")
	}
	defer sinkDB.Close()

	loc, err := cfg.Aggregation.Location()
	if err != nil {
		return err
	}
	aggregator := aggregation.NewHourlyAggregator(aggregation.Options{
		Order:    aggregation.Order(cfg.Aggregation.DistanceOrder),
		Rounding: aggregation.Rounding(cfg.Aggregation.Rounding),
		Location: loc,
	})

	opts := []etl.Option{
		etl.WithStartDelay(cfg.StartDelay),
		etl.WithMetrics(metrics.NewRecorder(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName)),
	}

	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "failed to connect to redis")
		}
		level.Info(l).Log("msg", "connected to redis", "addr", cfg.Redis.Addr)

		opts = append(opts, etl.WithState(state.NewStore(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL)))
	}

	if cfg.Kafka.Enabled() {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAggregates, cfg.Kafka.BatchSize)
		defer producer.Close()
		level.Info(l).Log("msg", "publishing aggregates", "topic", cfg.Kafka.TopicAggregates)

		opts = append(opts, etl.WithPublisher(producer))
	}

	job := etl.NewJob(
		database.NewSource(sourceDB, l),
		database.NewSink(sinkDB, cfg.Sink.ChunkSize, l),
		aggregator,
		clk,
		l,
		opts...,
	)

	_, err = job.Run(ctx)
	return err
}
