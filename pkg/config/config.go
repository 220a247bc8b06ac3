package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// lockMargin is the minimum run time the lock TTL must cover on top of the
// start delay
const lockMargin = 10 * time.Minute

type Config struct {
	Source      SourceConfig
	Sink        SinkConfig
	Aggregation AggregationConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Metrics     MetricsConfig

	StartDelay time.Duration `envconfig:"ETL_START_DELAY" default:"20s" validate:"gte=0"`
	LogLevel   string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

type SourceConfig struct {
	DSN                string        `envconfig:"POSTGRESQL_CS" validate:"required"`
	ConnectInterval    time.Duration `envconfig:"ETL_CONNECT_INTERVAL" default:"100ms" validate:"gt=0"`
	ConnectMaxAttempts int           `envconfig:"ETL_CONNECT_MAX_ATTEMPTS" default:"0" validate:"gte=0"`
}

type SinkConfig struct {
	DSN       string `envconfig:"MYSQL_CS" validate:"required"`
	ChunkSize int    `envconfig:"ETL_CHUNK_SIZE" default:"500" validate:"gte=1,max=13107"`
}

type AggregationConfig struct {
	DistanceOrder string `envconfig:"ETL_DISTANCE_ORDER" default:"source" validate:"oneof=source chronological"`
	Rounding      string `envconfig:"ETL_ROUNDING" default:"cumulative" validate:"oneof=cumulative final"`
	TimeZone      string `envconfig:"ETL_TIMEZONE" default:"Local" validate:"required"`
}

// Location resolves TimeZone, "Local" being the process zone
func (a AggregationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid time zone %q", a.TimeZone)
	}
	return loc, nil
}

// RedisConfig enables the run lock when Addr is set
type RedisConfig struct {
	Addr      string        `envconfig:"REDIS_ADDR"`
	Password  string        `envconfig:"REDIS_PASSWORD"`
	DB        int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	KeyPrefix string        `envconfig:"ETL_REDIS_PREFIX" default:"device-etl"`
	LockTTL   time.Duration `envconfig:"ETL_LOCK_TTL" default:"30m" validate:"gt=0"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// KafkaConfig enables publishing of loaded aggregates when Brokers is set
type KafkaConfig struct {
	Brokers         []string `envconfig:"KAFKA_BROKERS"`
	TopicAggregates string   `envconfig:"KAFKA_TOPIC_AGGREGATES" default:"device.aggregates.hourly" validate:"required"`
	BatchSize       int      `envconfig:"KAFKA_BATCH_SIZE" default:"100" validate:"gte=1"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type MetricsConfig struct {
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" validate:"omitempty,url"`
	JobName        string `envconfig:"PUSHGATEWAY_JOB" default:"device-etl" validate:"required"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	if _, err := cfg.Aggregation.Location(); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() && cfg.Redis.LockTTL < cfg.StartDelay+lockMargin {
		return nil, errors.Errorf("lock ttl %s must cover the start delay %s plus %s", cfg.Redis.LockTTL, cfg.StartDelay, lockMargin)
	}

	return &cfg, nil
}
