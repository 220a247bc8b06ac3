package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/smukkama/device-etl/internal/aggregation"
	"github.com/smukkama/device-etl/internal/protocol"
)

// messageWriter is the subset of *kafka.Writer used by the producer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka producer
type Producer struct {
	writer    messageWriter
	batchSize int
	now       func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string, batchSize int) *Producer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by key (device id)
			RequiredAcks: kafka.RequireOne,
			BatchSize:    batchSize,
			Async:        false,
		},
		batchSize: batchSize,
		now:       time.Now,
	}
}

// PublishBatch sends multiple messages to Kafka
func (p *Producer) PublishBatch(ctx context.Context, messages []kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return errors.Wrap(err, "failed to write batch")
	}
	return nil
}

// PublishAggregates emits one event per aggregate, keyed by device id so all
// hours of a device land on the same partition
func (p *Producer) PublishAggregates(ctx context.Context, runID string, rows []aggregation.DeviceHourAggregate) error {
	loadedAt := p.now().UTC()

	batch := make([]kafka.Message, 0, p.batchSize)
	for _, row := range rows {
		value, err := protocol.EncodeAggregateMessage(protocol.NewAggregateMessage(runID, row, loadedAt))
		if err != nil {
			return errors.Wrap(err, "failed to encode aggregate")
		}

		batch = append(batch, kafka.Message{Key: []byte(row.DeviceID), Value: value})
		if len(batch) == p.batchSize {
			if err := p.PublishBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		return p.PublishBatch(ctx, batch)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
