package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"delivery/internal/domain"
	"delivery/internal/logging"
	"delivery/internal/observability"
)

const maxBackoff = 30 * time.Second

// LocationSink receives decoded samples.
type LocationSink interface {
	UpdateLocation(ctx context.Context, source string, sample domain.LocationSample) error
}

// ConsumerConfig selects the topic and consumer group.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds rider location samples from Kafka into the hub. Messages are
// keyed by rider id, so one rider's samples stay on one partition in order.
type Consumer struct {
	reader messageReader
	sink   LocationSink
	source string
	logger *slog.Logger
}

// NewConsumer creates a consumer-group reader for cfg.
func NewConsumer(cfg ConsumerConfig, sink LocationSink, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newConsumer(r, sink, logger)
}

func newConsumer(r messageReader, sink LocationSink, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Consumer{reader: r, sink: sink, source: "kafka", logger: logger}
}

// Run consumes until ctx is done. Malformed and rejected samples are logged
// and committed so they are not redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("kafka fetch failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		c.handle(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", "error", err, "offset", m.Offset, "partition", m.Partition)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	sample, err := decodeSample(m)
	if err != nil {
		observability.SamplesDropped.WithLabelValues("malformed").Inc()
		c.logger.Warn("dropping malformed location message", "error", err, "offset", m.Offset)
		return
	}
	if err := c.sink.UpdateLocation(ctx, c.source, sample); err != nil {
		c.logger.Debug("location sample rejected", "rider_id", sample.RiderID, "error", err)
	}
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// decodeSample parses a message body. A missing rider id falls back to the key.
func decodeSample(m kafka.Message) (domain.LocationSample, error) {
	var sample domain.LocationSample
	if err := json.Unmarshal(m.Value, &sample); err != nil {
		return domain.LocationSample{}, fmt.Errorf("decode sample: %w", err)
	}
	if sample.RiderID == "" {
		sample.RiderID = string(m.Key)
	}
	if sample.RiderID == "" {
		return domain.LocationSample{}, errors.New("sample has no rider id")
	}
	if len(m.Key) > 0 && string(m.Key) != sample.RiderID {
		return domain.LocationSample{}, fmt.Errorf("key %q does not match rider %q", m.Key, sample.RiderID)
	}
	return sample, nil
}
