package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"delivery/internal/domain"
)

// Producer publishes rider samples keyed by rider id.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return &Producer{writer: w}
}

// Publish writes one sample. The hash balancer maps a rider to one partition.
func (p *Producer) Publish(ctx context.Context, sample domain.LocationSample) error {
	b, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(sample.RiderID), Value: b})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
