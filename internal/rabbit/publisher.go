package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"delivery/internal/events"
)

// DefaultExchange is the fanout exchange carrying order transitions.
const DefaultExchange = "order_transitions"

// Publisher sends OrderTransitioned events to a fanout exchange.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp091.Channel
	exchange string
}

// NewPublisher declares the exchange on ch. An empty exchange means
// DefaultExchange.
func NewPublisher(ch *amqp091.Channel, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

func declareExchange(ch *amqp091.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

func (p *Publisher) PublishOrderTransitioned(ctx context.Context, ev events.OrderTransitioned) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		p.exchange,
		"", // fanout ignores routing key
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.EventID,
			Timestamp:    ev.OccurredAt,
			Type:         "order.transitioned",
			Body:         body,
		},
	)
}

var _ events.Publisher = (*Publisher)(nil)
