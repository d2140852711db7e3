package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"

	"delivery/internal/events"
	"delivery/internal/logging"
)

// Consumer binds an exclusive queue to the transitions exchange and hands each
// event to a handler. Every instance gets its own copy of every event.
type Consumer struct {
	ch       *amqp091.Channel
	exchange string
	queue    string
	handler  events.Handler
	logger   *slog.Logger
}

// NewConsumer creates a consumer. An empty queue name lets the broker pick one.
func NewConsumer(ch *amqp091.Channel, exchange, queue string, handler events.Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = logging.Discard()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Consumer{ch: ch, exchange: exchange, queue: queue, handler: handler, logger: logger}
}

// Run declares and binds the queue, then consumes until ctx is done or the
// channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if err := declareExchange(c.ch, c.exchange); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(
		c.queue,
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := c.ch.QueueBind(q.Name, "", c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	msgs, err := c.ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	c.logger.Info("subscribed to order transitions", "exchange", c.exchange, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return errors.New("rabbit delivery channel closed")
			}
			c.deliver(ctx, m)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, m amqp091.Delivery) {
	ev, err := decodeOrderTransitioned(m.Body)
	if err != nil {
		c.logger.Warn("dropping malformed order event", "error", err, "message_id", m.MessageId)
		_ = m.Nack(false, false)
		return
	}
	if err := c.handler(ctx, ev); err != nil {
		c.logger.Warn("order event handler failed", "order_id", ev.OrderID, "error", err)
		_ = m.Nack(false, !m.Redelivered)
		return
	}
	_ = m.Ack(false)
}

func decodeOrderTransitioned(body []byte) (events.OrderTransitioned, error) {
	var ev events.OrderTransitioned
	if err := json.Unmarshal(body, &ev); err != nil {
		return events.OrderTransitioned{}, err
	}
	if ev.OrderID == "" || ev.To == "" {
		return events.OrderTransitioned{}, errors.New("order event missing order id or target status")
	}
	return ev, nil
}
