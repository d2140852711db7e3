package app

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"delivery/internal/config"
)

// RabbitConnection holds a broker connection. Publisher and consumer each
// take their own channel since an amqp channel is not safe to share.
type RabbitConnection struct {
	conn *amqp091.Connection
}

// NewRabbitConnection dials the broker.
func NewRabbitConnection(cfg config.RabbitConfig) (*RabbitConnection, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return &RabbitConnection{conn: conn}, nil
}

// Channel opens a new channel on the connection.
func (r *RabbitConnection) Channel() (*amqp091.Channel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	return ch, nil
}

// Close closes the connection and every channel opened on it.
func (r *RabbitConnection) Close() error {
	return r.conn.Close()
}
