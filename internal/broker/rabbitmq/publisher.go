package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rms/order-service/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel the sink uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Sink publishes order events to a fanout exchange. The routing key is the
// event name so topic-bound consumers can also filter on it.
type Sink struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
}

func New(url, exchange string) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	sink, err := NewWithChannel(ch, exchange)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	sink.conn = conn
	return sink, nil
}

func NewWithChannel(ch Channel, exchange string) (*Sink, error) {
	err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Sink{channel: ch, exchange: exchange}, nil
}

func (s *Sink) Name() string { return "rabbitmq" }

func (s *Sink) Send(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = s.channel.PublishWithContext(ctx,
		s.exchange,
		event.Name,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.OrderID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Name, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if err := s.channel.Close(); err != nil {
		return fmt.Errorf("close rabbitmq channel: %w", err)
	}
	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
