package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"rms/order-service/internal/events"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Sink publishes order events to a single Kafka topic keyed by order id.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	return config
}

func New(brokers []string, topic string) (*Sink, error) {
	p, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewWithProducer(p, topic), nil
}

func NewWithProducer(p sarama.SyncProducer, topic string) *Sink {
	return &Sink{producer: p, topic: topic}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Send(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{{Key: []byte("event"), Value: []byte(event.Name)}}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	msg := &sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(event.OrderID),
		Value:   sarama.ByteEncoder(body),
		Headers: headers,
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", event.Name, s.topic, err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.producer.Close()
}
