// Package kafka publishes committed workflow events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// DefaultTopic receives workflow events when no topic is configured
const DefaultTopic = "expense-approval.events"

// Config holds publisher configuration
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// MessageWriter is the subset of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements port.EventPublisher. Messages are keyed by expense ID
// so that all events of one expense land on the same partition in order.
type Publisher struct {
	writer       MessageWriter
	topic        string
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewPublisher creates a publisher backed by a kafka-go writer
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafkago.RequireOne,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewPublisherWithWriter(writer, cfg.Topic, cfg.WriteTimeout, logger), nil
}

// NewPublisherWithWriter creates a publisher on an existing writer
func NewPublisherWithWriter(writer MessageWriter, topic string, writeTimeout time.Duration, logger *zap.Logger) *Publisher {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Publisher{
		writer:       writer,
		topic:        topic,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Publish implements port.EventPublisher
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(evt.ExpenseID, 10)),
		Value: value,
		Time:  evt.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "correlation_id", Value: []byte(evt.CorrelationID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Event published",
		zap.String("topic", p.topic),
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.Int64("expense_id", evt.ExpenseID))
	return nil
}

// Close flushes pending messages and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ port.EventPublisher = (*Publisher)(nil)
