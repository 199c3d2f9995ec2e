package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cotizabot/cotizabot/config"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Domain event types
const (
	EventLeadAssigned       = "lead.assigned"
	EventAccountGracePeriod = "account.grace_period"
	EventAccountSuspended   = "account.suspended"
	EventAccountReactivated = "account.reactivated"
)

// DomainEvent is a state change published for downstream consumers
type DomainEvent struct {
	ID          uuid.UUID      `json:"id"`
	Type        string         `json:"type"`
	AggregateID uint           `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewDomainEvent stamps a new event with an id and the current time
func NewDomainEvent(eventType string, aggregateID uint, payload map[string]any) DomainEvent {
	return DomainEvent{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  utils.UTCNow(),
		Payload:     payload,
	}
}

// EventPublisher publishes domain events without blocking the caller on broker acknowledgements
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
	Close() error
}

// KafkaEventPublisher writes events to a single topic keyed by aggregate id
type KafkaEventPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewKafkaEventPublisher creates an async writer. Delivery errors surface in the completion callback and are logged.
func NewKafkaEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) *KafkaEventPublisher {
	p := &KafkaEventPublisher{logger: logger}
	p.writer = &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		Completion:   p.onCompletion,
	}
	return p
}

// Publish enqueues events. Events of the same aggregate share a key and therefore a partition.
func (p *KafkaEventPublisher) Publish(ctx context.Context, events ...DomainEvent) error {
	messages := make([]kafkago.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
		}
		messages = append(messages, kafkago.Message{
			Key:   []byte(strconv.FormatUint(uint64(event.AggregateID), 10)),
			Value: value,
			Headers: []kafkago.Header{
				{Key: "event_type", Value: []byte(event.Type)},
				{Key: "event_id", Value: []byte(event.ID.String())},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *KafkaEventPublisher) onCompletion(messages []kafkago.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range messages {
		p.logger.Error("domain event delivery failed",
			"topic", m.Topic,
			"key", string(m.Key),
			"error", err,
		)
	}
}

// Close flushes pending messages
func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// NoopEventPublisher drops every event
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(ctx context.Context, events ...DomainEvent) error { return nil }

func (NoopEventPublisher) Close() error { return nil }
