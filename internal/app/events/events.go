/*
Package events publishes domain events (registrations, new rooms, new messages)
to Kafka for downstream consumers.

Publication is best effort: failures are logged and never surface to the request
that produced the event.
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"duochat/internal/pkg/logx"
)

// Event types.
const (
	UserRegistered = "user.registered"
	RoomCreated    = "room.created"
	MessageSent    = "message.sent"
)

// Event is one domain event. Key selects the partition so events about the
// same aggregate stay ordered.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// New builds an Event of type t keyed by key.
func New(t, key string, data any) Event {
	return Event{Type: t, Key: key, OccurredAt: time.Now().UTC(), Data: data}
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}

// Close implements Publisher.
func (Nop) Close() error { return nil }

// KafkaConfig selects the brokers and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Kafka publishes events as JSON messages on one topic.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka returns an asynchronous Kafka publisher.
func NewKafka(cfg KafkaConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logx.Error(err, "Kafka delivery failed", "messages", len(messages))
			}
		},
	}}
}

// Encode renders e as a Kafka message.
func Encode(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: json.Marshal failed: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.Key),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, e Event) {
	msg, err := Encode(e)
	if err != nil {
		logx.Error(err, "Dropping unencodable event", "type", e.Type)
		return
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		logx.Error(err, "Kafka publish failed", "type", e.Type, "key", e.Key)
	}
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
