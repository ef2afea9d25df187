package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event is a room broadcast travelling between server instances. Payload is
// the encoded wire frame that clients of the room receive.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	UserID    string          `json:"user_id,omitempty"` // deliver to this user only
	Except    string          `json:"except,omitempty"`  // deliver to everyone but this user
	Close     bool            `json:"close,omitempty"`   // close the receivers' channels afterwards
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Targets reports whether a client of the room with username receives e.
func (e Event) Targets(username string) bool {
	if e.UserID != "" {
		return e.UserID == username
	}
	return e.Except == "" || e.Except != username
}

// Bus fans room events out to every server instance.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Consume calls handler for every event until ctx ends.
	Consume(ctx context.Context, handler func(Event) error) error
	Close() error
}

type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    *logrus.Entry
}

// NewKafkaClient publishes to topic and reads it with groupID. Each server
// instance needs its own group so that all of them see every event.
func NewKafkaClient(brokers []string, topic string, groupID string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
		log:    logrus.WithField("component", "kafka"),
	}
}

// Publish keys messages by room so a room's events stay in order.
func (k *KafkaClient) Publish(ctx context.Context, ev Event) error {
	messageJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: messageJSON,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (k *KafkaClient) Consume(ctx context.Context, handler func(Event) error) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			k.log.WithError(err).WithField("offset", msg.Offset).Warn("skipping malformed event")
			continue
		}
		if err := handler(event); err != nil {
			k.log.WithError(err).WithField("room_id", event.RoomID).Warn("failed to handle event")
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
