package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// FeedEvent is published for every confirmed alert send.
type FeedEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	MachineSerial string    `json:"machine_serial,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	PartnerName   string    `json:"partner_name,omitempty"`
	SentAt        time.Time `json:"sent_at"`
}

type feedWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventFeed publishes alert events to a Kafka topic.
type EventFeed struct {
	writer feedWriter
}

// NewEventFeed constructs a feed writing to the given brokers and topic.
func NewEventFeed(brokers []string, topic string) (*EventFeed, error) {
	if len(brokers) == 0 {
		return nil, errors.New("event feed: no brokers")
	}
	if topic == "" {
		return nil, errors.New("event feed: empty topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &EventFeed{writer: writer}, nil
}

// Publish writes one event keyed by machine serial so events for a machine
// stay ordered within a partition.
func (f *EventFeed) Publish(ctx context.Context, event FeedEvent) error {
	if f == nil || f.writer == nil {
		return errors.New("event feed: nil writer")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.MachineSerial),
		Value: data,
		Time:  event.SentAt,
	})
}

// Close flushes and closes the underlying writer.
func (f *EventFeed) Close() error {
	if f == nil || f.writer == nil {
		return nil
	}
	return f.writer.Close()
}
