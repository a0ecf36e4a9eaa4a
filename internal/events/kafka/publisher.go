package kafka

import (
	"context"
	"strconv"

	"budget-tracker/internal/events"

	"github.com/segmentio/kafka-go"
)

// Publisher writes events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for topic on the given brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish sends e keyed by user so one user's events stay ordered.
func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Message encodes e as a Kafka message.
func Message(e events.Event) (kafka.Message, error) {
	data, err := e.ToJSON()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.UserID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}
