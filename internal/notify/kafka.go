package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"greenpulse/internal/compliance"
)

// KafkaPublisher publishes committed compliance updates to a Kafka topic so
// downstream consumers (dashboards, regulator feeds) see the same record the
// ledger anchored. Publish failures are logged and dropped.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *log.Logger
}

// NewKafkaPublisher constructs a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *log.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

// Notify implements compliance.Notifier.
func (p *KafkaPublisher) Notify(ctx context.Context, update compliance.Update) {
	if p == nil || p.writer == nil {
		return
	}
	value, err := json.Marshal(update)
	if err != nil {
		return
	}
	key := update.Event.ID
	if update.Type == "action" && update.Action != nil {
		key = update.Action.ID
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "update_type", Value: []byte(update.Type)},
			{Key: "station_id", Value: []byte(update.Event.StationID)},
			{Key: "published_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.logger != nil {
			p.logger.Printf("kafka notify failed: %v", err)
		}
	}
}

// Close releases the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
