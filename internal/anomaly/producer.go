package anomaly

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaAlertProducer publishes anomaly reports to a Kafka topic using segmentio/kafka-go.
type KafkaAlertProducer struct {
	writer *kafka.Writer
}

// NewKafkaAlertProducer creates a producer that writes reports to the given topic.
// Returns nil when brokers or topic are unset (alert dispatch disabled). Call Close
// when shutting down.
func NewKafkaAlertProducer(brokers []string, topic string) *KafkaAlertProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaAlertProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish serializes the report as JSON and writes it to the topic. Uses a short
// timeout so a slow broker cannot stall the detector loop.
func (p *KafkaAlertProducer) Publish(ctx context.Context, r *Report) error {
	if p == nil || p.writer == nil || r == nil {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(r.Kind),
		Value: payload,
	})
}

// Close closes the Kafka writer. Safe to call on a nil producer.
func (p *KafkaAlertProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
