package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by owner id so
// one owner's trail stays ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// kafkaPayload is the wire structure consumers deserialize.
type kafkaPayload struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	OwnerID    string `json:"owner_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Similarity int    `json:"similarity,omitempty"`
	Verified   bool   `json:"verified,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// Append produces the event synchronously; the publisher's worker absorbs
// the latency.
func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaPayload{
		ID:         event.ID.String(),
		Kind:       string(event.Kind),
		Category:   string(event.Kind.Category()),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		OwnerID:    event.OwnerID,
		TemplateID: event.TemplateID,
		ClientID:   event.ClientID,
		ClientIP:   event.ClientIP,
		DeviceInfo: event.DeviceInfo,
		RequestID:  event.RequestID,
		Similarity: event.Similarity,
		Verified:   event.Verified,
		Reason:     event.Reason,
		Count:      event.Count,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.OwnerID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}
