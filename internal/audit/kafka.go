package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/kafka/producer"
)

// KafkaSink publishes one message per entry, keyed by the target profile so
// a profile's audit trail stays in partition order.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaSink creates the Kafka-backed sink.
func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

type kafkaEvent struct {
	Origin          string `json:"origin"`
	Operation       string `json:"operation"`
	ActorRole       string `json:"actor_role"`
	ActorUserID     string `json:"actor_user_id,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	TargetUserID    string `json:"target_user_id,omitempty"`
	TargetProfileID string `json:"target_profile_id"`
	TargetType      string `json:"target_type"`
	DateTimeEpoch   int64  `json:"date_time_epoch"`
}

func (s *KafkaSink) Emit(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		event := kafkaEvent{
			Origin:          origin,
			Operation:       string(e.Operation),
			ActorRole:       string(e.ActorRole),
			ServiceName:     e.ServiceName,
			ClientID:        e.ClientID,
			IPAddress:       e.IPAddress,
			TargetProfileID: e.TargetProfileID.String(),
			TargetType:      e.TargetType,
			DateTimeEpoch:   e.Timestamp.UnixMilli(),
		}
		if !e.ActorUserID.IsNil() {
			event.ActorUserID = e.ActorUserID.String()
		}
		if !e.TargetUserID.IsNil() {
			event.TargetUserID = e.TargetUserID.String()
		}

		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		if err := s.producer.ProduceAsync(&producer.Message{
			Topic: s.topic,
			Key:   []byte(e.TargetProfileID.String()),
			Value: value,
		}); err != nil {
			return fmt.Errorf("produce audit event: %w", err)
		}
	}
	return nil
}
