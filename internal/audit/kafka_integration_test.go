//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/kafka/producer"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/testutil/containers"
)

func TestKafkaSinkPublishesAuditTrail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	kc := containers.GetManager().GetKafka(t)

	topic := "audit-log-" + uuid.NewString()
	require.NoError(t, kc.CreateTopic(ctx, topic, 1, 1))

	prod, err := producer.New(producer.Config{
		Brokers:         kc.Brokers,
		DeliveryTimeout: 10 * time.Second,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	userID := id.UserID(uuid.New())
	profile := auditedProfile(t, userID)
	acc := NewAccumulator()
	recordCtx := WithAccumulator(context.Background(), acc)
	Record(recordCtx, OperationRead, profile)

	newTestFlusher(NewKafkaSink(prod, topic), nil, nil).Flush(ctx, acc)
	// Close flushes the async buffer before the consumer looks.
	require.NoError(t, prod.Close())

	consumer, err := kc.NewConsumer(ctx, "audit-verify-"+uuid.NewString(), topic)
	require.NoError(t, err)
	defer consumer.Close()

	rec := kc.WaitForMessage(ctx, consumer, 30*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == profile.ID.String()
	})
	require.NotNil(t, rec, "audit event never arrived on the topic")

	var event kafkaEvent
	require.NoError(t, json.Unmarshal(rec.Value, &event))
	assert.Equal(t, string(OperationRead), event.Operation)
	assert.Equal(t, profile.ID.String(), event.TargetProfileID)
	assert.Equal(t, "base profile", event.TargetType)
	assert.Equal(t, userID.String(), event.TargetUserID)
}
