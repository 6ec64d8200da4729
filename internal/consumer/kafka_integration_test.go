//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/internal/recommendation"
)

func TestKafkaActivityEventProducesRecommendation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicActivityEvents,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	store := memory.NewRecommendationStore()
	svc := recommendation.NewService(store, recommendation.NewRuleGenerator())
	handler := NewRecommendationHandler(svc, testLogger())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "recommendations-integration",
		Topic:       events.TopicActivityEvents,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = NewProcessor(reader, handler, WithLogger(testLogger())).Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  events.TopicActivityEvents,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	evt := events.ActivityChanged{
		ActivityID:     "act-int",
		UserID:         "user-int",
		ActivityType:   "CYCLING",
		DurationMin:    45,
		CaloriesBurned: 400,
		StartedAt:      time.Now().UTC(),
		Version:        "v1",
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	// A frame without the magic byte must be skipped, not block the partition.
	require.NoError(t, writer.WriteMessages(ctx,
		kafka.Message{Key: []byte(evt.UserID), Value: []byte("garbage")},
		kafka.Message{
			Key:   []byte(evt.UserID),
			Value: framed(1, payload),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(events.TypeActivityCreated)},
				{Key: "schema_subject", Value: []byte(events.TopicActivityEvents + "-value")},
			},
		},
	))

	require.Eventually(t, func() bool {
		rec, err := store.GetByActivity(ctx, evt.UserID, evt.ActivityID)
		return err == nil && rec != nil
	}, 60*time.Second, 500*time.Millisecond)

	rec, err := svc.ForActivity(ctx, evt.UserID, evt.ActivityID)
	require.NoError(t, err)
	require.Equal(t, recommendation.GeneratorRules, rec.Generator)
	require.NotEmpty(t, rec.Safety)
}
