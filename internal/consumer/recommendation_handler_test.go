package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/persistence/memory"
	"example.com/fittrack/internal/recommendation"
)

type stubRecommender struct {
	mu        sync.Mutex
	processed []recommendation.ActivitySnapshot
	removed   []string
	err       error
}

func (s *stubRecommender) Process(_ context.Context, activity recommendation.ActivitySnapshot) (recommendation.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return recommendation.Recommendation{}, s.err
	}
	s.processed = append(s.processed, activity)
	return recommendation.Recommendation{ActivityID: activity.ActivityID, Generator: recommendation.GeneratorRules}, nil
}

func (s *stubRecommender) Remove(_ context.Context, _ string, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, activityID)
	return s.err
}

func eventMessage(t *testing.T, eventType string, payload any) Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{Topic: events.TopicActivityEvents, EventType: eventType, Payload: body}
}

func TestRecommendationHandlerProcessesChanges(t *testing.T) {
	svc := &stubRecommender{}
	handler := NewRecommendationHandler(svc, testLogger())

	started := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	for _, eventType := range []string{events.TypeActivityCreated, events.TypeActivityUpdated} {
		msg := eventMessage(t, eventType, events.ActivityChanged{
			ActivityID:     "act-1",
			UserID:         "user-1",
			ActivityType:   "RUNNING",
			DurationMin:    30,
			CaloriesBurned: 300,
			StartedAt:      started,
			Version:        "v1",
		})
		require.NoError(t, handler.Handle(context.Background(), msg))
	}

	require.Len(t, svc.processed, 2)
	require.Equal(t, "act-1", svc.processed[0].ActivityID)
	require.Equal(t, 30, svc.processed[1].DurationMin)
	require.True(t, started.Equal(svc.processed[0].StartedAt))
}

func TestRecommendationHandlerRemovesOnDelete(t *testing.T) {
	svc := &stubRecommender{}
	handler := NewRecommendationHandler(svc, testLogger())

	msg := eventMessage(t, events.TypeActivityDeleted, events.ActivityDeleted{ActivityID: "act-1", UserID: "user-1", DeletedAt: time.Now()})
	require.NoError(t, handler.Handle(context.Background(), msg))
	require.Equal(t, []string{"act-1"}, svc.removed)
}

func TestRecommendationHandlerErrors(t *testing.T) {
	svc := &stubRecommender{}
	handler := NewRecommendationHandler(svc, testLogger())

	err := handler.Handle(context.Background(), Message{EventType: events.TypeActivityCreated, Payload: json.RawMessage(`{`)})
	require.ErrorIs(t, err, ErrMalformedPayload)

	err = handler.Handle(context.Background(), eventMessage(t, events.TypeActivityCreated, map[string]any{"activity_id": "act-1"}))
	require.ErrorIs(t, err, ErrMalformedPayload)

	require.NoError(t, handler.Handle(context.Background(), Message{EventType: "activity.unknown", Payload: json.RawMessage(`{}`)}))

	svc.err = errors.New("store down")
	err = handler.Handle(context.Background(), eventMessage(t, events.TypeActivityCreated, events.ActivityChanged{ActivityID: "a", UserID: "u"}))
	require.ErrorIs(t, err, svc.err)
	require.False(t, errors.Is(err, ErrMalformedPayload))
}

func TestLocalBusAppliesRepositoryEvents(t *testing.T) {
	store := memory.NewRecommendationStore()
	svc := recommendation.NewService(store, nil)
	bus := NewLocalBus(NewRecommendationHandler(svc, testLogger()), 8, testLogger())
	go bus.Start(context.Background())

	repo := memory.NewRepository()
	repo.SetEventHook(bus.Hook)

	ctx := context.Background()
	started := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	walk := domain.Activity{ID: "act-1", UserID: "user-1", Type: domain.ActivityWalking, DurationMin: 40, CaloriesBurned: 200, StartedAt: started}
	run := domain.Activity{ID: "act-2", UserID: "user-1", Type: domain.ActivityRunning, DurationMin: 30, CaloriesBurned: 300, StartedAt: started.Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, walk, ""))
	require.NoError(t, repo.Create(ctx, run, ""))
	require.NoError(t, repo.Delete(ctx, "user-1", "act-2"))
	bus.Close()

	recs, err := svc.ForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "act-1", recs[0].ActivityID)
	require.Equal(t, recommendation.GeneratorRules, recs[0].Generator)

	require.ErrorIs(t, bus.Publish(ctx, events.TypeActivityCreated, persistenceEvent(walk)), ErrBusClosed)
}

func persistenceEvent(a domain.Activity) events.ActivityChanged {
	return events.ActivityChanged{ActivityID: a.ID, UserID: a.UserID, ActivityType: string(a.Type)}
}
