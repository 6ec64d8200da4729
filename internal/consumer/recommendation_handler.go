package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/recommendation"
)

type recommender interface {
	Process(ctx context.Context, activity recommendation.ActivitySnapshot) (recommendation.Recommendation, error)
	Remove(ctx context.Context, userID, activityID string) error
}

// RecommendationHandler keeps recommendations in step with activity events.
type RecommendationHandler struct {
	service recommender
	logger  *slog.Logger
}

// NewRecommendationHandler constructs a RecommendationHandler.
func NewRecommendationHandler(service recommender, logger *slog.Logger) *RecommendationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationHandler{service: service, logger: logger}
}

// Handle implements Handler.
func (h *RecommendationHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityCreated, events.TypeActivityUpdated:
		var evt events.ActivityChanged
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return h.Apply(ctx, msg.EventType, evt)
	case events.TypeActivityDeleted:
		var evt events.ActivityDeleted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return h.Apply(ctx, msg.EventType, evt)
	default:
		h.logger.Debug("ignoring event", "event_type", msg.EventType)
		return nil
	}
}

// Apply handles an already decoded event payload.
func (h *RecommendationHandler) Apply(ctx context.Context, eventType string, payload any) error {
	switch evt := payload.(type) {
	case events.ActivityChanged:
		if evt.ActivityID == "" || evt.UserID == "" {
			return fmt.Errorf("%w: %s without activity or user id", ErrMalformedPayload, eventType)
		}
		rec, err := h.service.Process(ctx, recommendation.SnapshotFromEvent(evt))
		if err != nil {
			return err
		}
		h.logger.Info("recommendation stored", "activity_id", evt.ActivityID, "event_type", eventType, "generator", rec.Generator)
		return nil
	case events.ActivityDeleted:
		if evt.ActivityID == "" || evt.UserID == "" {
			return fmt.Errorf("%w: %s without activity or user id", ErrMalformedPayload, eventType)
		}
		if err := h.service.Remove(ctx, evt.UserID, evt.ActivityID); err != nil {
			return err
		}
		h.logger.Info("recommendation removed", "activity_id", evt.ActivityID)
		return nil
	default:
		return fmt.Errorf("%w: unexpected payload %T for %s", ErrMalformedPayload, payload, eventType)
	}
}
