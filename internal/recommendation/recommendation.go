// Package recommendation turns logged activities into workout advice.
package recommendation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/fittrack/internal/events"
)

// ErrRecommendationNotFound is returned when no advice exists for an activity.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// Recommendation is the advice generated for a single activity.
type Recommendation struct {
	ID           string
	ActivityID   string
	UserID       string
	ActivityType string
	Analysis     string
	Improvements []string
	Suggestions  []string
	Safety       []string
	Generator    string
	CreatedAt    time.Time
}

// ActivitySnapshot is the activity data a Generator works from.
type ActivitySnapshot struct {
	ActivityID        string
	UserID            string
	ActivityType      string
	DurationMin       int
	CaloriesBurned    int
	StartedAt         time.Time
	AdditionalMetrics map[string]any
}

// SnapshotFromEvent converts an activity event payload.
func SnapshotFromEvent(evt events.ActivityChanged) ActivitySnapshot {
	return ActivitySnapshot{
		ActivityID:        evt.ActivityID,
		UserID:            evt.UserID,
		ActivityType:      evt.ActivityType,
		DurationMin:       evt.DurationMin,
		CaloriesBurned:    evt.CaloriesBurned,
		StartedAt:         evt.StartedAt,
		AdditionalMetrics: evt.AdditionalMetrics,
	}
}

// CaloriesPerMinute returns the burn rate, 0 when the duration is unknown.
func (s ActivitySnapshot) CaloriesPerMinute() float64 {
	if s.DurationMin <= 0 {
		return 0
	}
	return float64(s.CaloriesBurned) / float64(s.DurationMin)
}

// Generator produces advice for an activity.
type Generator interface {
	Generate(ctx context.Context, activity ActivitySnapshot) (Recommendation, error)
}

// Store persists recommendations. Save upserts by activity. GetByActivity
// returns nil, nil when nothing is stored.
type Store interface {
	Save(ctx context.Context, rec Recommendation) error
	ListByUser(ctx context.Context, userID string) ([]Recommendation, error)
	GetByActivity(ctx context.Context, userID, activityID string) (*Recommendation, error)
	DeleteByActivity(ctx context.Context, userID, activityID string) error
}

// Service generates, stores and serves recommendations.
type Service struct {
	store     Store
	generator Generator
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, generator Generator) *Service {
	if generator == nil {
		generator = NewRuleGenerator()
	}
	return &Service{store: store, generator: generator, now: time.Now}
}

// Process generates advice for the activity and stores it, replacing any
// earlier advice for the same activity.
func (s *Service) Process(ctx context.Context, activity ActivitySnapshot) (Recommendation, error) {
	rec, err := s.generator.Generate(ctx, activity)
	if err != nil {
		recordGenerationError()
		return Recommendation{}, fmt.Errorf("generate recommendation for %s: %w", activity.ActivityID, err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.ActivityID = activity.ActivityID
	rec.UserID = activity.UserID
	rec.ActivityType = activity.ActivityType
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return Recommendation{}, err
	}
	recordGenerated(rec.Generator)
	return rec, nil
}

// Remove deletes advice for an activity that no longer exists.
func (s *Service) Remove(ctx context.Context, userID, activityID string) error {
	return s.store.DeleteByActivity(ctx, userID, activityID)
}

// ForUser lists all advice for the user, newest first.
func (s *Service) ForUser(ctx context.Context, userID string) ([]Recommendation, error) {
	return s.store.ListByUser(ctx, userID)
}

// ForActivity returns the advice for a single activity.
func (s *Service) ForActivity(ctx context.Context, userID, activityID string) (*Recommendation, error) {
	rec, err := s.store.GetByActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}
