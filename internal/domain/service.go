// Package domain defines the business logic for activity tracking.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located for the caller.
	ErrActivityNotFound = errors.New("activity not found")
)

const (
	// DefaultPageSize is used when callers do not provide a limit.
	DefaultPageSize = 20
	// MaxPageSize caps list requests.
	MaxPageSize = 100

	activityVersion = "v1"
)

// Cursor models the pagination token.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// ActivityRepository captures persistence operations. Get returns nil, nil when
// the activity does not exist for the user. Update and Delete return
// ErrActivityNotFound in that case.
type ActivityRepository interface {
	FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*Activity, error)
	Create(ctx context.Context, activity Activity, idempotencyKey string) error
	Get(ctx context.Context, userID, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	AllByUser(ctx context.Context, userID string) ([]Activity, error)
	Update(ctx context.Context, activity Activity) error
	Delete(ctx context.Context, userID, activityID string) error
}

// PreferencesRepository stores per-user preferences. GetPreferences returns
// nil, nil when nothing has been saved yet.
type PreferencesRepository interface {
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs Preferences) error
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates activity workflows.
type Service struct {
	repo  ActivityRepository
	prefs PreferencesRepository
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo ActivityRepository, prefs PreferencesRepository, opts ...Option) *Service {
	s := &Service{repo: repo, prefs: prefs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivity validates the input and persists a new activity. When the
// idempotency key matches an earlier request the stored activity is returned
// with replay set.
func (s *Service) CreateActivity(ctx context.Context, userID string, input ActivityInput, idempotencyKey string) (*Activity, bool, error) {
	if err := input.Validate(); err != nil {
		return nil, false, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotency(ctx, userID, idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	now := s.now().UTC()
	startedAt := input.StartedAt.UTC()
	if input.StartedAt.IsZero() {
		startedAt = now
	}

	activity := Activity{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              input.activityType(),
		DurationMin:       input.DurationMin,
		CaloriesBurned:    input.CaloriesBurned,
		StartedAt:         startedAt,
		AdditionalMetrics: copyMetrics(input.AdditionalMetrics),
		Version:           activityVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, activity, idempotencyKey); err != nil {
		return nil, false, err
	}
	return &activity, false, nil
}

// GetActivity fetches a single activity owned by the user.
func (s *Service) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities returns a page of the user's activities, newest first.
func (s *Service) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, clampLimit(limit))
}

// UpdateActivity replaces the editable fields of an activity.
func (s *Service) UpdateActivity(ctx context.Context, userID, activityID string, input ActivityInput) (*Activity, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.GetActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Type = input.activityType()
	updated.DurationMin = input.DurationMin
	updated.CaloriesBurned = input.CaloriesBurned
	if !input.StartedAt.IsZero() {
		updated.StartedAt = input.StartedAt.UTC()
	}
	if input.AdditionalMetrics != nil {
		updated.AdditionalMetrics = copyMetrics(input.AdditionalMetrics)
	}
	updated.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteActivity removes an activity owned by the user.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	return s.repo.Delete(ctx, userID, activityID)
}

// Dashboard aggregates every activity of the user.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	activities, err := s.repo.AllByUser(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	return Summarize(activities, s.now().UTC(), prefs.WeeklyCalorieGoal), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
