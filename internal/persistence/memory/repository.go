// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/observability"
	"example.com/fittrack/internal/persistence"
)

// EventHook receives activity events after a mutation is stored. It replaces
// the outbox when running without Postgres and Kafka.
type EventHook func(ctx context.Context, eventType string, payload any)

// Repository stores activities and preferences in memory.
type Repository struct {
	mu          sync.RWMutex
	activities  map[string]domain.Activity
	idempotency map[string]string
	prefs       map[string]domain.Preferences
	hook        EventHook
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		activities:  make(map[string]domain.Activity),
		idempotency: make(map[string]string),
		prefs:       make(map[string]domain.Preferences),
	}
}

// SetEventHook registers the callback invoked after each mutation.
func (r *Repository) SetEventHook(hook EventHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func idempotencyKey(userID, key string) string { return userID + "\x00" + key }

// FindByIdempotency implements domain.ActivityRepository.
func (r *Repository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Activity, error) {
	if key == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idempotency[idempotencyKey(userID, key)]
	if !ok {
		return nil, nil
	}
	activity, ok := r.activities[id]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// Create implements domain.ActivityRepository.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, key string) error {
	r.mu.Lock()
	r.activities[activity.ID] = activity
	if key != "" {
		r.idempotency[idempotencyKey(activity.UserID, key)] = activity.ID
	}
	hook := r.hook
	r.mu.Unlock()

	observability.RecordActivityPersisted(events.TypeActivityCreated, activity.CreatedAt)
	if hook != nil {
		hook(ctx, events.TypeActivityCreated, persistence.ChangedEvent(activity))
	}
	return nil
}

// Get implements domain.ActivityRepository.
func (r *Repository) Get(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[activityID]
	if !ok || activity.UserID != userID {
		return nil, nil
	}
	return &activity, nil
}

// ListByUser implements domain.ActivityRepository.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	all, err := r.AllByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	results := make([]domain.Activity, 0, limit)
	for _, a := range all {
		if cursor != nil && !persistence.LessCursor(a, *cursor) {
			continue
		}
		results = append(results, a)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, next, nil
}

// AllByUser implements domain.ActivityRepository.
func (r *Repository) AllByUser(ctx context.Context, userID string) ([]domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Update implements domain.ActivityRepository.
func (r *Repository) Update(ctx context.Context, activity domain.Activity) error {
	r.mu.Lock()
	existing, ok := r.activities[activity.ID]
	if !ok || existing.UserID != activity.UserID {
		r.mu.Unlock()
		return domain.ErrActivityNotFound
	}
	r.activities[activity.ID] = activity
	hook := r.hook
	r.mu.Unlock()

	observability.RecordActivityPersisted(events.TypeActivityUpdated, activity.UpdatedAt)
	if hook != nil {
		hook(ctx, events.TypeActivityUpdated, persistence.ChangedEvent(activity))
	}
	return nil
}

// Delete implements domain.ActivityRepository.
func (r *Repository) Delete(ctx context.Context, userID, activityID string) error {
	r.mu.Lock()
	existing, ok := r.activities[activityID]
	if !ok || existing.UserID != userID {
		r.mu.Unlock()
		return domain.ErrActivityNotFound
	}
	delete(r.activities, activityID)
	for k, id := range r.idempotency {
		if id == activityID {
			delete(r.idempotency, k)
		}
	}
	hook := r.hook
	r.mu.Unlock()

	deletedAt := time.Now()
	observability.RecordActivityPersisted(events.TypeActivityDeleted, deletedAt)
	if hook != nil {
		hook(ctx, events.TypeActivityDeleted, persistence.DeletedEvent(userID, activityID, deletedAt))
	}
	return nil
}

// GetPreferences implements domain.PreferencesRepository.
func (r *Repository) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefs, ok := r.prefs[userID]
	if !ok {
		return nil, nil
	}
	return &prefs, nil
}

// SavePreferences implements domain.PreferencesRepository.
func (r *Repository) SavePreferences(ctx context.Context, prefs domain.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[prefs.UserID] = prefs
	return nil
}
