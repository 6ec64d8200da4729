// Package events defines the activity event payloads exchanged between the API and the consumers.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityCreated = "activity.created"
	TypeActivityUpdated = "activity.updated"
	TypeActivityDeleted = "activity.deleted"
)

// TopicActivityEvents carries every activity event, keyed by user.
const TopicActivityEvents = "activity_events"

// ActivityChanged is emitted when an activity is created or updated.
type ActivityChanged struct {
	ActivityID        string         `json:"activity_id"`
	UserID            string         `json:"user_id"`
	ActivityType      string         `json:"activity_type"`
	DurationMin       int            `json:"duration_min"`
	CaloriesBurned    int            `json:"calories_burned"`
	StartedAt         time.Time      `json:"started_at"`
	AdditionalMetrics map[string]any `json:"additional_metrics,omitempty"`
	Version           string         `json:"version"`
}

// ActivityDeleted is emitted when an activity is removed.
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}
