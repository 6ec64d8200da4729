package persistence

import (
	"time"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
)

// ChangedEvent builds the payload recorded for created and updated activities.
func ChangedEvent(a domain.Activity) events.ActivityChanged {
	return events.ActivityChanged{
		ActivityID:        a.ID,
		UserID:            a.UserID,
		ActivityType:      string(a.Type),
		DurationMin:       a.DurationMin,
		CaloriesBurned:    a.CaloriesBurned,
		StartedAt:         a.StartedAt,
		AdditionalMetrics: a.AdditionalMetrics,
		Version:           a.Version,
	}
}

// DeletedEvent builds the payload recorded for removed activities.
func DeletedEvent(userID, activityID string, at time.Time) events.ActivityDeleted {
	return events.ActivityDeleted{ActivityID: activityID, UserID: userID, DeletedAt: at.UTC()}
}

// LessCursor reports whether a sorts after b in newest-first order, matching
// the keyset predicate (started_at, id) < (cursor.started_at, cursor.id).
func LessCursor(a domain.Activity, c domain.Cursor) bool {
	if a.StartedAt.Equal(c.StartedAt) {
		return a.ID < c.ID
	}
	return a.StartedAt.Before(c.StartedAt)
}
