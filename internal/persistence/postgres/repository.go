// Package postgres stores activities, preferences, outbox events and
// recommendations in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/events"
	"example.com/fittrack/internal/observability"
	"example.com/fittrack/internal/persistence"
)

const activityColumns = `activity_id::text, user_id, activity_type, duration_min, calories_burned, started_at, additional_metrics, version, created_at, updated_at`

// Repository provides Postgres-backed persistence for activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// FindByIdempotency checks if an activity already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.Activity, error) {
	if idempotencyKey == "" {
		return nil, nil
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 AND idempotency_key=$2`
	return r.getOne(ctx, query, userID, idempotencyKey)
}

// Create persists the activity and records its outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, activity domain.Activity, idempotencyKey string) (err error) {
	metrics, err := json.Marshal(metricsOrEmpty(activity.AdditionalMetrics))
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertActivity = `INSERT INTO activities (activity_id, user_id, activity_type, duration_min, calories_burned, started_at, additional_metrics, idempotency_key, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	if _, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.UserID,
		string(activity.Type),
		activity.DurationMin,
		activity.CaloriesBurned,
		activity.StartedAt,
		metrics,
		nullIfEmpty(idempotencyKey),
		activity.Version,
		activity.CreatedAt,
		activity.UpdatedAt,
	); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, activity.UserID, activity.ID, events.TypeActivityCreated, activity.UpdatedAt, persistence.ChangedEvent(activity)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(events.TypeActivityCreated, activity.UpdatedAt)
	return nil
}

// Get retrieves an activity owned by the user. It returns nil, nil when absent.
func (r *Repository) Get(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 AND activity_id::text=$2`
	return r.getOne(ctx, query, userID, activityID)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &activity, nil
}

// ListByUser returns activities for a user ordered newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1`

	if cursor != nil {
		// Cursor ids are activity uuids; anything else cannot match a row.
		cursorID, err := uuid.Parse(cursor.ID)
		if err != nil {
			return []domain.Activity{}, nil, nil
		}
		query += ` AND (started_at, activity_id) < ($3, $4)`
		args = append(args, cursor.StartedAt, cursorID)
	}
	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $2`

	results, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// AllByUser returns every activity of the user, newest first.
func (r *Repository) AllByUser(ctx context.Context, userID string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id=$1 ORDER BY started_at DESC, activity_id DESC`
	return r.query(ctx, query, userID)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Update replaces the editable fields and records activity.updated.
func (r *Repository) Update(ctx context.Context, activity domain.Activity) (err error) {
	metrics, err := json.Marshal(metricsOrEmpty(activity.AdditionalMetrics))
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE activities
            SET activity_type=$3, duration_min=$4, calories_burned=$5, started_at=$6, additional_metrics=$7, updated_at=$8
          WHERE user_id=$1 AND activity_id::text=$2`,
		activity.UserID,
		activity.ID,
		string(activity.Type),
		activity.DurationMin,
		activity.CaloriesBurned,
		activity.StartedAt,
		metrics,
		activity.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrActivityNotFound
		return err
	}

	if err = insertOutbox(ctx, tx, activity.UserID, activity.ID, events.TypeActivityUpdated, activity.UpdatedAt, persistence.ChangedEvent(activity)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(events.TypeActivityUpdated, activity.UpdatedAt)
	return nil
}

// Delete removes the activity and records activity.deleted.
func (r *Repository) Delete(ctx context.Context, userID, activityID string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM activities WHERE user_id=$1 AND activity_id::text=$2`, userID, activityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrActivityNotFound
		return err
	}

	deletedAt := r.now().UTC()
	if err = insertOutbox(ctx, tx, userID, activityID, events.TypeActivityDeleted, deletedAt, persistence.DeletedEvent(userID, activityID, deletedAt)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(events.TypeActivityDeleted, deletedAt)
	return nil
}

// GetPreferences returns stored preferences or nil, nil.
func (r *Repository) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	row := r.pool.QueryRow(ctx, `SELECT user_id, theme, weekly_calorie_goal, updated_at FROM user_preferences WHERE user_id=$1`, userID)

	var prefs domain.Preferences
	var theme string
	if err := row.Scan(&prefs.UserID, &theme, &prefs.WeeklyCalorieGoal, &prefs.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	prefs.Theme = domain.Theme(theme)
	return &prefs, nil
}

// SavePreferences upserts the user's preferences.
func (r *Repository) SavePreferences(ctx context.Context, prefs domain.Preferences) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, theme, weekly_calorie_goal, updated_at)
         VALUES ($1,$2,$3,$4)
         ON CONFLICT (user_id) DO UPDATE
            SET theme = EXCLUDED.theme,
                weekly_calorie_goal = EXCLUDED.weekly_calorie_goal,
                updated_at = EXCLUDED.updated_at`,
		prefs.UserID, string(prefs.Theme), prefs.WeeklyCalorieGoal, prefs.UpdatedAt,
	)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, activityID, eventType string, at time.Time, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", activityID, eventType, at.UnixNano())

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		"activity",
		activityID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (domain.Activity, error) {
	var activity domain.Activity
	var activityType string
	var metrics []byte
	if err := row.Scan(
		&activity.ID,
		&activity.UserID,
		&activityType,
		&activity.DurationMin,
		&activity.CaloriesBurned,
		&activity.StartedAt,
		&metrics,
		&activity.Version,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	activity.Type = domain.ActivityType(activityType)
	activity.AdditionalMetrics = map[string]any{}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &activity.AdditionalMetrics); err != nil {
			return domain.Activity{}, fmt.Errorf("decode additional_metrics: %w", err)
		}
	}
	activity.StartedAt = activity.StartedAt.UTC()
	activity.CreatedAt = activity.CreatedAt.UTC()
	activity.UpdatedAt = activity.UpdatedAt.UTC()
	return activity, nil
}

func metricsOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityCreated: {Topic: events.TopicActivityEvents, SchemaSubject: events.TopicActivityEvents + "-value"},
	events.TypeActivityUpdated: {Topic: events.TopicActivityEvents, SchemaSubject: events.TopicActivityEvents + "-value"},
	events.TypeActivityDeleted: {Topic: events.TopicActivityEvents, SchemaSubject: events.TopicActivityEvents + "-deleted-value"},
}
