package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fittrack/internal/recommendation"
)

const recommendationColumns = `recommendation_id::text, activity_id, user_id, activity_type, analysis, improvements, suggestions, safety, generator, created_at`

// RecommendationStore persists generated advice, one row per activity.
type RecommendationStore struct {
	pool *pgxpool.Pool
}

// NewRecommendationStore constructs a RecommendationStore.
func NewRecommendationStore(pool *pgxpool.Pool) *RecommendationStore {
	return &RecommendationStore{pool: pool}
}

// Save upserts the recommendation keyed by activity.
func (s *RecommendationStore) Save(ctx context.Context, rec recommendation.Recommendation) error {
	improvements, err := json.Marshal(nonNil(rec.Improvements))
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(nonNil(rec.Suggestions))
	if err != nil {
		return err
	}
	safety, err := json.Marshal(nonNil(rec.Safety))
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO recommendations (recommendation_id, activity_id, user_id, activity_type, analysis, improvements, suggestions, safety, generator, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (activity_id) DO UPDATE
            SET recommendation_id = EXCLUDED.recommendation_id,
                activity_type = EXCLUDED.activity_type,
                analysis = EXCLUDED.analysis,
                improvements = EXCLUDED.improvements,
                suggestions = EXCLUDED.suggestions,
                safety = EXCLUDED.safety,
                generator = EXCLUDED.generator,
                created_at = EXCLUDED.created_at
          WHERE recommendations.user_id = EXCLUDED.user_id`,
		rec.ID, rec.ActivityID, rec.UserID, rec.ActivityType, rec.Analysis,
		improvements, suggestions, safety, rec.Generator, rec.CreatedAt,
	)
	return err
}

// ListByUser returns the user's recommendations, newest first.
func (s *RecommendationStore) ListByUser(ctx context.Context, userID string) ([]recommendation.Recommendation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE user_id=$1 ORDER BY created_at DESC, recommendation_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]recommendation.Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByActivity returns the advice for an activity or nil, nil.
func (s *RecommendationStore) GetByActivity(ctx context.Context, userID, activityID string) (*recommendation.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE user_id=$1 AND activity_id=$2`, userID, activityID)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteByActivity removes the advice for an activity.
func (s *RecommendationStore) DeleteByActivity(ctx context.Context, userID, activityID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM recommendations WHERE user_id=$1 AND activity_id=$2`, userID, activityID)
	return err
}

func scanRecommendation(row rowScanner) (recommendation.Recommendation, error) {
	var rec recommendation.Recommendation
	var improvements, suggestions, safety []byte
	if err := row.Scan(
		&rec.ID,
		&rec.ActivityID,
		&rec.UserID,
		&rec.ActivityType,
		&rec.Analysis,
		&improvements,
		&suggestions,
		&safety,
		&rec.Generator,
		&rec.CreatedAt,
	); err != nil {
		return recommendation.Recommendation{}, err
	}
	for _, field := range []struct {
		name string
		raw  []byte
		dst  *[]string
	}{
		{"improvements", improvements, &rec.Improvements},
		{"suggestions", suggestions, &rec.Suggestions},
		{"safety", safety, &rec.Safety},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return recommendation.Recommendation{}, fmt.Errorf("decode %s: %w", field.name, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
