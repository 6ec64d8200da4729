package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/fittrack/internal/recommendation"
)

// RecommendationStore keeps recommendations in memory, one per activity.
type RecommendationStore struct {
	mu   sync.RWMutex
	recs map[string]recommendation.Recommendation
}

// NewRecommendationStore constructs an empty store.
func NewRecommendationStore() *RecommendationStore {
	return &RecommendationStore{recs: make(map[string]recommendation.Recommendation)}
}

// Save implements recommendation.Store.
func (s *RecommendationStore) Save(ctx context.Context, rec recommendation.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ActivityID] = cloneRecommendation(rec)
	return nil
}

// ListByUser implements recommendation.Store.
func (s *RecommendationStore) ListByUser(ctx context.Context, userID string) ([]recommendation.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]recommendation.Recommendation, 0)
	for _, rec := range s.recs {
		if rec.UserID == userID {
			out = append(out, cloneRecommendation(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetByActivity implements recommendation.Store.
func (s *RecommendationStore) GetByActivity(ctx context.Context, userID, activityID string) (*recommendation.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[activityID]
	if !ok || rec.UserID != userID {
		return nil, nil
	}
	rec = cloneRecommendation(rec)
	return &rec, nil
}

// DeleteByActivity implements recommendation.Store.
func (s *RecommendationStore) DeleteByActivity(ctx context.Context, userID, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.recs[activityID]; ok && rec.UserID == userID {
		delete(s.recs, activityID)
	}
	return nil
}

func cloneRecommendation(rec recommendation.Recommendation) recommendation.Recommendation {
	rec.Improvements = append([]string(nil), rec.Improvements...)
	rec.Suggestions = append([]string(nil), rec.Suggestions...)
	rec.Safety = append([]string(nil), rec.Safety...)
	return rec
}
