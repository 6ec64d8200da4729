package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/recommendation"
)

func TestRecommendationStoreUpsertsByActivity(t *testing.T) {
	ctx := context.Background()
	store := NewRecommendationStore()
	now := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, recommendation.Recommendation{ID: "r-1", ActivityID: "a-1", UserID: "user-1", Analysis: "first", CreatedAt: now}))
	require.NoError(t, store.Save(ctx, recommendation.Recommendation{ID: "r-2", ActivityID: "a-1", UserID: "user-1", Analysis: "second", CreatedAt: now.Add(time.Minute)}))
	require.NoError(t, store.Save(ctx, recommendation.Recommendation{ID: "r-3", ActivityID: "a-2", UserID: "user-1", CreatedAt: now.Add(time.Hour)}))

	rec, err := store.GetByActivity(ctx, "user-1", "a-1")
	require.NoError(t, err)
	require.Equal(t, "second", rec.Analysis)

	list, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "r-3", list[0].ID)

	missing, err := store.GetByActivity(ctx, "user-2", "a-1")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, store.DeleteByActivity(ctx, "user-2", "a-1"))
	rec, err = store.GetByActivity(ctx, "user-1", "a-1")
	require.NoError(t, err)
	require.NotNil(t, rec, "other users cannot delete advice")

	require.NoError(t, store.DeleteByActivity(ctx, "user-1", "a-1"))
	rec, err = store.GetByActivity(ctx, "user-1", "a-1")
	require.NoError(t, err)
	require.Nil(t, rec)
}
