//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fittrack/internal/events"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, userID, uuid.NewString(), events.TypeActivityCreated))

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 42}, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicActivityEvents, producer.writes[0].topic)
	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published events are not redelivered")
}

func TestDispatcherRoutesFailuresToDLQAndManagerRequeues(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	require.NotZero(t, seedOutbox(t, ctx, pool, userID, uuid.NewString(), events.TypeActivityDeleted))

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivityEvents))
	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.TopicActivityEvents)), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE user_id = $1`, userID).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	manager := NewDLQManager(pool, 3, time.Minute)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND user_id = $1`, userID).Scan(&pending))
	require.Equal(t, 1, pending, "requeued entry waits for the next dispatch")

	producer.err = nil
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES ('user-1', 1, $1, $2, '{}'::jsonb, 'boom', 'activity', 'act-1', 'activity_events-value', 'user-1', 3, NOW())`,
		events.TypeActivityCreated, events.TopicActivityEvents,
	)
	require.NoError(t, err)

	before := testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues(events.TopicActivityEvents, events.TypeActivityCreated))
	processed, err := NewDLQManager(pool, 3, time.Minute).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.InDelta(t, before+1, testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues(events.TopicActivityEvents, events.TypeActivityCreated)), 0.0001)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT quarantine_reason FROM outbox_dlq WHERE aggregate_id = 'act-1'`).Scan(&reason))
	require.Equal(t, "retry limit reached", reason)
	require.Zero(t, testutil.ToFloat64(dlqBacklogGauge))
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("fitness"),
		postgrescontainer.WithUsername("fittrack"),
		postgrescontainer.WithPassword("fittrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runMigrations(t, ctx, pool)
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, aggregateID, eventType string) int64 {
	t.Helper()

	payload, err := json.Marshal(map[string]any{"activity_id": aggregateID, "user_id": userID})
	require.NoError(t, err)

	var eventID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         RETURNING event_id`,
		userID, "activity", aggregateID, eventType, events.TopicActivityEvents, "activity_events-value", userID, payload,
	).Scan(&eventID)
	require.NoError(t, err)
	return eventID
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../db/postgres/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")
	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
