package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/events"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func testMessage(eventID int64, eventType, subject string) Message {
	payload, _ := json.Marshal(map[string]any{"activity_id": "act-1", "user_id": "user-1"})
	return Message{
		EventID:       eventID,
		UserID:        "user-1",
		AggregateType: "activity",
		AggregateID:   "act-1",
		EventType:     eventType,
		Topic:         events.TopicActivityEvents,
		SchemaSubject: subject,
		PartitionKey:  "user-1",
		Payload:       payload,
	}
}

func TestDeliverFramesMessagesAndCachesSchemas(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	msgs := []Message{
		testMessage(1, events.TypeActivityCreated, "activity_events-value"),
		testMessage(2, events.TypeActivityUpdated, "activity_events-value"),
		testMessage(3, events.TypeActivityDeleted, "activity_events-deleted-value"),
	}
	require.NoError(t, d.deliver(context.Background(), msgs))

	require.Len(t, producer.writes, 1)
	batch := producer.writes[0]
	require.Equal(t, events.TopicActivityEvents, batch.topic)
	require.Len(t, batch.messages, 3)
	require.Len(t, registry.calls, 2, "created and updated share a subject and schema")

	first := batch.messages[0]
	require.Equal(t, "user-1", string(first.Key))
	require.Equal(t, byte(0), first.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(first.Value[1:5]))
	require.JSONEq(t, string(msgs[0].Payload), string(first.Value[5:]))

	headers := map[string]string{}
	for _, h := range first.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeActivityCreated, headers["event_type"])
	require.Equal(t, "activity_events-value", headers["schema_subject"])
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := NewDispatcher(nil, producer, registry, time.Second, 10)

	err := d.deliver(context.Background(), []Message{testMessage(1, "activity.unknown", "x-value")})
	require.ErrorContains(t, err, "no schema metadata for event_type=activity.unknown")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesRegistryAndProducerErrors(t *testing.T) {
	registryErr := errors.New("registry down")
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: registryErr}, time.Second, 10)
	require.ErrorIs(t, d.deliver(context.Background(), []Message{testMessage(1, events.TypeActivityCreated, "s")}), registryErr)

	writeErr := errors.New("kafka write failed")
	d = NewDispatcher(nil, &stubProducer{err: writeErr}, &stubRegistry{id: 3}, time.Second, 10)
	require.ErrorIs(t, d.deliver(context.Background(), []Message{testMessage(1, events.TypeActivityCreated, "s")}), writeErr)
}

func TestBackoffDelay(t *testing.T) {
	base := time.Minute
	require.Equal(t, time.Minute, backoffDelay(base, 1))
	require.Equal(t, 2*time.Minute, backoffDelay(base, 2))
	require.Equal(t, 16*time.Minute, backoffDelay(base, 5))
	require.Equal(t, time.Hour, backoffDelay(base, 7))
	require.Equal(t, time.Hour, backoffDelay(base, 60))
	require.Equal(t, time.Minute, backoffDelay(base, 0))
}

func TestDLQManagerDecide(t *testing.T) {
	m := NewDLQManager(nil, 3, time.Second)
	require.Equal(t, actionRequeue, m.decide(dlqEntry{SchemaSubject: "s", RetryCount: 2}))
	require.Equal(t, actionQuarantine, m.decide(dlqEntry{SchemaSubject: "s", RetryCount: 3}))
	require.Equal(t, actionReject, m.decide(dlqEntry{RetryCount: 0}))

	defaults := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, defaults.maxRetries)
	require.Equal(t, time.Minute, defaults.baseDelay)
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/activity_events-value/versions/latest":
			http.NotFound(w, r)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/activity_events-value/versions":
			_ = json.NewDecoder(r.Body).Decode(&registered)
			_, _ = w.Write([]byte(`{"id": 7}`))
		default:
			http.Error(w, "unexpected", http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewSchemaRegistryClient(server.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "activity_events-value", activityChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, "JSON", registered["schemaType"])
	require.Equal(t, activityChangedSchema, registered["schema"])
}

func TestSchemaRegistryReturnsExistingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"id": 11, "version": 2}`))
	}))
	defer server.Close()

	id, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "activity_events-value", activityChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewSchemaRegistryClient(server.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "schema registry lookup error (500)")
}
