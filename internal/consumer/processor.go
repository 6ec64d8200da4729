// Package consumer reads activity events from Kafka and feeds them to handlers.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrMalformedPayload marks handler failures that a redelivery cannot fix.
// The processor commits such messages like decode failures.
var ErrMalformedPayload = errors.New("malformed event payload")

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           string
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchBackoff sets the pause after a failed fetch or handler call.
func WithFetchBackoff(d time.Duration) Option {
	return func(p *Processor) { p.fetchBackoff = d }
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       *slog.Logger
	fetchBackoff time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       slog.Default().With("component", "consumer"),
		fetchBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("fetch error", "error", err)
			if !sleep(ctx, p.fetchBackoff) {
				return ctx.Err()
			}
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Error("decode error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			recordDecodeError(msg.Topic)
			p.commitPoisonPill(ctx, msg)
			continue
		}

		if err := p.handle(ctx, msg, event); err != nil {
			return err
		}
	}
}

// handle retries the handler on the same message until it succeeds, reports a
// malformed payload, or the context ends. The next message is not fetched
// before then, so a later commit can never skip past a failed one.
func (p *Processor) handle(ctx context.Context, msg kafka.Message, event Message) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handleErr := p.handler.Handle(ctx, event)
		if handleErr == nil {
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Error("commit error", "error", commitErr)
			} else {
				recordProcessed(event)
			}
			return nil
		}

		if errors.Is(handleErr, ErrMalformedPayload) {
			p.logger.Error("dropping malformed event", "event_type", event.EventType, "offset", event.Offset, "error", handleErr)
			recordDecodeError(msg.Topic)
			p.commitPoisonPill(ctx, msg)
			return nil
		}

		p.logger.Error("handler error, retrying", "event_type", event.EventType, "key", event.Key, "offset", event.Offset, "error", handleErr)
		recordHandlerError(event)
		if !sleep(ctx, p.fetchBackoff) {
			return ctx.Err()
		}
	}
}

// commitPoisonPill commits a message that can never be handled so the group moves past it.
func (p *Processor) commitPoisonPill(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Error("commit error after decode failure", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte: %d", msg.Value[0])
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	schemaSubject, _ := headerValue(msg, "schema_subject")

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		Key:           string(msg.Key),
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
