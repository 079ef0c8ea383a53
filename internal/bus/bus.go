// Package bus carries run requests and run results between Kestrel
// processes: in-process channels for a single node, NATS across nodes.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// Metadata keys stamped on every message.
const (
	MetaTraceID     = "trace_id"
	MetaContentType = "content_type"
)

// New creates the event bus named by cfg.Type.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage wraps payload in an envelope. The publisher's trace ID rides
// along so a run requested over the API can be followed into the worker.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{MetaContentType: "application/json"},
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.TraceID().IsValid() {
		msg.Metadata[MetaTraceID] = sc.TraceID().String()
	}
	return msg
}

// deliver runs handler for one message. Handler errors and panics are
// logged; they never stop the subscription.
func deliver(ctx context.Context, handler domain.MessageHandler, msg *domain.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panicked",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"panic", fmt.Sprint(rec),
			)
		}
	}()

	if err := handler(ctx, msg); err != nil {
		slog.Error("event handler failed",
			"topic", msg.Topic,
			"message_id", msg.ID,
			"trace_id", msg.Metadata[MetaTraceID],
			"error", err,
		)
	}
}
