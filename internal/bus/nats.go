package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// NATSBus implements EventBus over NATS core subjects. Topic names are
// used as subjects; every message is a JSON domain.Message envelope.
type NATSBus struct {
	conn  *nats.Conn
	queue string

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl, retrying up to NATSMaxReconnects
// times before giving up.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
				if errors.Is(err, nats.ErrSlowConsumer) {
					pending, _, _ := sub.Pending()
					attrs = append(attrs, "pending", pending)
				}
			}
			slog.Error("NATS error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for i := 1; i <= attempts; i++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed", "attempt", i, "max_attempts", attempts, "error", err)
		if i < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, err)
	}

	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueue,
	)

	return &NATSBus{
		conn:  conn,
		queue: cfg.NATSQueue,
		subs:  make(map[*nats.Subscription]struct{}),
	}, nil
}

// Publish sends the envelope on subject topic. The message ID also goes
// out as the Nats-Msg-Id header so a JetStream stream on these subjects
// de-duplicates retried publishes.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := newMessage(ctx, topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	out := nats.NewMsg(topic)
	out.Data = data
	out.Header.Set(nats.MsgIdHdr, msg.ID)
	if id := msg.Metadata[MetaTraceID]; id != "" {
		out.Header.Set("Kestrel-Trace-Id", id)
	}
	if err := b.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for subject topic. With a queue group
// configured, each run request reaches exactly one worker in the group.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	cb := func(m *nats.Msg) {
		msg, err := decodeMessage(m.Data)
		if err != nil {
			slog.Error("failed to decode NATS message", "subject", m.Subject, "error", err)
			return
		}
		deliver(ctx, handler, msg)
	}

	var sub *nats.Subscription
	var err error
	if b.queue != "" {
		sub, err = b.conn.QueueSubscribe(topic, b.queue, cb)
	} else {
		sub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return &natsSubscription{topic: topic, sub: sub, bus: b}, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection so handlers already running (a worker in the
// middle of a run) finish before the connection goes away.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*nats.Subscription]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.sub)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}

// decodeMessage unwraps a JSON envelope, rejecting envelopes without an id.
func decodeMessage(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message envelope has no id")
	}
	return &msg, nil
}
