package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// ChannelBus implements EventBus with Go channels for a single process.
// Each subscriber owns a buffered queue; a full queue drops the message
// for that subscriber and counts it.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	topics     map[string][]*channelSubscription
	closed     bool

	dropped sync.Map // topic -> *atomic.Int64
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	queue   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	bus     *ChannelBus
}

// NewChannelBus creates a channel bus whose subscribers buffer bufferSize
// messages (1000 when bufferSize <= 0).
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     make(map[string][]*channelSubscription),
	}
}

// Publish fans the message out to every subscriber of topic without blocking.
func (b *ChannelBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := newMessage(ctx, topic, payload)
	for _, sub := range b.topics[topic] {
		select {
		case sub.queue <- msg:
		default:
			n := b.dropCounter(topic).Add(1)
			slog.Warn("event dropped, subscriber queue full",
				"topic", topic,
				"message_id", msg.ID,
				"dropped_total", n,
			)
		}
	}
	return nil
}

// Subscribe starts a goroutine that feeds topic messages to handler until
// the subscription, ctx or the bus ends.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		queue:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
		bus:     b,
	}
	b.topics[topic] = append(b.topics[topic], sub)

	go sub.loop()
	return sub, nil
}

func (s *channelSubscription) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			deliver(s.ctx, s.handler, msg)
		}
	}
}

// Dropped reports how many messages on topic were lost to full queues.
func (b *ChannelBus) Dropped(topic string) int64 {
	if v, ok := b.dropped.Load(topic); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

func (b *ChannelBus) dropCounter(topic string) *atomic.Int64 {
	v, _ := b.dropped.LoadOrStore(topic, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription. Queued messages are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.cancel()
			close(sub.queue)
		}
	}
	b.topics = nil
	return nil
}

// Unsubscribe stops delivery to this subscription.
func (s *channelSubscription) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	if !b.closed {
		subs := b.topics[s.topic]
		for i, other := range subs {
			if other.id == s.id {
				b.topics[s.topic] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
