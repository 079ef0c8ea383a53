package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var received atomic.Bool
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
			receivedMsg = msg
			received.Store(true)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		err = bus.Publish(ctx, domain.TopicRunRequested, []byte("hello"))
		if err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		// Wait for message
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			// Success
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}

		if !received.Load() {
			t.Error("message not received")
		}

		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicRunRequested {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicRunRequested, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" {
			t.Error("expected message id")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var completed atomic.Int32
		var opened atomic.Int32

		bus.Subscribe(ctx, domain.TopicRunCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed.Add(1)
			return nil
		})

		bus.Subscribe(ctx, domain.TopicAlertOpened, func(ctx context.Context, msg *domain.Message) error {
			opened.Add(1)
			return nil
		})

		bus.Publish(ctx, domain.TopicRunCompleted, []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if completed.Load() != 1 {
			t.Errorf("run.completed should receive 1 message, got %d", completed.Load())
		}
		if opened.Load() != 0 {
			t.Errorf("alert.opened should receive 0 messages, got %d", opened.Load())
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		// Should still be 1 after unsubscribe
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		remaining := len(bus.topics["unsub.topic"])
		bus.mu.RUnlock()
		if remaining != 0 {
			t.Errorf("expected subscription to be removed, %d left", remaining)
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		time.Sleep(50 * time.Millisecond)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	// Operations should fail after close
	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}

	if _, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("expected subscribe error after close")
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}

	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 50,
		}

		bus, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		_, ok := bus.(*ChannelBus)
		if !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type: "kafka",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestDecodeMessage(t *testing.T) {
	t.Run("Envelope", func(t *testing.T) {
		data, _ := json.Marshal(newMessage(context.Background(), domain.TopicAlertOpened, []byte(`{"alertId":"a-1"}`)))

		msg, err := decodeMessage(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if msg.Topic != domain.TopicAlertOpened {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicAlertOpened, msg.Topic)
		}
		if string(msg.Payload) != `{"alertId":"a-1"}` {
			t.Errorf("unexpected payload: %s", msg.Payload)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		if _, err := decodeMessage([]byte(`{"topic":"x"}`)); err == nil {
			t.Error("expected error for envelope without id")
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := decodeMessage([]byte("not json")); err == nil {
			t.Error("expected error for invalid json")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	// Publish many messages
	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	// Wait for all messages
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

func TestChannelBusDrops(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	bus.Subscribe(ctx, domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
		started <- struct{}{}
		<-release
		return nil
	})

	// first message occupies the handler, second fills the queue
	bus.Publish(ctx, domain.TopicRunRequested, []byte("1"))
	<-started
	bus.Publish(ctx, domain.TopicRunRequested, []byte("2"))
	bus.Publish(ctx, domain.TopicRunRequested, []byte("3"))
	close(release)

	if got := bus.Dropped(domain.TopicRunRequested); got != 1 {
		t.Errorf("expected 1 dropped message, got %d", got)
	}
	if got := bus.Dropped(domain.TopicAlertOpened); got != 0 {
		t.Errorf("expected no drops on an idle topic, got %d", got)
	}
}

func TestChannelBusHandlerPanic(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()
	done := make(chan string, 2)

	bus.Subscribe(ctx, "panic.topic", func(ctx context.Context, msg *domain.Message) error {
		if string(msg.Payload) == "bad" {
			panic("handler bug")
		}
		done <- string(msg.Payload)
		return nil
	})

	bus.Publish(ctx, "panic.topic", []byte("bad"))
	bus.Publish(ctx, "panic.topic", []byte("good"))

	select {
	case got := <-done:
		if got != "good" {
			t.Errorf("unexpected payload %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscription died after a handler panic")
	}
}

func TestMessageTraceMetadata(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	msg := newMessage(ctx, domain.TopicRunRequested, []byte("{}"))
	if got := msg.Metadata[MetaTraceID]; got != traceID.String() {
		t.Errorf("expected trace id %s, got %q", traceID, got)
	}
	if msg.Metadata[MetaContentType] != "application/json" {
		t.Errorf("unexpected content type %q", msg.Metadata[MetaContentType])
	}

	plain := newMessage(context.Background(), domain.TopicRunRequested, nil)
	if _, ok := plain.Metadata[MetaTraceID]; ok {
		t.Error("expected no trace id without a span")
	}
}
