package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels in-process or NATS across processes.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `envconfig:"TYPE" validate:"oneof=channel nats"`

	// Channel settings
	ChannelBufferSize int `envconfig:"CHANNEL_BUFFER"`

	// NATS settings
	NATSUrl           string `envconfig:"NATS_URL"`
	NATSToken         string `envconfig:"NATS_TOKEN"`
	NATSMaxReconnects int    `envconfig:"NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `envconfig:"NATS_RECONNECT_WAIT"` // seconds

	// NATSQueue, when set, makes subscribers on one topic share messages
	// as a queue group instead of each receiving a copy.
	NATSQueue string `envconfig:"NATS_QUEUE"`
}

// Topic names used by the engine.
const (
	TopicRunRequested = "kestrel.run.requested"
	TopicRunCompleted = "kestrel.run.completed"
	TopicAlertOpened  = "kestrel.alert.opened"
)
