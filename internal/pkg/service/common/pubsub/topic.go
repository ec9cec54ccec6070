package pubsub

import (
	"context"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
)

// Topic is a typed view of one topic of a Bus.
type Topic[T any] struct {
	bus    Bus
	name   string
	logger log.Logger
}

// TypedMessage is a received message with the decoded value.
type TypedMessage[T any] struct {
	Publisher string
	ID        string
	Value     T
}

func NewTopic[T any](bus Bus, name string, logger log.Logger) *Topic[T] {
	return &Topic[T]{bus: bus, name: name, logger: logger.WithComponent("pubsub.topic")}
}

func (t *Topic[T]) Name() string {
	return t.name
}

func (t *Topic[T]) NodeID() string {
	return t.bus.NodeID()
}

func (t *Topic[T]) Publish(ctx context.Context, value T) error {
	return t.bus.Publish(ctx, t.name, value)
}

// Subscribe registers the handler, a message which cannot be decoded is logged and skipped.
func (t *Topic[T]) Subscribe(handler func(ctx context.Context, msg TypedMessage[T])) (Subscription, error) {
	return t.bus.Subscribe(t.name, func(ctx context.Context, msg Message) {
		var value T
		if err := msg.Decode(&value); err != nil {
			t.logger.Warnf(ctx, `topic "%s": %s`, t.name, err)
			return
		}
		handler(ctx, TypedMessage[T]{Publisher: msg.Publisher, ID: msg.ID, Value: value})
	})
}

// IsFrom returns true if the message has been published by the node.
func (m TypedMessage[T]) IsFrom(nodeID string) bool {
	return m.Publisher == nodeID
}
