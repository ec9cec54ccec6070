// Package pubsub provides a named publish/subscribe bus.
//
// A message published to a topic is delivered to each subscriber of the topic on each node,
// including the subscribers of the publisher node. Each Message carries the publisher node ID,
// so a handler can ignore its own messages. Messages of one publisher are delivered in the publication order.
//
// The etcd Bus is based on watches of short-lived keys, the MemoryBroker is an in-process implementation for tests.
package pubsub

import (
	"context"

	"github.com/keboola/go-cluster-filesync/internal/pkg/encoding/json"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Bus delivers messages to all nodes, delivery is best effort.
type Bus interface {
	// NodeID returns identity of the local node, it is the Message.Publisher of all published messages.
	NodeID() string
	// Publish sends the value to all current subscribers of the topic, it doesn't wait for the delivery.
	Publish(ctx context.Context, topic string, value any) error
	// Subscribe registers the handler, the handler is not called concurrently within one subscription.
	// Messages published after Subscribe returns are delivered.
	Subscribe(topic string, handler Handler) (Subscription, error)
}

type Subscription interface {
	Unsubscribe()
}

type Handler func(ctx context.Context, msg Message)

// Message is one received message, the Payload is a JSON encoded value.
type Message struct {
	Topic     string          `json:"-"`
	Publisher string          `json:"publisher" validate:"required"`
	ID        string          `json:"id" validate:"required"`
	Payload   json.RawMessage `json:"payload"`
}

// IsFrom returns true if the message has been published by the node.
func (m Message) IsFrom(nodeID string) bool {
	return m.Publisher == nodeID
}

// Decode payload to the target value.
func (m Message) Decode(target any) error {
	if err := json.Decode(m.Payload, target); err != nil {
		return errors.PrefixErrorf(err, `cannot decode message "%s" from "%s"`, m.ID, m.Publisher)
	}
	return nil
}

func newMessage(topic, publisher, id string, value any) (Message, error) {
	payload, err := json.Encode(value, false)
	if err != nil {
		return Message{}, errors.PrefixErrorf(err, `cannot encode message to the topic "%s"`, topic)
	}
	return Message{Topic: topic, Publisher: publisher, ID: id, Payload: payload}, nil
}

func validateTopic(topic string) error {
	if topic == "" {
		return errors.New("topic name cannot be empty")
	}
	return nil
}
