package pubsub

import (
	"context"
	"sync"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/queue"
)

// MemoryBroker connects MemoryBus instances of a simulated cluster.
// Published messages are delivered in one global order.
type MemoryBroker struct {
	lock *sync.Mutex
	subs map[string]map[*memorySubscription]bool
}

// MemoryBus is the Bus of one node connected to a MemoryBroker.
type MemoryBus struct {
	broker *MemoryBroker
	nodeID string
	ctx    context.Context
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	queue  *queue.Unbounded[Message]
	cancel context.CancelFunc
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{lock: &sync.Mutex{}, subs: make(map[string]map[*memorySubscription]bool)}
}

// NewBus creates a Bus of the node, subscriptions end with the ctx.
func (b *MemoryBroker) NewBus(ctx context.Context, nodeID string) *MemoryBus {
	return &MemoryBus{broker: b, nodeID: nodeID, ctx: ctx}
}

func (v *MemoryBus) NodeID() string {
	return v.nodeID
}

func (v *MemoryBus) Publish(ctx context.Context, topic string, value any) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newMessage(topic, v.nodeID, idgenerator.MessageID(), value)
	if err != nil {
		return err
	}

	v.broker.lock.Lock()
	defer v.broker.lock.Unlock()
	for sub := range v.broker.subs[topic] {
		sub.queue.Push(msg)
	}
	return nil
}

func (v *MemoryBus) Subscribe(topic string, handler Handler) (Subscription, error) {
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	if v.ctx.Err() != nil {
		return nil, errors.New("the bus has been closed")
	}

	ctx, cancel := context.WithCancel(v.ctx)
	sub := &memorySubscription{broker: v.broker, topic: topic, queue: queue.New[Message](ctx), cancel: cancel}

	v.broker.lock.Lock()
	if v.broker.subs[topic] == nil {
		v.broker.subs[topic] = make(map[*memorySubscription]bool)
	}
	v.broker.subs[topic][sub] = true
	v.broker.lock.Unlock()

	go func() {
		for msg := range sub.queue.C() {
			if ctx.Err() != nil {
				return
			}
			handler(ctx, msg)
		}
	}()

	go func() {
		<-ctx.Done()
		sub.remove()
	}()

	return sub, nil
}

func (s *memorySubscription) Unsubscribe() {
	s.cancel()
}

func (s *memorySubscription) remove() {
	s.broker.lock.Lock()
	defer s.broker.lock.Unlock()
	delete(s.broker.subs[s.topic], s)
}
