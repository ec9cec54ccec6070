package pubsub

import (
	"context"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const (
	keyPrefix        = "runtime/pubsub"
	subscribeTimeout = 30 * time.Second
)

// EtcdBus publishes each message as a key with the session lease, the key is deleted immediately.
// Subscribers watch PUT events of the topic prefix, so messages are ordered by the etcd revision.
type EtcdBus struct {
	nodeID string
	logger log.Logger
	client *etcd.Client
	prefix etcdop.PrefixT[Message]
	ctx    context.Context
	wg     *sync.WaitGroup

	sessionLock *sync.RWMutex
	session     *concurrency.Session
}

type etcdSubscription struct {
	cancel context.CancelFunc
}

type dependencies interface {
	Logger() log.Logger
	Process() *servicectx.Process
	EtcdClient() *etcd.Client
}

func NewEtcdBus(ctx context.Context, nodeID string, cfg Config, d dependencies) (*EtcdBus, error) {
	if nodeID == "" {
		return nil, errors.New("node ID cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &EtcdBus{
		nodeID:      nodeID,
		logger:      d.Logger().WithComponent("pubsub").With(attribute.String("node", nodeID)),
		client:      d.EtcdClient(),
		prefix:      etcdop.NewTypedPrefix[Message](keyPrefix, serde.NewJSON(serde.StructValidation())),
		wg:          &sync.WaitGroup{},
		sessionLock: &sync.RWMutex{},
	}

	var cancel context.CancelFunc
	b.ctx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.Process().OnShutdown(func(ctx context.Context) {
		b.logger.Info(ctx, "received shutdown request")
		cancel()
		b.wg.Wait()
		b.logger.Info(ctx, "shutdown done")
	})

	errCh := etcdop.ResistantSession(b.ctx, b.wg, b.logger, b.client, cfg.TTLSeconds, func(session *concurrency.Session) error {
		b.sessionLock.Lock()
		b.session = session
		b.sessionLock.Unlock()
		return nil
	})
	if err := <-errCh; err != nil {
		cancel()
		return nil, err
	}

	return b, nil
}

func (b *EtcdBus) NodeID() string {
	return b.nodeID
}

func (b *EtcdBus) Publish(ctx context.Context, topic string, value any) error {
	if err := validateTopic(topic); err != nil {
		return err
	}

	msg, err := newMessage(topic, b.nodeID, idgenerator.MessageID(), value)
	if err != nil {
		return err
	}

	b.sessionLock.RLock()
	session := b.session
	b.sessionLock.RUnlock()
	if session == nil {
		return errors.New("etcd session is not available")
	}

	// Subscribers receive the PUT event, the DELETE event is ignored.
	// If the delete fails, the key expires with the session lease.
	key := b.prefix.Add(topic).Key(msg.ID)
	if err := key.Put(ctx, b.client, msg, etcd.WithLease(session.Lease())); err != nil {
		return errors.PrefixErrorf(err, `cannot publish message to the topic "%s"`, topic)
	}
	if _, err := key.Delete(ctx, b.client); err != nil {
		b.logger.Warnf(ctx, `cannot delete published message "%s": %s`, key.Key(), err)
	}
	return nil
}

func (b *EtcdBus) Subscribe(topic string, handler Handler) (Subscription, error) {
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	if b.ctx.Err() != nil {
		return nil, errors.New("the bus has been closed")
	}

	// Get the current revision, the watch starts after it, so no message published after Subscribe is missed
	prefix := b.prefix.Add(topic)
	getCtx, getCancel := context.WithTimeout(b.ctx, subscribeTimeout)
	defer getCancel()
	resp, err := b.client.Get(getCtx, prefix.Prefix(), etcd.WithPrefix(), etcd.WithCountOnly())
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot subscribe to the topic "%s"`, topic)
	}

	ctx, cancel := context.WithCancel(b.ctx)
	stream := prefix.Watch(ctx, b.client, resp.Header.Revision+1)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for resp := range stream {
			if resp.Err != nil {
				b.logger.Warnf(ctx, `topic "%s": %s`, topic, resp.Err)
			}
			for _, event := range resp.Events {
				if event.Type != etcdop.CreateEvent {
					continue
				}
				msg := event.Value
				msg.Topic = topic
				handler(ctx, msg)
			}
		}
	}()

	b.logger.Debugf(b.ctx, `subscribed to the topic "%s"`, topic)
	return &etcdSubscription{cancel: cancel}, nil
}

// Unsubscribe stops the delivery, a running handler is not interrupted.
func (s *etcdSubscription) Unsubscribe() {
	s.cancel()
}
