package distribution

import (
	"context"
	"sync"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/etcdop/serde"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// EtcdBackend stores each member in a key with a lease of the node session.
// If the node stops responding, the lease expires and the member disappears.
type EtcdBackend struct {
	logger     log.Logger
	client     *etcd.Client
	ttlSeconds int
	prefix     etcdop.PrefixT[Member]

	lock    *sync.Mutex
	member  *Member
	session *concurrency.Session
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
}

func NewEtcdBackend(logger log.Logger, client *etcd.Client, group string, ttlSeconds int) *EtcdBackend {
	return &EtcdBackend{
		logger:     logger.WithComponent("etcd"),
		client:     client,
		ttlSeconds: ttlSeconds,
		prefix:     etcdop.NewTypedPrefix[Member]("runtime/distribution/group/"+group+"/nodes", serde.NewJSON(serde.StructValidation())),
		lock:       &sync.Mutex{},
		wg:         &sync.WaitGroup{},
	}
}

func (b *EtcdBackend) Register(ctx context.Context, member Member) error {
	b.lock.Lock()
	if b.cancel != nil {
		b.lock.Unlock()
		return errors.Errorf(`the node "%s" is already registered`, member.ID)
	}
	b.member = &member
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.lock.Unlock()

	// The key is re-created with each new session
	errCh := etcdop.ResistantSession(sessionCtx, b.wg, b.logger, b.client, b.ttlSeconds, func(session *concurrency.Session) error {
		b.lock.Lock()
		b.session = session
		current := *b.member
		b.lock.Unlock()

		putCtx, putCancel := context.WithTimeout(sessionCtx, time.Duration(b.ttlSeconds)*time.Second)
		defer putCancel()
		return b.prefix.Key(current.ID).Put(putCtx, b.client, current, etcd.WithLease(session.Lease()))
	})

	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			b.wg.Wait()
			return errors.PrefixErrorf(err, `cannot register the node "%s"`, member.ID)
		}
		return nil
	case <-ctx.Done():
		cancel()
		b.wg.Wait()
		return ctx.Err()
	}
}

func (b *EtcdBackend) Update(ctx context.Context, member Member) error {
	b.lock.Lock()
	b.member = &member
	session := b.session
	b.lock.Unlock()

	if session == nil {
		return errors.Errorf(`the node "%s" is not registered`, member.ID)
	}
	return b.prefix.Key(member.ID).Put(ctx, b.client, member, etcd.WithLease(session.Lease()))
}

func (b *EtcdBackend) Unregister(ctx context.Context, member Member) error {
	b.lock.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.session = nil
	b.lock.Unlock()

	_, err := b.prefix.Key(member.ID).Delete(ctx, b.client)

	// Close the session, it revokes the lease
	if cancel != nil {
		cancel()
		b.wg.Wait()
	}

	return err
}

func (b *EtcdBackend) Watch(ctx context.Context) <-chan BackendUpdate {
	out := make(chan BackendUpdate)
	go func() {
		defer close(out)
		for resp := range b.prefix.GetAllAndWatch(ctx, b.client) {
			if resp.Err != nil {
				b.logger.Errorf(ctx, "watch error: %s", resp.Err)
				if len(resp.Events) == 0 {
					continue
				}
			}

			update := BackendUpdate{Reset: resp.Restarted}
			for _, event := range resp.Events {
				switch event.Type {
				case etcdop.CreateEvent, etcdop.UpdateEvent:
					update.Put = append(update.Put, event.Value)
				case etcdop.DeleteEvent:
					update.Deleted = append(update.Deleted, b.prefix.RelativeKey(event.Key))
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- update:
			}
		}
	}()
	return out
}
