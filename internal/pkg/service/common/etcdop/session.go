package etcdop

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
)

const sessionCloseTimeout = 5 * time.Second

// ResistantSession keeps an etcd session with the TTL alive until the context is done.
// If the session expires, for example after a network outage, a new one is created with a backoff.
//
// The onSession callback is invoked for each new session, it must not block.
// Work started by the callback should stop on <-session.Done().
//
// The returned channel reports the result of the first session creation, including the first keep-alive and callback.
// A failed re-creation is only logged and retried.
func ResistantSession(ctx context.Context, wg *sync.WaitGroup, logger log.Logger, client *etcd.Client, ttlSeconds int, onSession func(session *concurrency.Session) error) <-chan error {
	s := &resistantSession{
		logger:    logger.WithComponent("etcd-session"),
		client:    client,
		ttl:       ttlSeconds,
		backoff:   newSessionBackoff(),
		onSession: onSession,
	}

	initCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, initCh)
	}()
	return initCh
}

type resistantSession struct {
	logger    log.Logger
	client    *etcd.Client
	ttl       int
	backoff   *backoff.ExponentialBackOff
	onSession func(session *concurrency.Session) error
}

func (s *resistantSession) run(ctx context.Context, initCh chan<- error) {
	s.logger.Info(ctx, `creating etcd session`)
	session, err := s.create(ctx, true)
	if err != nil {
		initCh <- err
		close(initCh)
		return
	}
	close(initCh)

	for {
		select {
		case <-ctx.Done():
			s.close(ctx, session)
			return
		case <-session.Done():
		}

		if session = s.recreate(ctx); session == nil {
			return
		}
	}
}

// recreate returns nil if the context is done.
func (s *resistantSession) recreate(ctx context.Context) *concurrency.Session {
	for {
		delay := s.backoff.NextBackOff()
		s.logger.Infof(ctx, "re-creating etcd session, backoff delay %s", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		session, err := s.create(ctx, false)
		if err == nil {
			return session
		}
		s.logger.Errorf(ctx, `cannot re-create etcd session: %s`, err)
	}
}

func (s *resistantSession) create(ctx context.Context, first bool) (*concurrency.Session, error) {
	startTime := time.Now()
	session, err := concurrency.NewSession(s.client, concurrency.WithTTL(s.ttl), concurrency.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	// The first keep-alive confirms the connection
	if first {
		if _, err := session.Client().KeepAliveOnce(ctx, session.Lease()); err != nil {
			_ = session.Close()
			return nil, err
		}
	}

	s.backoff.Reset()
	s.logger.WithDuration(time.Since(startTime)).Info(ctx, "created etcd session")

	if err := s.onSession(session); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}

func (s *resistantSession) close(ctx context.Context, session *concurrency.Session) {
	startTime := time.Now()
	s.logger.Info(ctx, "closing etcd session")

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
	defer cancel()
	if _, err := s.client.Revoke(closeCtx, session.Lease()); err != nil {
		s.logger.Warnf(ctx, "cannot close etcd session: %s", err)
		return
	}
	s.logger.WithDuration(time.Since(startTime)).Info(ctx, "closed etcd session")
}

func newSessionBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
