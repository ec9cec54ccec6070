package etcdop

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.etcd.io/etcd/api/v3/mvccpb"
	etcd "go.etcd.io/etcd/client/v3"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

type EventType int32

const (
	CreateEvent EventType = iota
	UpdateEvent
	DeleteEvent
)

func (t EventType) String() string {
	switch t {
	case CreateEvent:
		return "create"
	case UpdateEvent:
		return "update"
	case DeleteEvent:
		return "delete"
	default:
		return "unknown"
	}
}

// EventT is a decoded watch event.
// PrevValue is set for update and delete events, if the previous value has been decoded.
type EventT[T any] struct {
	Type      EventType
	Key       string
	Value     T
	PrevValue *T
	Kv        *mvccpb.KeyValue
}

// WatchResponseT is a batch of events, or an error.
//
// If Restarted is set, the stream has been (re)initialized by a full read of the prefix
// and Events contain all current values as create events. The consumer should replace its state.
type WatchResponseT[T any] struct {
	Events    []EventT[T]
	Restarted bool
	Revision  int64
	Err       error
}

func (v Prefix) Watch(ctx context.Context, client etcd.Watcher, opts ...etcd.OpOption) etcd.WatchChan {
	opts = append([]etcd.OpOption{etcd.WithPrefix()}, opts...)
	return client.Watch(ctx, v.Prefix(), opts...)
}

// Watch streams decoded changes of the prefix from the revision, 0 means from now.
// The stream is resumed after a recoverable error, the output channel is closed when the context ends.
// Events deleted by a compaction are skipped.
func (v PrefixT[T]) Watch(ctx context.Context, client etcd.Watcher, fromRev int64) <-chan WatchResponseT[T] {
	out := make(chan WatchResponseT[T])
	go func() {
		defer close(out)
		b := newWatchBackoff()
		rev := fromRev
		for {
			lastRev, ok := v.consume(ctx, client, rev, out)
			if !ok || !wait(ctx, b) {
				return
			}
			if lastRev > 0 {
				rev = lastRev + 1
			}
		}
	}()
	return out
}

// GetAllAndWatch loads all current values and then streams changes.
// The first response and each response after an unrecoverable watch error has the Restarted flag.
func (v PrefixT[T]) GetAllAndWatch(ctx context.Context, client *etcd.Client) <-chan WatchResponseT[T] {
	out := make(chan WatchResponseT[T])
	go func() {
		defer close(out)
		b := newWatchBackoff()
		for {
			kvs, rev, err := v.GetAll(ctx, client)
			if err != nil {
				if !send(ctx, out, WatchResponseT[T]{Err: err}) || !wait(ctx, b) {
					return
				}
				continue
			}

			snapshot := WatchResponseT[T]{Restarted: true, Revision: rev, Events: make([]EventT[T], 0, len(kvs))}
			for _, kv := range kvs {
				snapshot.Events = append(snapshot.Events, EventT[T]{Type: CreateEvent, Key: string(kv.Kv.Key), Value: kv.Value, Kv: kv.Kv})
			}
			if !send(ctx, out, snapshot) {
				return
			}

			// Continue where the read ended, until an error
			if _, ok := v.consume(ctx, client, rev+1, out); !ok || !wait(ctx, b) {
				return
			}
			b.Reset()
		}
	}()
	return out
}

// consume forwards one watch stream to the output channel.
// It returns the last processed revision, and false if the context ended.
func (v PrefixT[T]) consume(ctx context.Context, client etcd.Watcher, fromRev int64, out chan<- WatchResponseT[T]) (lastRev int64, ok bool) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []etcd.OpOption{etcd.WithPrevKV(), etcd.WithCreatedNotify()}
	if fromRev > 0 {
		opts = append(opts, etcd.WithRev(fromRev))
	}

	lastRev = fromRev - 1
	rawCh := v.prefix.Watch(etcd.WithRequireLeader(watchCtx), client, opts...)
	for resp := range rawCh {
		if err := resp.Err(); err != nil {
			if resp.CompactRevision > 0 {
				lastRev = resp.CompactRevision - 1
			}
			if !send(ctx, out, WatchResponseT[T]{Err: errors.Errorf(`watch "%s" failed: %w`, v.Prefix(), err)}) {
				return lastRev, false
			}
			return lastRev, ctx.Err() == nil
		}
		if resp.Created || resp.IsProgressNotify() {
			continue
		}

		batch := WatchResponseT[T]{Revision: resp.Header.Revision, Events: make([]EventT[T], 0, len(resp.Events))}
		errs := errors.NewMultiError()
		for _, rawEvent := range resp.Events {
			event, err := v.decodeEvent(ctx, rawEvent)
			if err != nil {
				errs.Append(err)
				continue
			}
			batch.Events = append(batch.Events, event)
		}
		batch.Err = errs.ErrorOrNil()
		if !send(ctx, out, batch) {
			return lastRev, false
		}
		lastRev = resp.Header.Revision
	}

	return lastRev, ctx.Err() == nil
}

func (v PrefixT[T]) decodeEvent(ctx context.Context, raw *etcd.Event) (EventT[T], error) {
	event := EventT[T]{Key: string(raw.Kv.Key), Kv: raw.Kv}
	switch {
	case raw.Type == mvccpb.DELETE:
		event.Type = DeleteEvent
	case raw.IsCreate():
		event.Type = CreateEvent
	default:
		event.Type = UpdateEvent
	}

	if event.Type != DeleteEvent {
		if err := v.serde.Decode(ctx, raw.Kv.Value, &event.Value); err != nil {
			return event, invalidValueError(event.Key, err)
		}
	}

	if raw.PrevKv != nil {
		prev := new(T)
		if err := v.serde.Decode(ctx, raw.PrevKv.Value, prev); err == nil {
			event.PrevValue = prev
			if event.Type == DeleteEvent {
				event.Value = *prev
			}
		}
	}

	return event, nil
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- v:
		return true
	}
}

func wait(ctx context.Context, b backoff.BackOff) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(b.NextBackOff()):
		return true
	}
}

func newWatchBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
