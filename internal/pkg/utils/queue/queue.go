// Package queue provides an unbounded FIFO queue, consumed through a channel.
// It decouples a producer which must never block from a slow consumer.
package queue

import (
	"context"
	"sync"
)

type Unbounded[T any] struct {
	lock   *sync.Mutex
	items  []T
	notify chan struct{}
	out    chan T
	closed bool
}

// New creates the queue, items are forwarded to the C channel until the context ends or Close is called.
// The C channel is closed after all items pushed before Close have been consumed.
func New[T any](ctx context.Context) *Unbounded[T] {
	q := &Unbounded[T]{
		lock:   &sync.Mutex{},
		notify: make(chan struct{}, 1),
		out:    make(chan T),
	}
	go q.forward(ctx)
	return q
}

// C returns the output channel.
func (q *Unbounded[T]) C() <-chan T {
	return q.out
}

// Push never blocks, it returns false if the queue is closed.
func (q *Unbounded[T]) Push(item T) bool {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.lock.Unlock()
	q.wakeup()
	return true
}

func (q *Unbounded[T]) Close() {
	q.lock.Lock()
	q.closed = true
	q.lock.Unlock()
	q.wakeup()
}

func (q *Unbounded[T]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items)
}

func (q *Unbounded[T]) wakeup() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Unbounded[T]) forward(ctx context.Context) {
	defer close(q.out)
	for {
		q.lock.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.lock.Unlock()
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				q.Close()
				return
			case <-q.notify:
				continue
			}
		}
		item := q.items[0]
		var empty T
		q.items[0] = empty
		q.items = q.items[1:]
		q.lock.Unlock()

		select {
		case <-ctx.Done():
			q.Close()
			return
		case q.out <- item:
		}
	}
}
