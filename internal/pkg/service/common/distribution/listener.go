package distribution

import (
	"context"
	"sync"

	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
)

// Listener receives grouped distribution changes, see Node.OnChangeListener.
type Listener struct {
	C       <-chan Events
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	all     *listeners
	lock    *sync.Mutex
	pending Events
	notify  chan struct{}
}

type listeners struct {
	node   *Node
	logger log.Logger
	lock   *sync.Mutex
	wg     *sync.WaitGroup
	items  map[string]*Listener
}

func newListeners(n *Node) *listeners {
	v := &listeners{
		node:   n,
		logger: n.logger.WithComponent("listeners"),
		lock:   &sync.Mutex{},
		wg:     &sync.WaitGroup{},
		items:  make(map[string]*Listener),
	}

	n.proc.OnShutdown(func(ctx context.Context) {
		v.logger.Info(ctx, "received shutdown request")
		v.lock.Lock()
		items := make([]*Listener, 0, len(v.items))
		for _, l := range v.items {
			items = append(items, l)
		}
		v.lock.Unlock()
		for _, l := range items {
			l.Stop()
		}
		v.wg.Wait()
		v.logger.Info(ctx, "shutdown done")
	})

	return v
}

func (v *listeners) add() *Listener {
	out := make(chan Events)
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		C:      out,
		id:     idgenerator.Random(10),
		ctx:    ctx,
		cancel: cancel,
		all:    v,
		lock:   &sync.Mutex{},
		notify: make(chan struct{}, 1),
	}

	v.lock.Lock()
	v.items[l.id] = l
	v.lock.Unlock()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		defer close(out)
		l.forward(v.node, out)
	}()

	return l
}

func (v *listeners) notify(event Event) {
	v.lock.Lock()
	defer v.lock.Unlock()
	for _, l := range v.items {
		l.lock.Lock()
		l.pending = append(l.pending, event)
		l.lock.Unlock()
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
}

// Stop the listener, the C channel is closed, no more events are sent.
func (l *Listener) Stop() {
	l.all.lock.Lock()
	delete(l.all.items, l.id)
	l.all.lock.Unlock()
	l.cancel()
}

// forward sends pending events to the out channel.
// Events are grouped, if the interval is set.
func (l *Listener) forward(n *Node, out chan<- Events) {
	interval := n.config.EventsGroupInterval
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.notify:
		}

		// Wait for more events
		if interval > 0 {
			select {
			case <-l.ctx.Done():
				return
			case <-n.clock.After(interval):
			}
		}

		l.lock.Lock()
		events := l.pending
		l.pending = nil
		l.lock.Unlock()
		if len(events) == 0 {
			continue
		}

		n.logger.Infof(l.ctx, "distribution changed: %s", events.Messages())
		select {
		case <-l.ctx.Done():
			return
		case out <- events:
		}
	}
}
