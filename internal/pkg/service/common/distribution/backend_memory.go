package distribution

import (
	"context"
	"sync"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/queue"
)

// MemoryCluster is an in-process Backend shared by all nodes of a simulated cluster.
type MemoryCluster struct {
	lock     *sync.Mutex
	members  map[string]Member
	watchers map[*queue.Unbounded[BackendUpdate]]bool
}

func NewMemoryCluster() *MemoryCluster {
	return &MemoryCluster{
		lock:     &sync.Mutex{},
		members:  make(map[string]Member),
		watchers: make(map[*queue.Unbounded[BackendUpdate]]bool),
	}
}

func (c *MemoryCluster) Register(_ context.Context, member Member) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, found := c.members[member.ID]; found {
		return errors.Errorf(`the node "%s" is already registered`, member.ID)
	}
	c.members[member.ID] = member.Clone()
	c.broadcast(BackendUpdate{Put: []Member{member.Clone()}})
	return nil
}

func (c *MemoryCluster) Update(_ context.Context, member Member) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, found := c.members[member.ID]; !found {
		return errors.Errorf(`the node "%s" is not registered`, member.ID)
	}
	c.members[member.ID] = member.Clone()
	c.broadcast(BackendUpdate{Put: []Member{member.Clone()}})
	return nil
}

func (c *MemoryCluster) Unregister(_ context.Context, member Member) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, found := c.members[member.ID]; found {
		delete(c.members, member.ID)
		c.broadcast(BackendUpdate{Deleted: []string{member.ID}})
	}
	return nil
}

func (c *MemoryCluster) Watch(ctx context.Context) <-chan BackendUpdate {
	c.lock.Lock()
	defer c.lock.Unlock()

	q := queue.New[BackendUpdate](ctx)
	snapshot := BackendUpdate{Reset: true}
	for _, m := range c.members {
		snapshot.Put = append(snapshot.Put, m.Clone())
	}
	q.Push(snapshot)
	c.watchers[q] = true

	go func() {
		<-ctx.Done()
		c.lock.Lock()
		delete(c.watchers, q)
		c.lock.Unlock()
	}()

	return q.C()
}

// Members returns IDs of all registered members.
func (c *MemoryCluster) Members() (out []string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for id := range c.members {
		out = append(out, id)
	}
	return out
}

// broadcast must be called with the lock held.
func (c *MemoryCluster) broadcast(update BackendUpdate) {
	for q := range c.watchers {
		q.Push(update)
	}
}
