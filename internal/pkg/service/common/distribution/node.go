// Package distribution provides the cluster membership and the distribution of the work between cluster nodes.
//
// Each Node registers itself in the Backend and watches other nodes.
// Observers registered before the Start receive MembershipEvent for each change.
// The Ring decides the owner of a key using consistent hashing.
package distribution

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Node is the local member of the cluster.
type Node struct {
	*Ring
	config    Config
	clock     clock.Clock
	logger    log.Logger
	proc      *servicectx.Process
	backend   Backend
	listeners *listeners

	lock      *sync.RWMutex
	started   bool
	local     Member
	members   map[string]Member
	observers []Observer
}

type NodeOption func(c *nodeConfig)

type nodeConfig struct {
	Config
	address    string
	attributes map[string]string
}

type dependencies interface {
	Clock() clock.Clock
	Logger() log.Logger
	Process() *servicectx.Process
}

func WithStartupTimeout(v time.Duration) NodeOption {
	return func(c *nodeConfig) {
		c.StartupTimeout = v
	}
}

func WithShutdownTimeout(v time.Duration) NodeOption {
	return func(c *nodeConfig) {
		c.ShutdownTimeout = v
	}
}

// WithEventsGroupInterval sets how often changes in the cluster topology are sent to listeners.
func WithEventsGroupInterval(v time.Duration) NodeOption {
	return func(c *nodeConfig) {
		c.EventsGroupInterval = v
	}
}

func WithConfig(cfg Config) NodeOption {
	return func(c *nodeConfig) {
		c.Config = cfg
	}
}

func WithAddress(v string) NodeOption {
	return func(c *nodeConfig) {
		c.address = v
	}
}

func WithAttributes(v map[string]string) NodeOption {
	return func(c *nodeConfig) {
		c.attributes = maps.Clone(v)
	}
}

// NewNode creates an unstarted node, observers can be registered before Start.
func NewNode(nodeID, group string, backend Backend, d dependencies, opts ...NodeOption) (*Node, error) {
	if nodeID == "" {
		return nil, errors.New("node ID cannot be empty")
	}
	if group == "" {
		return nil, errors.New("group cannot be empty")
	}

	c := nodeConfig{Config: NewConfig()}
	for _, o := range opts {
		o(&c)
	}

	n := &Node{
		Ring:     newRing(nodeID),
		config:   c.Config,
		clock:    d.Clock(),
		logger:   d.Logger().WithComponent("distribution." + group).With(attribute.String("node", nodeID)),
		proc:     d.Process(),
		backend:  backend,
		lock:     &sync.RWMutex{},
		local: Member{
			ID:         nodeID,
			Address:    c.address,
			Attributes: c.attributes,
		},
		members: make(map[string]Member),
	}
	n.listeners = newListeners(n)
	return n, nil
}

// Observe registers the observer. It must be called before Start, otherwise it fails with ConfigurationError.
func (n *Node) Observe(observer Observer) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.started {
		return NewConfigurationError(`cannot register an observer, the node "%s" has already been started`, n.nodeID)
	}
	n.observers = append(n.observers, observer)
	return nil
}

// Start registers the node to the cluster and waits until the initial list of members is loaded.
func (n *Node) Start(ctx context.Context) error {
	n.lock.Lock()
	if n.started {
		n.lock.Unlock()
		return NewConfigurationError(`the node "%s" has already been started`, n.nodeID)
	}
	n.started = true
	n.local.StartedAt = n.clock.Now().UTC()
	local := n.local.Clone()
	n.lock.Unlock()

	startCtx, startCancel := context.WithTimeout(ctx, n.config.StartupTimeout)
	defer startCancel()

	n.logger.Infof(ctx, `registering the node "%s"`, n.nodeID)
	if err := n.backend.Register(startCtx, local); err != nil {
		return err
	}
	n.logger.Infof(ctx, `the node "%s" registered`, n.nodeID)

	watchCtx, watchCancel := context.WithCancel(context.WithoutCancel(ctx))
	watchDone := make(chan struct{})
	initDone := make(chan struct{})

	n.proc.OnShutdown(func(ctx context.Context) {
		n.logger.Info(ctx, "received shutdown request")
		watchCancel()
		<-watchDone

		ctx, cancel := context.WithTimeout(ctx, n.config.ShutdownTimeout)
		defer cancel()
		n.logger.Infof(ctx, `unregistering the node "%s"`, n.nodeID)
		if err := n.backend.Unregister(ctx, local); err != nil {
			n.logger.Errorf(ctx, `cannot unregister the node "%s": %s`, n.nodeID, err)
		} else {
			n.logger.Infof(ctx, `the node "%s" unregistered`, n.nodeID)
		}
		n.logger.Info(ctx, "shutdown done")
	})

	n.logger.Info(ctx, "watching for other nodes")
	updates := n.backend.Watch(watchCtx)
	go func() {
		defer close(watchDone)
		first := true
		for update := range updates {
			n.apply(watchCtx, update)
			if first {
				first = false
				close(initDone)
			}
		}
	}()

	select {
	case <-initDone:
		return nil
	case <-watchDone:
		return errors.Errorf(`the node "%s" stopped before the initial list of nodes was loaded`, n.nodeID)
	case <-startCtx.Done():
		return errors.PrefixErrorf(startCtx.Err(), `cannot load the initial list of nodes`)
	}
}

// Size returns the current count of members, including the local node.
func (n *Node) Size() int {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return len(n.members)
}

// Members returns all current members sorted by ID.
func (n *Node) Members() []Member {
	n.lock.RLock()
	defer n.lock.RUnlock()
	out := make([]Member, 0, len(n.members))
	for _, id := range slices.Sorted(maps.Keys(n.members)) {
		out = append(out, n.members[id].Clone())
	}
	return out
}

func (n *Node) Member(id string) (Member, bool) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	m, found := n.members[id]
	return m.Clone(), found
}

// SetAttribute updates an attribute of the local member, other nodes receive MemberAttributeChanged event.
func (n *Node) SetAttribute(ctx context.Context, key, value string) error {
	n.lock.Lock()
	if n.local.Attributes == nil {
		n.local.Attributes = make(map[string]string)
	}
	n.local.Attributes[key] = value
	local := n.local.Clone()
	started := n.started
	n.lock.Unlock()

	if !started {
		return nil
	}
	return n.backend.Update(ctx, local)
}

// OnChangeListener returns a new listener, it receives grouped events.
func (n *Node) OnChangeListener() *Listener {
	return n.listeners.add()
}

func (n *Node) apply(ctx context.Context, update BackendUpdate) {
	var events []MembershipEvent

	n.lock.Lock()
	if update.Reset {
		current := make(map[string]bool, len(update.Put))
		for _, m := range update.Put {
			current[m.ID] = true
		}
		for _, id := range slices.Sorted(maps.Keys(n.members)) {
			if !current[id] {
				events = append(events, n.removeMember(id)...)
			}
		}
	}
	for _, m := range update.Put {
		events = append(events, n.putMember(m)...)
	}
	for _, id := range update.Deleted {
		events = append(events, n.removeMember(id)...)
	}
	observers := slices.Clone(n.observers)
	n.lock.Unlock()

	for _, event := range events {
		n.logger.Info(ctx, event.String())
		for _, observer := range observers {
			observer(event)
		}
		n.listeners.notify(newEvent(event))
	}
}

// putMember must be called with the lock held.
func (n *Node) putMember(m Member) []MembershipEvent {
	m = m.Clone()
	old, found := n.members[m.ID]
	n.members[m.ID] = m
	if !found {
		n.add(m.ID)
		return []MembershipEvent{{Type: MemberAdded, Member: m.Clone()}}
	}

	var events []MembershipEvent
	for _, attr := range changedAttributes(old, m) {
		events = append(events, MembershipEvent{Type: MemberAttributeChanged, Member: m.Clone(), Attribute: attr})
	}
	return events
}

// removeMember must be called with the lock held.
func (n *Node) removeMember(id string) []MembershipEvent {
	m, found := n.members[id]
	if !found {
		return nil
	}
	delete(n.members, id)
	n.remove(id)
	return []MembershipEvent{{Type: MemberRemoved, Member: m}}
}
