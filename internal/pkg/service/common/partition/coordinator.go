// Package partition maps keys to a fixed count of partitions and partitions to the owner nodes.
//
// The Coordinator recomputes owners after each membership change.
// For each partition which has become local, registered migration callbacks re-evaluate local keys of the partition.
package partition

import (
	"context"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// Membership is implemented by the distribution.Node.
type Membership interface {
	NodeID() string
	Nodes() []string
	Observe(observer distribution.Observer) error
}

type Coordinator struct {
	config     Config
	logger     log.Logger
	proc       *servicectx.Process
	membership Membership
	nodeID     string
	processed  metric.Int64Counter
	failed     metric.Int64Counter

	lock               *sync.RWMutex
	started            bool
	owners             []string
	keyspaces          []*keyspace
	migrationListeners []MigrationListener
	reportListeners    []ReportListener

	trigger chan struct{}
}

type keyspace struct {
	m        kvstore.Map
	callback MigrationCallback
	// retry contains failed keys and count of attempts, it is accessed only by the processing goroutine
	retry map[string]int
}

type dependencies interface {
	Logger() log.Logger
	Process() *servicectx.Process
	Telemetry() telemetry.Telemetry
}

// NewCoordinator registers an observer to the membership, so it must be called before the node is started.
func NewCoordinator(membership Membership, cfg Config, d dependencies) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	meter := d.Telemetry().Meter()
	c := &Coordinator{
		config:     cfg,
		logger:     d.Logger().WithComponent("partition").With(attribute.String("node", membership.NodeID())),
		proc:       d.Process(),
		membership: membership,
		nodeID:     membership.NodeID(),
		processed:  telemetry.Counter(meter, "partition.migration.keys.processed", "Keys processed by migration callbacks.", "1"),
		failed:     telemetry.Counter(meter, "partition.migration.keys.failed", "Keys failed in migration callbacks.", "1"),
		lock:       &sync.RWMutex{},
		trigger:    make(chan struct{}, 1),
	}

	if err := membership.Observe(func(distribution.MembershipEvent) { c.notify() }); err != nil {
		return nil, err
	}

	return c, nil
}

// RegisterMigrationCallback must be called before Start, otherwise it fails with ConfigurationError.
func (c *Coordinator) RegisterMigrationCallback(m kvstore.Map, callback MigrationCallback) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return distribution.NewConfigurationError(`cannot register a migration callback for the keyspace "%s", the coordinator has already been started`, m.Keyspace())
	}
	for _, ks := range c.keyspaces {
		if ks.m.Keyspace() == m.Keyspace() {
			return distribution.NewConfigurationError(`a migration callback for the keyspace "%s" is already registered`, m.Keyspace())
		}
	}
	c.keyspaces = append(c.keyspaces, &keyspace{m: m, callback: callback, retry: make(map[string]int)})
	return nil
}

// OnMigration registers the listener, it must be called before Start.
func (c *Coordinator) OnMigration(listener MigrationListener) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return distribution.NewConfigurationError(`cannot register a migration listener, the coordinator has already been started`)
	}
	c.migrationListeners = append(c.migrationListeners, listener)
	return nil
}

// OnReport registers the listener, it must be called before Start.
func (c *Coordinator) OnReport(listener ReportListener) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return distribution.NewConfigurationError(`cannot register a report listener, the coordinator has already been started`)
	}
	c.reportListeners = append(c.reportListeners, listener)
	return nil
}

// Start processing of membership changes, it stops on the Process shutdown.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lock.Lock()
	if c.started {
		c.lock.Unlock()
		return distribution.NewConfigurationError(`the partition coordinator has already been started`)
	}
	c.started = true
	c.lock.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.proc.OnShutdown(func(ctx context.Context) {
		c.logger.Info(ctx, "received shutdown request")
		cancel()
		<-done
		c.logger.Info(ctx, "shutdown done")
	})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.trigger:
				c.rebalance(ctx)
			}
		}
	}()

	c.notify()
	return nil
}

func (c *Coordinator) PartitionCount() int {
	return c.config.Count
}

// PartitionFor returns partition of the key.
func (c *Coordinator) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(c.config.Count))
}

// OwnerOf returns the current owner of the partition, or an empty string if there is no member.
func (c *Coordinator) OwnerOf(partition int) string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if partition < 0 || partition >= len(c.owners) {
		return ""
	}
	return c.owners[partition]
}

// IsLocalKey implements kvstore.Ownership.
func (c *Coordinator) IsLocalKey(key string) bool {
	return c.OwnerOf(c.PartitionFor(key)) == c.nodeID
}

// LocalPartitions returns partitions owned by the local node.
func (c *Coordinator) LocalPartitions() (out []int) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for p, owner := range c.owners {
		if owner == c.nodeID {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) notify() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Coordinator) rebalance(ctx context.Context) {
	owners := distribution.PartitionOwners(c.membership.Nodes(), c.config.Count)

	c.lock.Lock()
	oldOwners := c.owners
	c.owners = owners
	keyspaces := slices.Clone(c.keyspaces)
	migrationListeners := slices.Clone(c.migrationListeners)
	reportListeners := slices.Clone(c.reportListeners)
	c.lock.Unlock()

	var changed []MigrationEvent
	gained := make(map[int]bool)
	for p, newOwner := range owners {
		oldOwner := ""
		if oldOwners != nil {
			oldOwner = oldOwners[p]
		}
		if oldOwner != newOwner {
			changed = append(changed, MigrationEvent{Partition: p, OldOwner: oldOwner, NewOwner: newOwner})
			if newOwner == c.nodeID {
				gained[p] = true
			}
		}
	}
	if len(changed) == 0 {
		return
	}

	c.logger.Infof(ctx, "partition owners changed, migrated %d partitions, gained %d partitions", len(changed), len(gained))
	emit := func(phase MigrationPhase, failed map[int]bool) {
		for _, event := range changed {
			event.Phase = phase
			if phase != MigrationStarted && failed[event.Partition] {
				event.Phase = MigrationFailed
			}
			for _, listener := range migrationListeners {
				listener(event)
			}
		}
	}

	emit(MigrationStarted, nil)
	failed := make(map[int]bool)
	for _, ks := range keyspaces {
		for _, report := range c.processKeyspace(ctx, ks, gained, failed) {
			c.logger.Infof(ctx, `partition %d keyspace "%s": processed %d keys, failed %d keys`, report.Partition, report.Keyspace, report.Processed, len(report.Failed))
			for _, listener := range reportListeners {
				listener(report)
			}
		}
	}
	emit(MigrationCompleted, failed)
}

// processKeyspace runs the callback for local keys of the gained partitions and for keys in the retry set.
// Partitions which could not be processed are added to the failed map.
func (c *Coordinator) processKeyspace(ctx context.Context, ks *keyspace, gained map[int]bool, failed map[int]bool) []MigrationReport {
	var keys []string
	if len(gained) > 0 {
		localKeys, err := ks.m.LocalKeySet(ctx)
		if err != nil {
			c.logger.Errorf(ctx, `cannot list local keys of the keyspace "%s": %s`, ks.m.Keyspace(), err)
			for p := range gained {
				failed[p] = true
			}
			return nil
		}
		for _, key := range localKeys {
			if gained[c.PartitionFor(key)] {
				keys = append(keys, key)
			}
		}
	}

	// Retry previously failed keys, if they are still local
	for key := range ks.retry {
		switch {
		case gained[c.PartitionFor(key)]:
			// processed with other keys of the partition, if the key still exists
		case !c.IsLocalKey(key):
			c.logger.Debugf(ctx, `key "%s" of the keyspace "%s" is not local anymore, it is removed from the retry set`, key, ks.m.Keyspace())
			delete(ks.retry, key)
		default:
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)

	reports := make(map[int]*MigrationReport)
	var order []int
	for _, key := range keys {
		if ctx.Err() != nil {
			failed[c.PartitionFor(key)] = true
			continue
		}

		p := c.PartitionFor(key)
		report, ok := reports[p]
		if !ok {
			report = &MigrationReport{Partition: p, Keyspace: ks.m.Keyspace()}
			reports[p] = report
			order = append(order, p)
		}

		attrs := metric.WithAttributes(attribute.String("keyspace", ks.m.Keyspace()))
		processed, err := c.processKey(ctx, ks, key)
		switch {
		case err != nil:
			attempt := ks.retry[key] + 1
			report.Failed = append(report.Failed, FailedKey{Key: key, Error: err, Attempt: attempt})
			c.failed.Add(ctx, 1, attrs)
			if attempt > c.config.MaxRetries {
				c.logger.Errorf(ctx, `key "%s" of the keyspace "%s" failed %d times, giving up: %s`, key, ks.m.Keyspace(), attempt, err)
				delete(ks.retry, key)
			} else {
				c.logger.Warnf(ctx, `key "%s" of the keyspace "%s" failed, attempt %d: %s`, key, ks.m.Keyspace(), attempt, err)
				ks.retry[key] = attempt
			}
		case processed:
			report.Processed++
			c.processed.Add(ctx, 1, attrs)
			delete(ks.retry, key)
		default:
			delete(ks.retry, key)
		}
	}

	out := make([]MigrationReport, 0, len(order))
	slices.Sort(order)
	for _, p := range order {
		out = append(out, *reports[p])
	}
	return out
}

// processKey returns false if the key doesn't exist anymore.
func (c *Coordinator) processKey(ctx context.Context, ks *keyspace, key string) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			processed = false
			err = errors.Errorf("migration callback panic: %v", r)
		}
	}()

	value, found, err := ks.m.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	newValue, err := ks.callback.Process(ctx, key, value)
	if err != nil {
		return false, err
	}

	if err := ks.m.Put(ctx, key, newValue); err != nil {
		return false, errors.PrefixErrorf(err, `cannot write back the key "%s"`, key)
	}
	return true, nil
}
