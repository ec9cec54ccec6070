package distribution

import (
	"slices"
	"strconv"
	"sync"

	"github.com/lafikl/consistent"
)

// Ring maps keys to the known nodes using consistent hashing. It is part of the Node.
type Ring struct {
	nodeID string
	lock   *sync.RWMutex
	ring   *consistent.Consistent
}

func newRing(nodeID string) *Ring {
	return &Ring{nodeID: nodeID, lock: &sync.RWMutex{}, ring: consistent.New()}
}

// NodeID returns ID of the local node.
func (r *Ring) NodeID() string {
	return r.nodeID
}

// Nodes returns sorted IDs of all known nodes.
func (r *Ring) Nodes() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := r.ring.Hosts()
	slices.Sort(out)
	return out
}

// NodeFor returns ID of the node owning the key.
// The consistent.ErrNoHosts is returned if no node is known.
func (r *Ring) NodeFor(key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.ring.Get(key)
}

// IsOwner returns true if the local node owns the key.
func (r *Ring) IsOwner(key string) (bool, error) {
	owner, err := r.NodeFor(key)
	if err != nil {
		return false, err
	}
	return owner == r.nodeID, nil
}

func (r *Ring) add(nodeID string) {
	r.lock.Lock()
	r.ring.Add(nodeID)
	r.lock.Unlock()
}

func (r *Ring) remove(nodeID string) {
	r.lock.Lock()
	r.ring.Remove(nodeID)
	r.lock.Unlock()
}

// PartitionKey is the ring key of the partition.
func PartitionKey(partition int) string {
	return "partition/" + strconv.Itoa(partition)
}

// PartitionOwners assigns each of the count partitions to one of the nodes.
// All nodes compute the same table from the same membership view.
// Owners are empty strings if there is no node.
func PartitionOwners(nodes []string, count int) []string {
	owners := make([]string, count)
	if len(nodes) == 0 {
		return owners
	}

	ring := consistent.New()
	for _, node := range nodes {
		ring.Add(node)
	}
	for p := range owners {
		owners[p], _ = ring.Get(PartitionKey(p))
	}
	return owners
}
