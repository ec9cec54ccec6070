package distribution

import (
	"context"
)

// Backend stores registrations of the cluster members and streams changes to them.
type Backend interface {
	// Register stores the local member, the registration is kept alive until Unregister.
	Register(ctx context.Context, member Member) error
	// Update replaces the stored local member.
	Update(ctx context.Context, member Member) error
	// Unregister removes the local member.
	Unregister(ctx context.Context, member Member) error
	// Watch streams changes until the context ends.
	// The first update has the Reset flag and contains all members.
	Watch(ctx context.Context) <-chan BackendUpdate
}

// BackendUpdate is a batch of membership changes.
// If Reset is set, Put contains the complete list of members and the state should be replaced.
type BackendUpdate struct {
	Reset   bool
	Put     []Member
	Deleted []string
}
