package partition

import (
	"context"
	"fmt"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
)

const (
	MigrationStarted MigrationPhase = iota
	MigrationCompleted
	MigrationFailed
)

type MigrationPhase int

// MigrationEvent reports a change of the partition owner.
// OldOwner is empty if the partition had no owner before.
type MigrationEvent struct {
	Partition int
	OldOwner  string
	NewOwner  string
	Phase     MigrationPhase
}

// MigrationListener must not block.
type MigrationListener func(event MigrationEvent)

// MigrationCallback re-evaluates a value of a key which has become local.
// The returned value is written back to the map.
type MigrationCallback interface {
	Process(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error)
}

type MigrationCallbackFunc func(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error)

// MigrationReport is the result of the callback processing of one partition and one keyspace.
type MigrationReport struct {
	Partition int
	Keyspace  string
	Processed int
	Failed    []FailedKey
}

type FailedKey struct {
	Key     string
	Error   error
	Attempt int
}

// ReportListener must not block.
type ReportListener func(report MigrationReport)

func (f MigrationCallbackFunc) Process(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error) {
	return f(ctx, key, value)
}

func (p MigrationPhase) String() string {
	switch p {
	case MigrationStarted:
		return "started"
	case MigrationCompleted:
		return "completed"
	case MigrationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (e MigrationEvent) String() string {
	return fmt.Sprintf(`partition %d migration %s: "%s" -> "%s"`, e.Partition, e.Phase, e.OldOwner, e.NewOwner)
}
