package distributor

import (
	"context"
	"time"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/partition"
)

const (
	StatusFinished TransferStatus = "finished"
	StatusTimedOut TransferStatus = "timedOut"
	// StatusFailed is used only in the TransferRecord, if the distribution returned an error.
	StatusFailed TransferStatus = "failed"
)

type TransferStatus string

// TransferResult is returned by the Distribute method.
// Nodes which didn't respond in time are not counted as errored.
type TransferResult struct {
	TransferID   string            `json:"transferId"`
	FileName     string            `json:"fileName"`
	Status       TransferStatus    `json:"status"`
	ExpectedAcks int               `json:"expectedAcks"`
	ErrorCount   int               `json:"errorCount"`
	ErroredNodes []string          `json:"erroredNodes"`
	Errors       map[string]string `json:"errors,omitempty"`
	Duration     time.Duration     `json:"duration"`
}

// TransferRecord is stored to the transfers map after each distribution.
type TransferRecord struct {
	TransferID   string         `json:"transferId"`
	FileName     string         `json:"fileName"`
	FileSize     int64          `json:"fileSize"`
	Sender       string         `json:"sender"`
	Status       TransferStatus `json:"status"`
	ExpectedAcks int            `json:"expectedAcks"`
	ErrorCount   int            `json:"errorCount"`
	ErroredNodes []string       `json:"erroredNodes,omitempty"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	// Owner is the node which owns the partition of the record, it is updated after each migration.
	Owner string `json:"owner,omitempty"`
}

func (r TransferResult) Finished() bool {
	return r.Status == StatusFinished
}

// AllSucceeded returns true if all nodes received the file.
func (r TransferResult) AllSucceeded() bool {
	return r.Status == StatusFinished && r.ErrorCount == 0
}

// NewRecordOwnerCallback sets the Owner of each migrated TransferRecord to the local node.
func NewRecordOwnerCallback(nodeID string) partition.MigrationCallback {
	return partition.MigrationCallbackFunc(func(ctx context.Context, key string, value kvstore.Value) (kvstore.Value, error) {
		return kvstore.UpdateValue(value, func(record TransferRecord) TransferRecord {
			record.Owner = nodeID
			return record
		})
	})
}
