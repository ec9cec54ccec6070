package distributor

import (
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// MaxChunkSize keeps one encoded CHUNK message below the etcd request limit, 1.5 MiB by default.
// The payload grows by a third in the base64 JSON envelope.
const MaxChunkSize = datasize.MB

// Config of the file distribution.
type Config struct {
	Topic              string                   `configKey:"topic" configUsage:"Pub/sub topic of the file distribution protocol." validate:"required"`
	ChunkSize          datasize.ByteSize        `configKey:"chunkSize" configUsage:"Size of one file chunk." validate:"required"`
	SendAckTimeout     time.Duration            `configKey:"sendAckTimeout" configUsage:"How long the sender waits for all nodes to acknowledge the announcement." validate:"required"`
	ReceiptAckTimeout  time.Duration            `configKey:"receiptAckTimeout" configUsage:"How long the sender waits for all nodes to report the received file." validate:"required"`
	LockAcquireTimeout time.Duration            `configKey:"lockAcquireTimeout" configUsage:"How long the sender waits for the cluster-wide distribution lock." validate:"required"`
	ChunkOfferTimeout  time.Duration            `configKey:"chunkOfferTimeout" configUsage:"How long a received chunk waits for a free slot in the receiving queue." validate:"required"`
	ChunkWaitTimeout   time.Duration            `configKey:"chunkWaitTimeout" configUsage:"How long the receiver waits for the next chunk." validate:"required"`
	QueueSize          int                      `configKey:"queueSize" configUsage:"Capacity of the receiving queue, in chunks." validate:"required,min=1"`
	Workers            int                      `configKey:"workers" configUsage:"Count of concurrent receiving tasks." validate:"required,min=1"`
	TargetDir          string                   `configKey:"targetDir" configUsage:"Directory for received files." validate:"required"`
	ReadMode           chunk.ReadMode           `configKey:"readMode" configUsage:"Read mode of the source file: buffered or mmap." validate:"required,oneof=buffered mmap"`
	ExistingFilePolicy chunk.ExistingFilePolicy `configKey:"existingFilePolicy" configUsage:"What to do with an existing received file: replace or rename." validate:"required,oneof=replace rename"`
	RenameSuffix       string                   `configKey:"renameSuffix" configUsage:"Strftime suffix of a renamed existing file." validate:"required"`
}

func NewConfig() Config {
	return Config{
		Topic:              "filesync.distribution",
		ChunkSize:          256 * datasize.KB,
		SendAckTimeout:     30 * time.Second,
		ReceiptAckTimeout:  600 * time.Second,
		LockAcquireTimeout: 10 * time.Second,
		ChunkOfferTimeout:  10 * time.Second,
		ChunkWaitTimeout:   60 * time.Second,
		QueueSize:          64,
		Workers:            2,
		TargetDir:          "/var/lib/filesync/received",
		ReadMode:           chunk.ReadModeBuffered,
		ExistingFilePolicy: chunk.ExistingFileReplace,
		RenameSuffix:       chunk.DefaultRenameSuffix,
	}
}

// Validate checks values which cannot be expressed by the validate tags.
func (c Config) Validate() error {
	errs := errors.NewMultiError()
	if c.ChunkSize == 0 || c.ChunkSize > MaxChunkSize {
		errs.Append(errors.Errorf(`chunk size must be between 1B and %s, found "%s"`, MaxChunkSize.HumanReadable(), c.ChunkSize.HumanReadable()))
	}
	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"sendAckTimeout", c.SendAckTimeout},
		{"receiptAckTimeout", c.ReceiptAckTimeout},
		{"lockAcquireTimeout", c.LockAcquireTimeout},
		{"chunkOfferTimeout", c.ChunkOfferTimeout},
		{"chunkWaitTimeout", c.ChunkWaitTimeout},
	}
	for _, timeout := range timeouts {
		if timeout.value <= 0 {
			errs.Append(errors.Errorf(`%s must be positive, found "%s"`, timeout.name, timeout.value))
		}
	}
	if c.Workers < 1 {
		errs.Append(errors.Errorf(`workers must be at least 1, found %d`, c.Workers))
	}
	if c.QueueSize < 1 {
		errs.Append(errors.Errorf(`queue size must be at least 1, found %d`, c.QueueSize))
	}
	if c.Topic == "" {
		errs.Append(errors.New("topic cannot be empty"))
	}
	if c.TargetDir == "" {
		errs.Append(errors.New("target directory cannot be empty"))
	}
	return errs.ErrorOrNil()
}
