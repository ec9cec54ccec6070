package distributor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// errAbortedBySender stops the receiver without a response.
var errAbortedBySender = errors.New("transfer aborted by the sender") // nolint: gochecknoglobals

// receiver consumes chunks of one transfer on a receiving node.
// Chunks are handed over from the bus handler through a bounded queue.
type receiver struct {
	c          *Coordinator
	logger     log.Logger
	transferID string
	sender     string
	file       chunk.FileAttributes
	writer     *chunk.Writer
	chunks     chan chunk.FileChunk
	ctx        context.Context
	cancel     context.CancelCauseFunc

	// the following fields are accessed only by the consuming task
	total      int
	next       int
	received   int64
	discarding bool
	discarded  int
}

func (c *Coordinator) newReceiver(transferID, sender string, file chunk.FileAttributes) (*receiver, error) {
	logger := c.logger.With(attribute.String("transfer.id", transferID), attribute.String("transfer.sender", sender))
	writer, err := chunk.NewWriter(c.fs, c.clock, logger, chunk.WriterConfig{
		TargetDir:    c.config.TargetDir,
		Policy:       c.config.ExistingFilePolicy,
		RenameSuffix: c.config.RenameSuffix,
	})
	if err != nil {
		return nil, err
	}

	r := &receiver{
		c:          c,
		logger:     logger,
		transferID: transferID,
		sender:     sender,
		file:       file,
		writer:     writer,
		chunks:     make(chan chunk.FileChunk, c.config.QueueSize),
	}
	r.ctx, r.cancel = context.WithCancelCause(c.ctx)
	return r, nil
}

// offer hands over the chunk to the consuming task, it is called by the bus handler.
func (r *receiver) offer(ch chunk.FileChunk) {
	// Fast path
	select {
	case r.chunks <- ch:
		return
	default:
	}

	select {
	case r.chunks <- ch:
	case <-r.ctx.Done():
	case <-r.c.clock.After(r.c.config.ChunkOfferTimeout):
		r.cancel(errors.Errorf(`chunk %d was not accepted within %s`, ch.Ordinal, r.c.config.ChunkOfferTimeout))
	}
}

// run is the consuming task, it responds RECV_FILE_ACK or RECV_FILE_ERR to the sender.
func (r *receiver) run() {
	defer r.c.removeReceiver(r)
	defer r.cancel(nil)

	ctx := context.WithoutCancel(r.ctx)
	r.discarding = r.c.IsDiscarding()
	if r.discarding {
		r.logger.Infof(ctx, `discarding the file "%s"`, r.file.Name)
	}

	err := r.consume()
	if r.discarded > 0 {
		r.logger.Infof(ctx, `discarded %d chunks of the file "%s"`, r.discarded, r.file.Name)
	}

	if err != nil {
		if abortErr := r.writer.Abort(ctx); abortErr != nil {
			r.logger.Errorf(ctx, `cannot remove incomplete file: %s`, abortErr)
		}
	}

	switch {
	case err == nil:
		r.logger.Infof(ctx, `received the file "%s", %d B`, r.file.Name, r.received)
		r.c.publish(ctx, Message{Kind: KindRecvFileAck, TransferID: r.transferID})
	case errors.Is(err, errAbortedBySender):
		r.logger.Infof(ctx, `transfer of the file "%s" aborted by the sender`, r.file.Name)
	default:
		r.logger.Warnf(ctx, `cannot receive the file "%s": %s`, r.file.Name, err)
		r.c.publish(ctx, Message{Kind: KindRecvFileErr, TransferID: r.transferID, Error: err.Error()})
	}
}

func (r *receiver) consume() error {
	for {
		select {
		case <-r.ctx.Done():
			return context.Cause(r.ctx)
		case <-r.c.clock.After(r.c.config.ChunkWaitTimeout):
			return errors.Errorf(`chunk %d not received within %s`, r.next, r.c.config.ChunkWaitTimeout)
		case ch := <-r.chunks:
			done, err := r.handle(ch)
			if err != nil || done {
				return err
			}
		}
	}
}

func (r *receiver) handle(ch chunk.FileChunk) (done bool, err error) {
	ctx := r.ctx

	if r.total == 0 {
		r.total = ch.TotalChunks
	}
	if err := chunk.Validate(chunk.FileChunk{FileAttributes: r.file, TotalChunks: r.total}, ch); err != nil {
		return false, err
	}
	if ch.Ordinal != r.next {
		return false, chunk.NewProtocolViolationError(`unexpected chunk %d, expected %d`, ch.Ordinal, r.next)
	}
	if r.received+int64(len(ch.Payload)) > r.file.Size {
		return false, chunk.NewProtocolViolationError(`received size %d B exceeds the declared file size %d B`, r.received+int64(len(ch.Payload)), r.file.Size)
	}

	// Discarding may be enabled during the transfer
	if !r.discarding && r.c.IsDiscarding() {
		r.discarding = true
		r.logger.Infof(ctx, `discarding the rest of the file "%s"`, r.file.Name)
		if err := r.writer.Abort(ctx); err != nil {
			return false, err
		}
	}

	if r.discarding {
		r.discarded++
		r.c.metrics.chunksDiscarded.Add(ctx, 1)
	} else {
		if err := r.writer.Write(ctx, ch); err != nil {
			return false, err
		}
		r.c.metrics.chunksReceived.Add(ctx, 1)
	}

	r.next++
	r.received += int64(len(ch.Payload))
	done = r.received == r.file.Size
	if !done && ch.IsLast() {
		return false, chunk.NewProtocolViolationError(`the last chunk received, but only %d B of %d B received`, r.received, r.file.Size)
	}
	return done, nil
}
