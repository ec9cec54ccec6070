// Package distributor distributes a file to all nodes of the cluster.
//
// The sender acquires the cluster-wide lock, announces the file and waits until all other nodes
// acknowledge the announcement. Then it streams chunks of the file to the shared topic and waits until
// each node reports the received file or an error. Remote errors are counted in the TransferResult,
// only setup failures are returned as an error.
package distributor

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ccoveille/go-safecast"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/keboola/go-cluster-filesync/internal/pkg/ctxattr"
	"github.com/keboola/go-cluster-filesync/internal/pkg/idgenerator"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distribution"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/kvstore"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/latch"
)

const (
	LockName          = "file-distribution"
	TransfersKeyspace = "filesync.transfers"
	publishTimeout    = 30 * time.Second
	unlockTimeout     = 30 * time.Second
)

type Coordinator struct {
	config    Config
	nodeID    string
	logger    log.Logger
	clock     clock.Clock
	telemetry telemetry.Telemetry
	metrics   *metrics
	fs        afero.Fs
	node      *distribution.Node
	locker    distlock.Locker
	topic     *pubsub.Topic[Message]
	transfers kvstore.TypedMap[TransferRecord]
	pool      *workerPool

	ctx    context.Context
	cancel context.CancelCauseFunc

	discard *atomic.Bool
	closed  *atomic.Bool

	lock         *sync.Mutex
	session      *session
	receivers    map[string]*receiver
	subscription pubsub.Subscription
}

type dependencies interface {
	Logger() log.Logger
	Clock() clock.Clock
	Process() *servicectx.Process
	Telemetry() telemetry.Telemetry
	Filesystem() afero.Fs
	DistributionNode() *distribution.Node
	PubSub() pubsub.Bus
	Locker() distlock.Locker
	TransfersMap() kvstore.Map
}

// New creates the coordinator and subscribes to the protocol topic.
// The coordinator stops on the Process shutdown.
func New(d dependencies, cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bus := d.PubSub()
	c := &Coordinator{
		config:    cfg,
		nodeID:    bus.NodeID(),
		logger:    d.Logger().WithComponent("distributor").With(attribute.String("node", bus.NodeID())),
		clock:     d.Clock(),
		telemetry: d.Telemetry(),
		metrics:   newMetrics(d.Telemetry().Meter()),
		fs:        d.Filesystem(),
		node:      d.DistributionNode(),
		locker:    d.Locker(),
		topic:     pubsub.NewTopic[Message](bus, cfg.Topic, d.Logger()),
		transfers: kvstore.NewTypedMap[TransferRecord](d.TransfersMap()),
		pool:      newWorkerPool(cfg.Workers),
		discard:   atomic.NewBool(false),
		closed:    atomic.NewBool(false),
		lock:      &sync.Mutex{},
		receivers: make(map[string]*receiver),
	}

	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	var err error
	c.subscription, err = c.topic.Subscribe(c.onMessage)
	if err != nil {
		return nil, err
	}

	d.Process().OnShutdown(func(ctx context.Context) {
		c.logger.Info(ctx, "received shutdown request")
		c.Shutdown(ctx)
		c.logger.Info(ctx, "shutdown done")
	})

	return c, nil
}

// MarkDiscard makes the node drop received chunks, the node still responds to the sender.
func (c *Coordinator) MarkDiscard() {
	c.discard.Store(true)
}

func (c *Coordinator) UnmarkDiscard() {
	c.discard.Store(false)
}

func (c *Coordinator) IsDiscarding() bool {
	return c.discard.Load()
}

// Distribute sends the file to all other nodes.
// It returns an error only if the distribution could not begin or has been interrupted.
// A partial failure and the receipt timeout are reported by the TransferResult.
func (c *Coordinator) Distribute(ctx context.Context, path string) (result TransferResult, err error) {
	ctx, span := c.telemetry.Tracer().Start(ctx, "keboola.go.filesync.distributor.Distribute")
	defer span.End(&err)

	if c.closed.Load() {
		return TransferResult{}, errors.New("the distributor has been shut down")
	}

	chunkSize, err := safecast.ToInt(c.config.ChunkSize.Bytes())
	if err != nil {
		return TransferResult{}, errors.PrefixError(err, "invalid chunk size")
	}
	reader, err := chunk.NewReader(c.fs, path, chunkSize, c.config.ReadMode)
	if err != nil {
		return TransferResult{}, err
	}
	file, err := chunk.ReadAttributes(c.fs, path)
	if err != nil {
		return TransferResult{}, err
	}

	// Acquire
	mutex := c.locker.NewMutex(LockName)
	if ok, err := mutex.TryLock(ctx, c.config.LockAcquireTimeout); err != nil {
		if ctx.Err() != nil {
			return TransferResult{}, InterruptedError{Phase: PhaseIdle, err: err}
		}
		return TransferResult{}, errors.PrefixErrorf(err, `cannot acquire the lock "%s"`, LockName)
	} else if !ok {
		return TransferResult{}, BusyError{LockName: LockName, Timeout: c.config.LockAcquireTimeout}
	}

	// Release on every exit path
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if err := mutex.Unlock(unlockCtx); err != nil {
			c.logger.Errorf(unlockCtx, `cannot release the lock "%s": %s`, LockName, err)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s := newSession(c.clock, idgenerator.TransferID(), file, max(0, c.node.Size()-1), cancel)
	if err := c.startSession(s); err != nil {
		return TransferResult{}, err
	}
	defer c.endSession(s)

	span.SetAttributes(attribute.String("transfer.id", s.transferID), attribute.Int("transfer.expectedAcks", s.expected))
	s.onPhase = func(p Phase) { span.AddEvent("phase." + p.String()) }
	ctx = ctxattr.ContextWith(ctx, attribute.String("transfer.id", s.transferID))
	logger := c.logger
	logger.Infof(ctx, `distributing the file "%s", %d B, to %d nodes`, file.Name, file.Size, s.expected)

	result, err = c.run(ctx, logger, s, reader)
	c.storeRecord(ctx, logger, s, result, err)

	status := StatusFailed
	if err == nil {
		status = result.Status
		logger.Infof(ctx, `distribution of the file "%s" %s, errors %d of %d nodes`, file.Name, result.Status, result.ErrorCount, s.expected)
	} else {
		logger.Warnf(ctx, `distribution of the file "%s" failed: %s`, file.Name, err)
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	c.metrics.transfers.Add(ctx, 1, attrs)
	c.metrics.duration.Record(ctx, float64(c.clock.Since(s.startedAt).Milliseconds()), attrs)

	return result, err
}

// Shutdown stops receiving, interrupts the running distribution and waits for receiving tasks.
func (c *Coordinator) Shutdown(ctx context.Context) {
	if c.closed.Swap(true) {
		return
	}

	c.cancel(InterruptedError{Phase: PhaseIdle, err: errors.New("the node is shutting down")})

	c.lock.Lock()
	if c.session != nil {
		c.session.cancel(InterruptedError{Phase: c.session.Phase(), err: errors.New("the node is shutting down")})
	}
	c.lock.Unlock()

	c.pool.Wait()
	c.subscription.Unsubscribe()
}

func (c *Coordinator) run(ctx context.Context, logger log.Logger, s *session, reader *chunk.Reader) (TransferResult, error) {
	// Cluster of one node
	if s.expected == 0 {
		s.setPhase(PhaseDone)
		return s.result(StatusFinished, c.clock.Since(s.startedAt)), nil
	}

	// Announce
	s.setPhase(PhaseAwaitingSendAck)
	if err := c.topic.Publish(ctx, Message{Kind: KindSendFile, TransferID: s.transferID, File: &s.file}); err != nil {
		return TransferResult{}, errors.PrefixError(err, "cannot announce the file")
	}
	if err := s.sendAcks.Wait(ctx, c.config.SendAckTimeout); err != nil {
		c.abort(ctx, s)
		if errors.Is(err, latch.ErrTimeout) {
			return TransferResult{}, AnnounceTimeoutError{TransferID: s.transferID, Expected: s.expected, Received: s.ackedCount(), Timeout: c.config.SendAckTimeout}
		}
		return TransferResult{}, c.interrupted(ctx, s)
	}
	logger.Debugf(ctx, `all %d nodes acknowledged the announcement`, s.expected)

	// Stream
	s.setPhase(PhaseStreaming)
	sent := 0
	for ch, err := range reader.All(s.file) {
		if err == nil && ctx.Err() != nil {
			err = c.interrupted(ctx, s)
		}
		if err == nil {
			err = c.topic.Publish(ctx, Message{Kind: KindChunk, TransferID: s.transferID, Chunk: &ch})
		}
		if err != nil {
			c.abort(ctx, s)
			return TransferResult{}, err
		}
		sent++
		c.metrics.chunksSent.Add(ctx, 1)
	}
	logger.Debugf(ctx, `sent %d chunks`, sent)

	// Aggregate
	s.setPhase(PhaseAwaitingReceiptAck)
	if err := s.receipts.Wait(ctx, c.config.ReceiptAckTimeout); err != nil {
		if errors.Is(err, latch.ErrTimeout) {
			s.setPhase(PhaseTimedOut)
			logger.Warnf(ctx, `%d of %d nodes didn't respond within %s`, s.receipts.Count(), s.expected, c.config.ReceiptAckTimeout)
			return s.result(StatusTimedOut, c.clock.Since(s.startedAt)), nil
		}
		c.abort(ctx, s)
		return TransferResult{}, c.interrupted(ctx, s)
	}

	s.setPhase(PhaseDone)
	return s.result(StatusFinished, c.clock.Since(s.startedAt)), nil
}

func (c *Coordinator) interrupted(ctx context.Context, s *session) error {
	var interrupted InterruptedError
	if cause := context.Cause(ctx); errors.As(cause, &interrupted) {
		return interrupted
	}
	return InterruptedError{Phase: s.Phase(), err: context.Cause(ctx)}
}

// abort notifies receivers, so they remove the incomplete file.
func (c *Coordinator) abort(ctx context.Context, s *session) {
	c.publish(context.WithoutCancel(ctx), Message{Kind: KindSendFileAbort, TransferID: s.transferID})
}

func (c *Coordinator) storeRecord(ctx context.Context, logger log.Logger, s *session, result TransferResult, runErr error) {
	record := TransferRecord{
		TransferID:   s.transferID,
		FileName:     s.file.Name,
		FileSize:     s.file.Size,
		Sender:       c.nodeID,
		Status:       result.Status,
		ExpectedAcks: s.expected,
		ErrorCount:   result.ErrorCount,
		ErroredNodes: result.ErroredNodes,
		StartedAt:    s.startedAt,
		FinishedAt:   c.clock.Now(),
	}
	if runErr != nil {
		record.Status = StatusFailed
		record.Error = runErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.transfers.PutValue(ctx, s.transferID, record); err != nil {
		logger.Errorf(ctx, `cannot store the transfer record: %s`, err)
	}
}

func (c *Coordinator) startSession(s *session) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session != nil {
		return errors.Errorf(`the transfer "%s" is already running on the node`, c.session.transferID)
	}
	c.session = s
	return nil
}

func (c *Coordinator) endSession(s *session) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session == s {
		c.session = nil
	}
}

// activeSession returns the session of the local distribution, or nil for a stale message.
func (c *Coordinator) activeSession(transferID string) *session {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session != nil && c.session.transferID == transferID {
		return c.session
	}
	return nil
}

func (c *Coordinator) receiver(transferID string) *receiver {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.receivers[transferID]
}

func (c *Coordinator) removeReceiver(r *receiver) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.receivers[r.transferID] == r {
		delete(c.receivers, r.transferID)
	}
}

func (c *Coordinator) publish(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.topic.Publish(ctx, msg); err != nil {
		c.logger.Errorf(ctx, `cannot publish "%s" of the transfer "%s": %s`, msg.Kind, msg.TransferID, err)
	}
}
