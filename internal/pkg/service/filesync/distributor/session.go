package distributor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/latch"
)

const (
	PhaseIdle Phase = iota
	PhaseAwaitingSendAck
	PhaseStreaming
	PhaseAwaitingReceiptAck
	PhaseDone
	PhaseTimedOut
)

// Phase of the sender state machine.
type Phase int32

// session is the state of one Distribute call on the sender node.
type session struct {
	transferID string
	file       chunk.FileAttributes
	expected   int
	startedAt  time.Time
	cancel     context.CancelCauseFunc

	phase   *atomic.Int32
	onPhase func(Phase)
	// sendAcks counts down SEND_FILE_ACK messages
	sendAcks *latch.Latch
	// receipts counts down RECV_FILE_ACK and RECV_FILE_ERR messages
	receipts *latch.Latch

	lock      *sync.Mutex
	acked     map[string]bool
	responded map[string]bool
	errored   map[string]string
}

func newSession(clk clock.Clock, transferID string, file chunk.FileAttributes, expected int, cancel context.CancelCauseFunc) *session {
	return &session{
		transferID: transferID,
		file:       file,
		expected:   expected,
		startedAt:  clk.Now(),
		cancel:     cancel,
		phase:      atomic.NewInt32(int32(PhaseIdle)),
		sendAcks:   latch.New(clk, expected),
		receipts:   latch.New(clk, expected),
		lock:       &sync.Mutex{},
		acked:      make(map[string]bool),
		responded:  make(map[string]bool),
		errored:    make(map[string]string),
	}
}

func (s *session) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *session) setPhase(p Phase) {
	s.phase.Store(int32(p))
	if s.onPhase != nil {
		s.onPhase(p)
	}
}

// onSendAck counts each node only once, it returns false for a duplicate.
func (s *session) onSendAck(nodeID string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.acked[nodeID] {
		return false
	}
	s.acked[nodeID] = true
	s.sendAcks.CountDown()
	return true
}

// onReceipt counts each node only once, errMsg is empty for RECV_FILE_ACK.
func (s *session) onReceipt(nodeID string, failed bool, errMsg string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.responded[nodeID] {
		return false
	}
	s.responded[nodeID] = true
	if failed {
		s.errored[nodeID] = errMsg
	}
	s.receipts.CountDown()
	return true
}

func (s *session) ackedCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.acked)
}

func (s *session) result(status TransferStatus, duration time.Duration) TransferResult {
	s.lock.Lock()
	defer s.lock.Unlock()

	nodes := make([]string, 0, len(s.errored))
	errs := make(map[string]string, len(s.errored))
	for node, msg := range s.errored {
		nodes = append(nodes, node)
		errs[node] = msg
	}
	slices.Sort(nodes)

	return TransferResult{
		TransferID:   s.transferID,
		FileName:     s.file.Name,
		Status:       status,
		ExpectedAcks: s.expected,
		ErrorCount:   len(nodes),
		ErroredNodes: nodes,
		Errors:       errs,
		Duration:     duration,
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingSendAck:
		return "awaitingSendAck"
	case PhaseStreaming:
		return "streaming"
	case PhaseAwaitingReceiptAck:
		return "awaitingReceiptAck"
	case PhaseDone:
		return "done"
	case PhaseTimedOut:
		return "timedOut"
	default:
		return "unknown"
	}
}
