package distributor

import (
	"context"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/pubsub"
)

// onMessage is called by the bus, sequentially, for each message of the topic.
func (c *Coordinator) onMessage(ctx context.Context, msg pubsub.TypedMessage[Message]) {
	// Own messages must never count towards own latches
	if msg.IsFrom(c.nodeID) {
		return
	}

	m := msg.Value
	switch m.Kind {
	case KindSendFile:
		c.onSendFile(ctx, msg.Publisher, m)
	case KindSendFileAck:
		if s := c.activeSession(m.TransferID); s != nil && s.onSendAck(msg.Publisher) {
			c.logger.Debugf(ctx, `node "%s" acknowledged the transfer "%s"`, msg.Publisher, m.TransferID)
		}
	case KindChunk:
		c.onChunk(ctx, m)
	case KindRecvFileAck:
		if s := c.activeSession(m.TransferID); s != nil && s.onReceipt(msg.Publisher, false, "") {
			c.logger.Debugf(ctx, `node "%s" received the file of the transfer "%s"`, msg.Publisher, m.TransferID)
		}
	case KindRecvFileErr:
		if s := c.activeSession(m.TransferID); s != nil && s.onReceipt(msg.Publisher, true, m.Error) {
			c.logger.Warnf(ctx, `node "%s" failed to receive the file of the transfer "%s": %s`, msg.Publisher, m.TransferID, m.Error)
		}
	case KindSendFileAbort:
		if r := c.receiver(m.TransferID); r != nil {
			r.cancel(errAbortedBySender)
		}
	default:
		c.logger.Warnf(ctx, `unexpected message kind "%s" from "%s"`, m.Kind, msg.Publisher)
	}
}

func (c *Coordinator) onSendFile(ctx context.Context, sender string, m Message) {
	if c.closed.Load() {
		c.logger.Warnf(ctx, `ignored the transfer "%s", the node is shutting down`, m.TransferID)
		return
	}
	if m.File == nil {
		c.logger.Warnf(ctx, `ignored the transfer "%s" from "%s": file attributes are missing`, m.TransferID, sender)
		return
	}

	c.lock.Lock()
	if _, found := c.receivers[m.TransferID]; found {
		c.lock.Unlock()
		return
	}
	r, err := c.newReceiver(m.TransferID, sender, *m.File)
	if err == nil {
		c.receivers[m.TransferID] = r
	}
	c.lock.Unlock()

	// The sender is acknowledged, even if the receiving cannot start, so it can finish the transfer with other nodes
	c.publish(ctx, Message{Kind: KindSendFileAck, TransferID: m.TransferID})

	if err == nil && !c.pool.TryGo(r.run) {
		c.removeReceiver(r)
		r.cancel(nil)
		err = errNoFreeWorker
	}
	if err != nil {
		c.logger.Warnf(ctx, `cannot receive the transfer "%s": %s`, m.TransferID, err)
		c.publish(ctx, Message{Kind: KindRecvFileErr, TransferID: m.TransferID, Error: err.Error()})
		return
	}

	c.logger.Infof(ctx, `receiving the file "%s" from "%s", transfer "%s"`, m.File.Name, sender, m.TransferID)
}

func (c *Coordinator) onChunk(ctx context.Context, m Message) {
	if m.Chunk == nil {
		c.logger.Warnf(ctx, `ignored chunk message of the transfer "%s": chunk is missing`, m.TransferID)
		return
	}
	r := c.receiver(m.TransferID)
	if r == nil {
		c.logger.Debugf(ctx, `ignored chunk %d of the stale transfer "%s"`, m.Chunk.Ordinal, m.TransferID)
		return
	}
	r.offer(*m.Chunk)
}
