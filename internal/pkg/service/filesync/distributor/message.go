package distributor

import (
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/chunk"
)

type MessageKind string

const (
	KindSendFile      MessageKind = "SEND_FILE"
	KindSendFileAck   MessageKind = "SEND_FILE_ACK"
	KindChunk         MessageKind = "CHUNK"
	KindRecvFileAck   MessageKind = "RECV_FILE_ACK"
	KindRecvFileErr   MessageKind = "RECV_FILE_ERR"
	KindSendFileAbort MessageKind = "SEND_FILE_ABORT"
)

// Message of the distribution protocol, all nodes use one topic.
type Message struct {
	Kind       MessageKind           `json:"kind"`
	TransferID string                `json:"transferId"`
	File       *chunk.FileAttributes `json:"file,omitempty"`
	Chunk      *chunk.FileChunk      `json:"chunk,omitempty"`
	Error      string                `json:"error,omitempty"`
}
