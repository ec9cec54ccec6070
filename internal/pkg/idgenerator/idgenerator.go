// nolint: gochecknoglobals
package idgenerator

import gonanoid "github.com/matoous/go-nanoid/v2"

const (
	TransferIDLength           = 20
	MessageIDLength            = 16
	EtcdNamespaceForTestLength = 10
)

// alphabet used in ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func TransferID() string {
	return gonanoid.MustGenerate(alphabet, TransferIDLength)
}

func MessageID() string {
	return gonanoid.MustGenerate(alphabet, MessageIDLength)
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, EtcdNamespaceForTestLength)
}

func Random(length int) string {
	return gonanoid.MustGenerate(alphabet, length)
}
