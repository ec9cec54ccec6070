// nolint:forbidigo // allow usage of the "zap" package
package log

import (
	"bufio"
	"io"
	"strings"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/ioutil"
)

// DebugLogger keeps all messages in the memory as JSON lines, it is used in tests.
type DebugLogger interface {
	Logger
	ConnectTo(writer io.Writer)
	Truncate()
	AllMessages() string
	WarnAndErrorMessages() string
	ErrorMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	*zapLogger
	all *ioutil.AtomicWriter
}

func NewDebugLogger() DebugLogger {
	all := ioutil.NewAtomicWriter()
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	return &debugLogger{
		zapLogger: loggerFromZapCore(zapcore.NewCore(encoder, all, DebugLevel)),
		all:       all,
	}
}

// ConnectTo copies all following JSON records to the writer.
func (l *debugLogger) ConnectTo(writer io.Writer) {
	l.all.ConnectTo(writer)
}

func (l *debugLogger) Truncate() {
	l.all.Truncate()
}

func (l *debugLogger) AllMessages() string {
	return l.all.String()
}

func (l *debugLogger) WarnAndErrorMessages() string {
	return filterByLevel(l.all.String(), `"level":"warn"`, `"level":"error"`)
}

func (l *debugLogger) ErrorMessages() string {
	return filterByLevel(l.all.String(), `"level":"error"`)
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

func filterByLevel(all string, levels ...string) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(all))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		for _, level := range levels {
			if strings.Contains(line, level) {
				out.WriteString(line)
				out.WriteString("\n")
				break
			}
		}
	}
	return out.String()
}
