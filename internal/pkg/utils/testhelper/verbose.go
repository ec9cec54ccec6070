// nolint forbidigo
package testhelper

import (
	"io"
	"os"
	"strings"
)

// TestIsVerbose returns true if the TEST_VERBOSE=true, then logs are printed to stdout.
func TestIsVerbose() bool {
	value := strings.ToLower(os.Getenv("TEST_VERBOSE"))
	return value == "true" || value == "1"
}

// VerboseStdout returns os.Stdout in the verbose mode, otherwise io.Discard.
func VerboseStdout() io.Writer {
	if TestIsVerbose() {
		return os.Stdout
	}
	return io.Discard
}
