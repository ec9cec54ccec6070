// Package netutils contains TCP helpers used by tests of network endpoints.
package netutils

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const dialTimeout = time.Second

// FreePort returns a TCP port on the localhost, which was free at the time of the call.
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, errors.PrefixError(err, "cannot find a free port")
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// FreeLocalAddr returns "localhost:<port>" with a free port.
func FreeLocalAddr() (string, error) {
	port, err := FreePort()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort("localhost", strconv.Itoa(port)), nil
}

// WaitForTCP blocks until the address accepts a TCP connection or the context is done.
func WaitForTCP(ctx context.Context, addr string) error {
	dialer := &net.Dialer{Timeout: dialTimeout}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}

		select {
		case <-ctx.Done():
			return errors.PrefixErrorf(err, `address "%s" is not reachable`, addr)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
