package etcdop

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.etcd.io/etcd/tests/v3/integration"
	"go.uber.org/atomic"

	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
)

func TestResistantSession_Reconnect(t *testing.T) {
	t.Parallel()
	if runtime.GOOS != "linux" {
		t.Skipf(`etcd session is tested only on Linux`)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	wg := &sync.WaitGroup{}

	integration.BeforeTestExternal(t)
	cluster := integration.NewClusterV3(t, &integration.ClusterConfig{Size: 1, UseBridge: true})
	defer cluster.Terminate(t)
	cluster.WaitLeader(t)
	member := cluster.Members[0]

	logger := log.NewDebugLogger()
	sessions := atomic.NewInt32(0)
	err := <-ResistantSession(ctx, wg, logger, cluster.Client(0), 1, func(session *concurrency.Session) error {
		sessions.Inc()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), sessions.Load())

	// The lease expires during the outage, dial timeout is 5 seconds
	member.Bridge().PauseConnections()
	member.Bridge().DropConnections()
	time.Sleep(7 * time.Second)
	member.Bridge().UnpauseConnections()

	assert.Eventually(t, func() bool {
		return sessions.Load() == 2
	}, 10*time.Second, 100*time.Millisecond, logger.AllMessages())
	logger.AssertJSONMessages(t, `
{"level":"info","message":"creating etcd session","component":"etcd-session"}
{"level":"info","message":"created etcd session","component":"etcd-session"}
{"level":"info","message":"re-creating etcd session, backoff delay %s","component":"etcd-session"}
{"level":"info","message":"created etcd session","component":"etcd-session"}
`)
	logger.Truncate()

	cancel()
	wg.Wait()
	logger.AssertJSONMessages(t, `
{"level":"info","message":"closing etcd session","component":"etcd-session"}
`)
}

func TestResistantSession_CallbackError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wg := &sync.WaitGroup{}

	client := etcdhelper.ClusterForTest(t)
	err := <-ResistantSession(ctx, wg, log.NewNopLogger(), client, 5, func(session *concurrency.Session) error {
		return errors.New("callback failed")
	})
	require.Error(t, err)
	assert.Equal(t, "callback failed", err.Error())
	wg.Wait()
}

func TestSessionBackoff(t *testing.T) {
	t.Parallel()

	b := newSessionBackoff()
	b.RandomizationFactor = 0

	clk := &backoffClock{now: time.Now()}
	b.Clock = clk
	b.Reset()

	// Get all delays without sleep
	var delays []time.Duration
	for range 15 {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			assert.Fail(t, "unexpected stop")
			break
		}
		clk.now = clk.now.Add(delay)
		delays = append(delays, delay)
	}

	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
		12800 * time.Millisecond,
		25600 * time.Millisecond,
		51200 * time.Millisecond,
		time.Minute,
		time.Minute,
		time.Minute,
		time.Minute,
	}, delays)
}

type backoffClock struct {
	now time.Time
}

func (c *backoffClock) Now() time.Time {
	return c.now
}
