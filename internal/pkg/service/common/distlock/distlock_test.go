package distlock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/distlock"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/etcdhelper"
)

func TestMemoryProvider(t *testing.T) {
	t.Parallel()
	provider := distlock.NewMemoryProvider()
	testLocker(t, provider, provider)
}

func TestEtcdProvider(t *testing.T) {
	t.Parallel()

	etcdClient := etcdhelper.ClusterForTest(t)
	d1 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithEnabledDistributedLocks())
	d2 := dependencies.NewMocked(t, dependencies.WithEtcdClient(etcdClient), dependencies.WithEnabledDistributedLocks())
	testLocker(t, d1.DistributedLockProvider(), d2.DistributedLockProvider())
}

func TestEtcdProvider_Keys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := dependencies.NewMocked(t, dependencies.WithEnabledDistributedLocks())
	client := d.TestEtcdClient()

	mtx := d.DistributedLockProvider().NewMutex("my-lock")
	require.NoError(t, mtx.Lock(ctx))
	etcdhelper.AssertKeys(t, client, []string{"runtime/lock/my-lock/%s"})

	require.NoError(t, mtx.Unlock(ctx))
	etcdhelper.AssertKeys(t, client, nil)
}

func TestEtcdProvider_ForceUnlockSameNode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := dependencies.NewMocked(t, dependencies.WithEnabledDistributedLocks())
	provider := d.DistributedLockProvider()

	holder := provider.NewMutex("forced")
	require.NoError(t, holder.Lock(ctx))

	// The keys are removed, but the holder on this node still blocks local mutexes
	require.NoError(t, provider.NewMutex("forced").ForceUnlock(ctx))
	etcdhelper.AssertKeys(t, d.TestEtcdClient(), nil)
	assert.True(t, holder.IsLocked())

	other := provider.NewMutex("forced")
	ok, err := other.TryLock(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, holder.Unlock(ctx))
	ok, err = other.TryLock(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, other.Unlock(ctx))
}

// testLocker tests mutexes from two nodes, both lockers must share the same cluster.
func testLocker(t *testing.T, node1, node2 distlock.Locker) {
	t.Helper()
	ctx := context.Background()

	t.Run("exclusive", func(t *testing.T) {
		m1 := node1.NewMutex("exclusive")
		m2 := node2.NewMutex("exclusive")

		ok, err := m1.TryLock(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, m1.IsLocked())

		// Timeout is not an error
		ok, err = m2.TryLock(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, m2.IsLocked())

		// The same node cannot acquire the lock twice
		m3 := node1.NewMutex("exclusive")
		ok, err = m3.TryLock(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, m1.Unlock(ctx))
		assert.False(t, m1.IsLocked())

		ok, err = m2.TryLock(ctx, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, m2.Unlock(ctx))
	})

	t.Run("unlock not held", func(t *testing.T) {
		m1 := node1.NewMutex("not-held")
		m2 := node2.NewMutex("not-held")

		err := m1.Unlock(ctx)
		var notLockedErr distlock.NotLockedError
		require.True(t, errors.As(err, &notLockedErr))
		assert.Equal(t, `lock "not-held" is not held`, err.Error())

		require.NoError(t, m1.Lock(ctx))
		require.Error(t, m2.Unlock(ctx))
		assert.True(t, m1.IsLocked())
		require.NoError(t, m1.Unlock(ctx))
	})

	t.Run("force unlock", func(t *testing.T) {
		m1 := node1.NewMutex("forced")
		m2 := node2.NewMutex("forced")

		// Idempotent on an unlocked lock
		require.NoError(t, m2.ForceUnlock(ctx))

		require.NoError(t, m1.Lock(ctx))
		require.NoError(t, m2.ForceUnlock(ctx))
		require.NoError(t, m2.ForceUnlock(ctx))

		ok, err := m2.TryLock(ctx, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, m2.Unlock(ctx))
	})

	t.Run("waiting", func(t *testing.T) {
		m1 := node1.NewMutex("waiting")
		m2 := node2.NewMutex("waiting")
		require.NoError(t, m1.Lock(ctx))

		wg := &sync.WaitGroup{}
		wg.Add(1)
		acquired := make(chan struct{})
		go func() {
			defer wg.Done()
			ok, err := m2.TryLock(ctx, 10*time.Second)
			assert.NoError(t, err)
			assert.True(t, ok)
			close(acquired)
		}()

		select {
		case <-acquired:
			assert.Fail(t, "lock acquired while held by another node")
		case <-time.After(100 * time.Millisecond):
		}

		require.NoError(t, m1.Unlock(ctx))
		wg.Wait()
		require.NoError(t, m2.Unlock(ctx))
	})

	t.Run("cancelled context", func(t *testing.T) {
		m1 := node1.NewMutex("cancelled")
		m2 := node2.NewMutex("cancelled")
		require.NoError(t, m1.Lock(ctx))

		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()
		ok, err := m2.TryLock(cancelledCtx, time.Second)
		assert.False(t, ok)
		require.ErrorIs(t, err, context.Canceled)
		require.NoError(t, m1.Unlock(ctx))
	})
}
