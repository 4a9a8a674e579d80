package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryTask(t *testing.T) {
	pool := NewPool(context.Background(), 4, 2)

	var count int64
	for i := 0; i < 50; i++ {
		err := pool.Submit(context.Background(), "count", func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.Equal(t, int64(50), atomic.LoadInt64(&count))
	completed, failed := pool.Stats()
	assert.Equal(t, 50, completed)
	assert.Equal(t, 0, failed)
}

func TestPoolFailuresDoNotStopOthers(t *testing.T) {
	pool := NewPool(context.Background(), 2, 1)

	var count int64
	for i := 0; i < 10; i++ {
		i := i
		err := pool.Submit(context.Background(), "maybe", func(ctx context.Context) error {
			if i%2 == 0 {
				return errors.New("boom")
			}
			if i == 3 {
				panic("bad task")
			}
			atomic.AddInt64(&count, 1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	completed, failed := pool.Stats()
	assert.Equal(t, 4, completed)
	assert.Equal(t, 6, failed)
	assert.Equal(t, int64(4), atomic.LoadInt64(&count))
}

func TestPoolLimitsConcurrency(t *testing.T) {
	pool := NewPool(context.Background(), 3, 1)

	var running, peak int64
	for i := 0; i < 12; i++ {
		err := pool.Submit(context.Background(), "slow", func(ctx context.Context) error {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
			return nil
		})
		require.NoError(t, err)
	}
	pool.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestSubmitStopsOnCancelledContext(t *testing.T) {
	pool := NewPool(context.Background(), 1, 1)
	release := make(chan struct{})

	blocking := func(ctx context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, pool.Submit(context.Background(), "running", blocking))
	require.NoError(t, pool.Submit(context.Background(), "queued", blocking))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, "rejected", blocking)

	require.ErrorIs(t, err, context.Canceled)
	close(release)
	pool.Wait()
}
