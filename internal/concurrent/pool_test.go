package concurrent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2)
	var inFlight atomic.Int32
	var maxSeen atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func() error {
				n := inFlight.Add(1)
				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(2), "pool must never admit more than maxWorkers concurrent callers")
}

func TestDoReturnsContextErrorWhenCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	// Saturate the single slot, then cancel before a second call can acquire it.
	block := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func() error {
			<-block
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	err := pool.Do(ctx, func() error { return nil })
	require.Error(t, err)
	close(block)
}

func TestMaxWorkersReportsConfiguredLimit(t *testing.T) {
	pool := NewWorkerPool(3)
	assert.Equal(t, 3, pool.MaxWorkers())
}
