package merge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak int32
	var mu sync.Mutex

	jobs := make([]*Job, 0, 6)
	for i := 0; i < 6; i++ {
		jobs = append(jobs, p.Submit(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		}))
	}
	for _, j := range jobs {
		require.NoError(t, j.Wait(context.Background()))
	}
	assert.LessOrEqual(t, peak, int32(2))
}

func TestPool_ReturnsJobError(t *testing.T) {
	boom := errors.New("boom")
	j := NewPool(1).Submit(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, j.Wait(context.Background()), boom)
}

func TestPool_CancelStopsJob(t *testing.T) {
	j := NewPool(1).Submit(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	j.Cancel()
	<-j.Done()
	assert.ErrorIs(t, j.Wait(context.Background()), context.Canceled)
}

func TestPool_WaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	j := NewPool(1).Submit(context.Background(), func(ctx context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, j.Wait(ctx), context.DeadlineExceeded)
	close(release)
	assert.NoError(t, j.Wait(context.Background()))
}
