package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_ExecutesSubmittedTask(t *testing.T) {
	r := NewRunner(2, 8, nil)

	done := make(chan struct{})
	ok := r.Submit("test-task", func(ctx context.Context) {
		close(done)
	})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was never executed")
	}

	require.NoError(t, r.Close(context.Background()))
}

func TestRunner_PanicDoesNotKillWorker(t *testing.T) {
	r := NewRunner(1, 8, nil)

	r.Submit("panics", func(ctx context.Context) {
		panic("boom")
	})

	done := make(chan struct{})
	r.Submit("survives", func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panicking task")
	}

	require.NoError(t, r.Close(context.Background()))
}

func TestRunner_CloseDrainsInFlightTasks(t *testing.T) {
	r := NewRunner(2, 8, nil)

	var completed atomic.Int32
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 3; i++ {
		r.Submit("slow", func(ctx context.Context) {
			started.Done()
			time.Sleep(50 * time.Millisecond)
			completed.Add(1)
		})
	}
	started.Wait()

	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, int32(3), completed.Load())
}

func TestRunner_CloseHonorsContextDeadline(t *testing.T) {
	r := NewRunner(1, 8, nil)

	release := make(chan struct{})
	defer close(release)

	running := make(chan struct{})
	r.Submit("blocked", func(ctx context.Context) {
		close(running)
		<-release
	})
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
}

func TestRunner_SubmitAfterCloseIsRejected(t *testing.T) {
	r := NewRunner(1, 8, nil)
	require.NoError(t, r.Close(context.Background()))

	ok := r.Submit("late", func(ctx context.Context) {
		t.Error("task must not run after close")
	})
	assert.False(t, ok)
}

func TestRunner_ConcurrencyIsBoundedByWorkers(t *testing.T) {
	const workers = 2
	r := NewRunner(workers, 64, nil)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		r.Submit("bounded", func(ctx context.Context) {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(workers))
	require.NoError(t, r.Close(context.Background()))
}
