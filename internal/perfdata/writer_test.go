package perfdata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterRunsEnqueuedTasksInPriorityOrder(t *testing.T) {
	w := NewWriter("test", 10)

	var mu sync.Mutex
	var order []int

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	record := func(n int) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
			return nil
		}
	}

	w.Enqueue(Task{Fn: record(1), Priority: 0})
	w.Enqueue(Task{Fn: record(2), Priority: 5})
	w.Enqueue(Task{Fn: record(3), Priority: 5})

	w.Resume(ctx)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{2, 3, 1}, order)
}

func TestWriterDropsOldestWhenFull(t *testing.T) {
	w := NewWriter("test", 2)

	var ran int32
	block := make(chan struct{})
	w.Enqueue(Task{Fn: func(context.Context) error { <-block; atomic.AddInt32(&ran, 1); return nil }})
	w.Enqueue(Task{Fn: func(context.Context) error { atomic.AddInt32(&ran, 1); return nil }})
	w.Enqueue(Task{Fn: func(context.Context) error { atomic.AddInt32(&ran, 1); return nil }})

	require.Equal(t, 2, w.QueueDepth())
	close(block)
}

func TestWriterPauseReturnsPromptly(t *testing.T) {
	w := NewWriter("test", 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Enqueue(Task{Fn: func(context.Context) error { time.Sleep(5 * time.Second); return nil }})
	w.Resume(ctx)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	w.Pause(50 * time.Millisecond)
	require.Less(t, time.Since(start), time.Second)
}

func TestWriterPauseDiscardsQueuedTasks(t *testing.T) {
	w := NewWriter("test", 10)
	block := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Enqueue(Task{Fn: func(context.Context) error { <-block; return nil }})
	w.Enqueue(Task{Fn: func(context.Context) error { return nil }})
	w.Enqueue(Task{Fn: func(context.Context) error { return nil }})
	w.Resume(ctx)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 2, w.QueueDepth())
	w.Pause(50 * time.Millisecond)
	require.Equal(t, 0, w.QueueDepth())

	close(block)
	w.Resume(ctx)
	require.Equal(t, 0, w.QueueDepth())
}
