package perfdata

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
)

// DefaultQueueCapacity mirrors the original's bounded priority task
// queue (default capacity ~10M), kept far smaller here since this is an
// in-memory bound per writer, not a hard resource ceiling to size
// production queues to.
const DefaultQueueCapacity = 100000

// Task is one queued unit of work for a writer's single worker: render
// and send one record. Fn is run on the worker goroutine with the
// context passed to Resume.
type Task struct {
	Fn       func(ctx context.Context) error
	Priority int

	seq uint64
}

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// Writer is the generic bounded-queue, single-worker perfdata writer
// framework every concrete sink (graphite, influxdb, otlp...) embeds.
type Writer struct {
	name     string
	capacity int
	logger   zerolog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    taskHeap
	nextSeq  uint64
	paused   bool
	stopped  bool

	wg sync.WaitGroup
}

// NewWriter builds a Writer named name with the given bounded capacity
// (DefaultQueueCapacity if <= 0).
func NewWriter(name string, capacity int) *Writer {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	w := &Writer{
		name:     name,
		capacity: capacity,
		logger:   log.WithComponent("perfdata." + name),
		paused:   true,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue adds t to the queue. If the queue is at capacity, the lowest-
// priority / oldest task is dropped to make room, and the drop counter
// is incremented — enqueue never blocks the caller.
func (w *Writer) Enqueue(t Task) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	t.seq = w.nextSeq
	w.nextSeq++

	if len(w.queue) >= w.capacity {
		victim := 0
		for i, q := range w.queue {
			v := w.queue[victim]
			if q.Priority < v.Priority || (q.Priority == v.Priority && q.seq < v.seq) {
				victim = i
			}
		}
		heap.Remove(&w.queue, victim)
		metrics.PerfdataDroppedTotal.WithLabelValues(w.name).Inc()
	}
	heap.Push(&w.queue, &t)
	metrics.PerfdataQueueDepth.WithLabelValues(w.name).Set(float64(len(w.queue)))
	w.cond.Signal()
}

// Resume starts the worker goroutine, which runs until ctx is canceled
// or Pause or Stop is called.
func (w *Writer) Resume(ctx context.Context) {
	w.mu.Lock()
	w.paused = false
	w.stopped = false
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	}()

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.paused && ctx.Err() == nil {
			w.cond.Wait()
		}
		if w.paused || ctx.Err() != nil {
			w.mu.Unlock()
			return
		}
		task := heap.Pop(&w.queue).(*Task)
		metrics.PerfdataQueueDepth.WithLabelValues(w.name).Set(float64(len(w.queue)))
		w.mu.Unlock()

		obs := metrics.NewTimer()
		if err := task.Fn(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("perfdata task failed")
		}
		obs.ObserveDurationVec(metrics.PerfdataFlushLatency, w.name)
	}
}

// Pause stops the worker from taking further tasks, discards anything
// still queued, and waits at most drain for the worker to exit. A task
// already running is not canceled and no sink connection is closed; if
// that task outlasts drain, Pause returns while it is still running.
func (w *Writer) Pause(drain time.Duration) {
	w.mu.Lock()
	w.paused = true
	w.queue = nil
	w.cond.Broadcast()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drain):
		w.logger.Warn().Msg("pause drain timed out, worker may still be finishing in-flight send")
	}
}

// Stop permanently stops the writer: no further enqueues are accepted
// and the queue is discarded.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.paused = true
	w.queue = nil
	w.cond.Broadcast()
	w.mu.Unlock()
}

// QueueDepth returns the current number of queued tasks.
func (w *Writer) QueueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
