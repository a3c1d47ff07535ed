package timer

import (
	"container/heap"
	"sync"
	"time"
)

// epsilon bounds how far in the future "due" entries may be peeked before
// the wheel goes back to waiting on the condition variable; it exists so
// AdjustTimers-driven wakeups don't spin.
const epsilon = 10 * time.Millisecond

// Callback is invoked with the entry's id when a timer fires.
type Callback func(id string)

// entry is one scheduled timer. Periodic entries (Interval > 0) are
// re-inserted at completion+Interval; one-shot entries are discarded.
type entry struct {
	id       string
	nextFire time.Time
	interval time.Duration
	callback Callback
	running  bool
	started  bool
	index    int // heap index, maintained by container/heap
}

// entryHeap is a min-heap over entry.nextFire.
type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].nextFire.Before(h[j].nextFire) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Wheel is the shared timer index. At most one concurrent execution per
// timer id is guaranteed; two different timers may run concurrently, up
// to the configured worker pool size.
type Wheel struct {
	mu   sync.Mutex
	cond *sync.Cond

	entries map[string]*entry
	heap    entryHeap

	sem    chan struct{} // bounds concurrent callback dispatch
	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time // overridable for tests
}

// New creates a Wheel whose callback dispatch is bounded to poolSize
// concurrent goroutines.
func New(poolSize int) *Wheel {
	if poolSize <= 0 {
		poolSize = 1
	}
	w := &Wheel{
		entries: make(map[string]*entry),
		sem:     make(chan struct{}, poolSize),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Start launches the wheel's dispatch goroutine.
func (w *Wheel) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop halts the dispatch goroutine and waits for every callback it has
// already dispatched to return.
func (w *Wheel) Stop() {
	close(w.stopCh)
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()
}

// Schedule registers a new timer. interval == 0 means one-shot: the
// callback fires once at `at` and is then discarded.
func (w *Wheel) Schedule(id string, at time.Time, interval time.Duration, cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e := &entry{id: id, nextFire: at, interval: interval, callback: cb, started: true}
	w.entries[id] = e
	heap.Push(&w.heap, e)
	w.cond.Broadcast()
}

// Reschedule moves an existing timer's next fire time. It does nothing
// for an id that is not registered or whose callback is currently
// running: a running periodic entry is re-inserted at completion plus its
// interval, and a running one-shot is discarded when its callback returns.
func (w *Wheel) Reschedule(id string, next time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[id]
	if !ok || e.running {
		return
	}
	e.nextFire = next
	heap.Fix(&w.heap, e.index)
	w.cond.Broadcast()
}

// StopTimer cancels a registered timer. If wait is true, it blocks until any
// in-flight callback for that id has completed.
func (w *Wheel) StopTimer(id string, wait bool) {
	w.mu.Lock()
	e, ok := w.entries[id]
	if ok {
		delete(w.entries, id)
		if e.index >= 0 && e.index < len(w.heap) && w.heap[e.index] == e {
			heap.Remove(&w.heap, e.index)
		}
	}
	w.mu.Unlock()

	if !wait || !ok {
		return
	}
	for {
		w.mu.Lock()
		running := e.running
		w.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// AdjustTimers shifts every entry whose adjusted next-fire is closer to
// now by delta — used when a wall-clock jump is detected, so timers that
// would otherwise fire far in the future (or have already "fired" in the
// past, clock-wise) snap back to a sane schedule.
func (w *Wheel) AdjustTimers(delta time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for _, e := range w.entries {
		adjusted := e.nextFire.Add(delta)
		if delta < 0 && adjusted.Before(now) {
			adjusted = now
		}
		if absDuration(adjusted.Sub(now)) < absDuration(e.nextFire.Sub(now)) {
			e.nextFire = adjusted
		}
	}
	heap.Init(&w.heap)
	w.cond.Broadcast()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// run is the dedicated wheel goroutine: peek earliest, wait or dispatch.
func (w *Wheel) run() {
	defer w.wg.Done()

	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		if len(w.heap) == 0 {
			w.cond.Wait()
			continue
		}

		next := w.heap[0]
		wait := next.nextFire.Sub(w.now())
		if wait > epsilon {
			w.waitTimeout(wait)
			continue
		}

		e := heap.Pop(&w.heap).(*entry)
		e.running = true

		w.mu.Unlock()
		w.dispatch(e)
		w.mu.Lock()
	}
}

// waitTimeout releases the lock, sleeps up to d (or until broadcast),
// then re-acquires it; used instead of cond.Wait for bounded waits.
func (w *Wheel) waitTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	w.cond.Wait()
	timer.Stop()
}

// dispatch submits the callback to the bounded pool and, on completion,
// re-inserts periodic entries at now+interval.
func (w *Wheel) dispatch(e *entry) {
	w.sem <- struct{}{}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		e.callback(e.id)

		w.mu.Lock()
		e.running = false
		if e.interval > 0 {
			if _, stillRegistered := w.entries[e.id]; stillRegistered {
				e.nextFire = w.now().Add(e.interval)
				heap.Push(&w.heap, e)
			}
		} else {
			delete(w.entries, e.id)
		}
		w.cond.Broadcast()
		w.mu.Unlock()
	}()
}
