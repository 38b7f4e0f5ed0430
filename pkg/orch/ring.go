package orch

import (
	"context"
	"sync"
)

// DefaultRingSize is the ring capacity used when none is configured.
const DefaultRingSize = 30

// AnyTask is a deferred zero-argument action.
type AnyTask func()

// RingBuffer is a fixed-capacity circular queue of deferred actions
// handed from producers to a drainer goroutine. It is the explicitly
// owned scheduler injected into executors at construction; tables it
// serves have all their side effects funneled through the drainer,
// which serializes them.
//
// All mutating operations hold one mutex; PauseThread/Notify use a
// condition variable keyed off it. Full/empty are disambiguated by an
// explicit count, not by index equality.
type RingBuffer struct {
	mu    sync.Mutex
	cv    *sync.Cond
	buf   []AnyTask
	head  int
	tail  int
	count int

	served map[string]struct{}

	idle     bool
	notified bool
	exit     bool
}

// NewRingBuffer creates a ring with the given capacity, falling back
// to DefaultRingSize for non-positive sizes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	r := &RingBuffer{
		buf:    make([]AnyTask, size),
		served: make(map[string]struct{}),
		idle:   true,
	}
	r.cv = sync.NewCond(&r.mu)
	return r
}

// Push enqueues a task at the tail and wakes waiters. Returns false
// without modifying the buffer when it is at capacity.
func (r *RingBuffer) Push(task AnyTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == len(r.buf) {
		return false
	}
	r.buf[r.tail] = task
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	r.cv.Broadcast()
	return true
}

// Pop dequeues a task from the head. Returns false when empty.
func (r *RingBuffer) Pop() (AnyTask, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, false
	}
	task := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return task, true
}

// PauseThread blocks the calling goroutine until the buffer becomes
// non-empty, Notify is called, or exit is requested. This is the only
// blocking call in the core.
func (r *RingBuffer) PauseThread() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.count == 0 && !r.notified && !r.exit {
		r.cv.Wait()
	}
	r.notified = false
}

// Notify wakes a goroutine blocked in PauseThread.
func (r *RingBuffer) Notify() {
	r.mu.Lock()
	r.notified = true
	r.cv.Broadcast()
	r.mu.Unlock()
}

// RequestExit asks the drainer to stop and wakes it if parked. Tasks
// already queued are still drained before the drainer returns.
func (r *RingBuffer) RequestExit() {
	r.mu.Lock()
	r.exit = true
	r.cv.Broadcast()
	r.mu.Unlock()
}

// ExitRequested reports whether RequestExit was called.
func (r *RingBuffer) ExitRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exit
}

// IsFull reports whether the buffer is at capacity.
func (r *RingBuffer) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == len(r.buf)
}

// IsEmpty reports whether the buffer holds no tasks.
func (r *RingBuffer) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count == 0
}

// Depth returns the number of queued tasks.
func (r *RingBuffer) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// IsIdle reports whether the drainer is currently parked. Producers
// use it to decide whether an explicit Notify is needed after Push.
func (r *RingBuffer) IsIdle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idle
}

// SetIdle records whether the drainer is parked.
func (r *RingBuffer) SetIdle(idle bool) {
	r.mu.Lock()
	r.idle = idle
	r.mu.Unlock()
}

// AddExecutor registers an executor's table as served by this ring.
func (r *RingBuffer) AddExecutor(e *Executor) {
	r.mu.Lock()
	r.served[e.Name()] = struct{}{}
	r.mu.Unlock()
}

// Serves reports whether tasks for the named table are routed through
// this ring.
func (r *RingBuffer) Serves(tableName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.served[tableName]
	return ok
}

// Run drains the ring until the context is cancelled and the buffer is
// empty. The exit flag is checked between pops, never mid-task.
func (r *RingBuffer) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, r.RequestExit)
	defer stop()

	for {
		task, ok := r.Pop()
		if ok {
			task()
			continue
		}
		if r.ExitRequested() {
			return
		}
		r.SetIdle(true)
		r.PauseThread()
		r.SetIdle(false)
	}
}
