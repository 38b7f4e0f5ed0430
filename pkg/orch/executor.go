package orch

import (
	"time"

	"go.uber.org/zap"
)

// Executor adapts one event source into the dispatch loop's polling
// contract and ties it to its owning Orch. One Orch owns one or more
// Executors; an Executor belongs to exactly one Orch.
type Executor struct {
	source EventSource
	orch   *Orch
	name   string
	ring   *RingBuffer
	logger *zap.Logger
}

// NewExecutor wraps an event source. ring may be nil when no shared
// scheduler is in use.
func NewExecutor(source EventSource, o *Orch, name string, ring *RingBuffer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{source: source, orch: o, name: name, ring: ring, logger: logger}
}

// Name returns the executor's diagnostics name (the table name for
// consumers).
func (e *Executor) Name() string { return e.name }

// Orch returns the owning orchestrator.
func (e *Executor) Orch() *Orch { return e.orch }

// Events exposes the wrapped source's readiness channel.
func (e *Executor) Events() <-chan struct{} { return e.source.Events() }

// ProcessAnyTask either runs the action immediately or forwards it to
// the shared ring when this executor's table is ring-routed. A full
// ring is retried until the push lands; the drainer is woken if it is
// parked.
func (e *Executor) ProcessAnyTask(task AnyTask) {
	if e.ring == nil || !e.ring.Serves(e.name) {
		task()
		return
	}
	for !e.ring.Push(task) {
		e.orch.metrics.RecordRingFull()
		e.logger.Warn("ring buffer full, retrying push", zap.String("executor", e.name))
		e.ring.Notify()
		time.Sleep(10 * time.Millisecond)
	}
	if e.ring.IsIdle() {
		e.ring.Notify()
	}
}
