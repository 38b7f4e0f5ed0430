package orch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDrainInterval is the cadence of retry drain passes.
const DefaultDrainInterval = 500 * time.Millisecond

// Dispatcher runs the event-driven dispatch loop: it fans in consumer
// readiness signals, executes ready consumers, and drives periodic
// drain passes over all orchestrators so that need_retry entries get
// another chance.
type Dispatcher struct {
	orchs    []*Orch
	ring     *RingBuffer
	metrics  MetricsCollector
	interval time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates the dispatch loop over the given
// orchestrators. ring and metrics may be nil.
func NewDispatcher(orchs []*Orch, ring *RingBuffer, metrics MetricsCollector, interval time.Duration, logger *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{orchs: orchs, ring: ring, metrics: metrics, interval: interval, logger: logger}
}

// Run blocks until the context is cancelled. Consumers signal
// readiness on their event channels; drain passes run on every signal
// burst and on the retry ticker.
func (d *Dispatcher) Run(ctx context.Context) error {
	ready := make(chan *Consumer)
	var wg sync.WaitGroup

	for _, o := range d.orchs {
		for _, c := range o.Consumers() {
			wg.Add(1)
			go func(c *Consumer) {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case _, ok := <-c.Events():
						if !ok {
							return
						}
						select {
						case ready <- c:
						case <-ctx.Done():
							return
						}
					}
				}
			}(c)
		}
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatch loop started",
		zap.Int("orchestrators", len(d.orchs)),
		zap.Duration("drain_interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("dispatch loop stopped")
			return ctx.Err()

		case c := <-ready:
			c.Execute(ctx)

		case <-ticker.C:
			for _, o := range d.orchs {
				o.DoTask(ctx)
				if err := o.FlushResponses(ctx); err != nil {
					d.logger.Error("failed to flush responses", zap.Error(err))
				}
			}
			if d.ring != nil {
				d.metrics.SetRingDepth(d.ring.Depth())
			}
		}
	}
}
