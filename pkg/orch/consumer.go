package orch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Consumer drains one change-log table into an ordered multi-map of
// pending tasks, consolidating repeated updates to the same key.
type Consumer struct {
	*Executor

	source   ChangeSource
	pending  *SyncMap
	priority int
}

// NewConsumer wraps a change source. The consumer's name is the
// table name of the source.
func NewConsumer(source ChangeSource, o *Orch, priority int, ring *RingBuffer, logger *zap.Logger) *Consumer {
	return &Consumer{
		Executor: NewExecutor(source, o, source.TableName(), ring, logger),
		source:   source,
		pending:  NewSyncMap(),
		priority: priority,
	}
}

// TableName returns the name of the drained table.
func (c *Consumer) TableName() string { return c.source.TableName() }

// Priority returns the consumer's dispatch priority.
func (c *Consumer) Priority() int { return c.priority }

// Backend identifies the backing store for diagnostics.
func (c *Consumer) Backend() string { return c.source.Backend() }

// Pending exposes the pending-task map to the owning Orch's drain
// pass and to diagnostics readers.
func (c *Consumer) Pending() *SyncMap { return c.pending }

// AddToSync inserts one tuple into the pending map, consolidating
// with a pending SET for the same key when possible.
func (c *Consumer) AddToSync(t Tuple) {
	c.pending.Add(t)
}

// AddBatchToSync applies AddToSync per tuple, in order, and returns
// the number of tuples applied.
func (c *Consumer) AddBatchToSync(entries []Tuple) int {
	for _, t := range entries {
		c.AddToSync(t)
	}
	return len(entries)
}

// RefillToSync reads the full current content of a table snapshot and
// feeds it through AddToSync. Used at startup to seed pending tasks
// with pre-existing state.
func (c *Consumer) RefillToSync(ctx context.Context, snap SnapshotSource) (int, error) {
	entries, err := snap.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot of %s: %w", snap.TableName(), err)
	}
	return c.AddBatchToSync(entries), nil
}

// Execute reads newly available tuples from the source and hands the
// consolidation plus drain work to ProcessAnyTask, so that ring-routed
// tables have their side effects serialized on the ring drainer.
func (c *Consumer) Execute(ctx context.Context) {
	entries, err := c.source.Pops(ctx)
	if err != nil {
		c.logger.Error("failed to pop change source",
			zap.String("table", c.TableName()),
			zap.String("backend", c.Backend()),
			zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}
	for _, t := range entries {
		c.RecordTuple(t)
	}
	c.ProcessAnyTask(func() {
		c.AddBatchToSync(entries)
		c.Drain(ctx)
	})
}

// Drain processes currently pending entries through the owning Orch's
// per-table task handler.
func (c *Consumer) Drain(ctx context.Context) {
	if c.pending.Len() == 0 {
		return
	}
	c.orch.DoTaskFor(ctx, c)
}

// RecordTuple writes the tuple to the audit recorder.
func (c *Consumer) RecordTuple(t Tuple) {
	c.orch.recorder.Record(DumpTuple(c.TableName(), t))
}

// DumpTuple renders a tuple qualified by this consumer's table.
func (c *Consumer) DumpTuple(t Tuple) string {
	return DumpTuple(c.TableName(), t)
}

// DumpPendingTasks renders the full pending map, one line per entry,
// in deterministic order.
func (c *Consumer) DumpPendingTasks() []string {
	var out []string
	for _, key := range c.pending.Keys() {
		for _, t := range c.pending.Entries(key) {
			out = append(out, c.DumpTuple(t))
		}
	}
	return out
}
