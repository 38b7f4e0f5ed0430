package orch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultOrchPriority is the dispatch priority used when none is given.
const DefaultOrchPriority = 0

// TaskHandler processes one pending tuple and reports the outcome.
// Handlers are registered per table at consumer registration, replacing
// per-type virtual dispatch with a table-name registry.
type TaskHandler interface {
	ProcessTask(ctx context.Context, t Tuple) TaskStatus
}

// TaskHandlerFunc adapts a function to the TaskHandler interface.
type TaskHandlerFunc func(ctx context.Context, t Tuple) TaskStatus

// ProcessTask implements TaskHandler.
func (f TaskHandlerFunc) ProcessTask(ctx context.Context, t Tuple) TaskStatus {
	return f(ctx, t)
}

// Options configures an Orch. Zero-value fields fall back to nop
// collaborators.
type Options struct {
	Publisher ResponsePublisher
	Recorder  Recorder
	Metrics   MetricsCollector
	Logger    *zap.Logger

	// TaskRetryLimit bounds how many passes a need_retry entry
	// survives before being dropped as failed. 0 means unbounded.
	TaskRetryLimit int
}

// Orch owns a set of consumers (one per subscribed table, each with a
// dispatch priority), the per-table handler registry, and the generic
// task-draining loop.
type Orch struct {
	consumers map[string]*Consumer
	order     []string
	handlers  map[string]TaskHandler

	publisher  ResponsePublisher
	recorder   Recorder
	metrics    MetricsCollector
	logger     *zap.Logger
	retryLimit int

	// retry pass counts per table|key, tracked only when a limit is set
	retries map[string]int
}

// NewOrch creates an orchestrator with the given collaborators.
func NewOrch(opts Options) *Orch {
	o := &Orch{
		consumers:  make(map[string]*Consumer),
		handlers:   make(map[string]TaskHandler),
		publisher:  opts.Publisher,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		retryLimit: opts.TaskRetryLimit,
		retries:    make(map[string]int),
	}
	if o.publisher == nil {
		o.publisher = nopPublisher{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// RegisterConsumer subscribes a change source with a dispatch priority
// and binds its task handler. When buffered is true the table's work
// is routed through the ring. Registering the same table twice is an
// error.
func (o *Orch) RegisterConsumer(source ChangeSource, priority int, ring *RingBuffer, buffered bool, h TaskHandler) (*Consumer, error) {
	name := source.TableName()
	if _, ok := o.consumers[name]; ok {
		return nil, fmt.Errorf("consumer already registered for table %s", name)
	}
	c := NewConsumer(source, o, priority, ring, o.logger)
	if buffered && ring != nil {
		ring.AddExecutor(c.Executor)
	}
	o.consumers[name] = c
	o.order = append(o.order, name)
	o.handlers[name] = h
	o.logger.Info("consumer registered",
		zap.String("table", name),
		zap.Int("priority", priority),
		zap.Bool("buffered", buffered && ring != nil),
		zap.String("backend", c.Backend()))
	return c, nil
}

// Consumer returns the consumer for a table, or nil.
func (o *Orch) Consumer(table string) *Consumer {
	return o.consumers[table]
}

// Consumers returns all consumers ordered by descending priority,
// with registration order as the stable tie-break.
func (o *Orch) Consumers() []*Consumer {
	out := make([]*Consumer, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.consumers[name])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// DoTask runs one drain pass over all consumers in priority order.
// Entries left in need_retry remain for the next invocation; retry
// cadence is driven by the caller's loop frequency.
func (o *Orch) DoTask(ctx context.Context) {
	for _, c := range o.Consumers() {
		c := c
		c.ProcessAnyTask(func() {
			c.Drain(ctx)
		})
	}
}

// DoTaskFor runs the per-consumer task handler over the consumer's
// pending entries, applying the status semantics: success, failure,
// invalid_entry, ignore and duplicated remove the entry; need_retry
// retains it for the next pass. Errors never abort the pass.
func (o *Orch) DoTaskFor(ctx context.Context, c *Consumer) {
	table := c.TableName()
	h := o.handlers[table]
	if h == nil {
		return
	}

	start := time.Now()
	sm := c.Pending()
	for _, key := range sm.Keys() {
		tuples := sm.Entries(key)
		remaining := make([]Tuple, 0, len(tuples))
		for _, t := range tuples {
			status := h.ProcessTask(ctx, t)
			o.metrics.RecordTaskProcessed(table, status)
			switch status {
			case TaskSuccess:
				o.publisher.Publish(table, t.Key, t.Fields, status)
				o.clearRetries(table, t.Key)
			case TaskNeedRetry:
				if o.exceededRetries(table, t.Key) {
					o.logger.Error("task dropped after retry limit",
						zap.String("table", table),
						zap.String("key", t.Key),
						zap.Int("limit", o.retryLimit))
					o.publisher.Publish(table, t.Key, t.Fields, TaskFailed)
					continue
				}
				remaining = append(remaining, t)
			case TaskInvalidEntry:
				o.logger.Warn("invalid task entry dropped",
					zap.String("table", table),
					zap.String("entry", DumpTuple(table, t)))
				o.publisher.Publish(table, t.Key, t.Fields, status)
				o.clearRetries(table, t.Key)
			case TaskFailed:
				o.logger.Error("task failed",
					zap.String("table", table),
					zap.String("entry", DumpTuple(table, t)))
				o.publisher.Publish(table, t.Key, t.Fields, status)
				o.clearRetries(table, t.Key)
			case TaskIgnore, TaskDuplicated:
				o.clearRetries(table, t.Key)
			default:
				o.logger.Error("unknown task status, dropping entry",
					zap.String("table", table),
					zap.String("key", t.Key),
					zap.Int("status", int(status)))
			}
		}
		sm.Replace(key, remaining)
	}
	o.metrics.SetPendingTasks(table, sm.Len())
	o.metrics.ObserveDrainPass(table, time.Since(start).Seconds())
}

func (o *Orch) exceededRetries(table, key string) bool {
	if o.retryLimit <= 0 {
		return false
	}
	id := table + ConfigDBKeyDelimiter + key
	o.retries[id]++
	return o.retries[id] > o.retryLimit
}

func (o *Orch) clearRetries(table, key string) {
	if o.retryLimit <= 0 {
		return
	}
	delete(o.retries, table+ConfigDBKeyDelimiter+key)
}

// AddExistingData seeds the consumer for snap's table with the
// snapshot's current content. Returns the number of rows added.
func (o *Orch) AddExistingData(ctx context.Context, snap SnapshotSource) (int, error) {
	c := o.consumers[snap.TableName()]
	if c == nil {
		return 0, fmt.Errorf("no consumer for table %s", snap.TableName())
	}
	return c.RefillToSync(ctx, snap)
}

// Bake prepares for warm restart: every subscribed table with durable
// prior state is snapshot-read into its pending map. Returns whether
// any warm data was found.
func (o *Orch) Bake(ctx context.Context, provider SnapshotProvider) (bool, error) {
	total := 0
	for _, name := range o.order {
		snap := provider.Snapshot(name)
		if snap == nil {
			continue
		}
		n, err := o.consumers[name].RefillToSync(ctx, snap)
		if err != nil {
			return total > 0, fmt.Errorf("bake failed for table %s: %w", name, err)
		}
		if n > 0 {
			o.metrics.RecordBakeRows(name, n)
			o.logger.Info("warm restart data baked",
				zap.String("table", name),
				zap.Int("rows", n))
		}
		total += n
	}
	return total > 0, nil
}

// FlushResponses forces buffered acknowledgements out synchronously.
func (o *Orch) FlushResponses(ctx context.Context) error {
	if err := o.publisher.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush responses: %w", err)
	}
	return nil
}

// DumpPendingTasks renders all pending entries across consumers in
// priority order.
func (o *Orch) DumpPendingTasks() []string {
	var out []string
	for _, c := range o.Consumers() {
		out = append(out, c.DumpPendingTasks()...)
	}
	return out
}
