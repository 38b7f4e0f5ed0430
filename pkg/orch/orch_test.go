package orch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	changememory "github.com/linkfabric/swagent/pkg/adapters/changelog/memory"
	"github.com/linkfabric/swagent/pkg/orch"
)

type published struct {
	table, key string
	status     orch.TaskStatus
}

type capturePublisher struct {
	mu      sync.Mutex
	entries []published
	flushed int
}

func (p *capturePublisher) Publish(table, key string, fields []orch.FieldValue, status orch.TaskStatus) {
	p.mu.Lock()
	p.entries = append(p.entries, published{table: table, key: key, status: status})
	p.mu.Unlock()
}

func (p *capturePublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.flushed++
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]published, len(p.entries))
	copy(out, p.entries)
	return out
}

type captureRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *captureRecorder) Record(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// statusHandler answers each key from a scripted status sequence.
type statusHandler struct {
	statuses map[string][]orch.TaskStatus
	seen     []string
}

func (h *statusHandler) ProcessTask(ctx context.Context, t orch.Tuple) orch.TaskStatus {
	h.seen = append(h.seen, t.Key)
	q := h.statuses[t.Key]
	if len(q) == 0 {
		return orch.TaskSuccess
	}
	status := q[0]
	h.statuses[t.Key] = q[1:]
	return status
}

func TestRegisterConsumerDuplicateTable(t *testing.T) {
	o := orch.NewOrch(orch.Options{})

	_, err := o.RegisterConsumer(changememory.NewSource("PORT_TABLE"), 0, nil, false, nil)
	require.NoError(t, err)

	_, err = o.RegisterConsumer(changememory.NewSource("PORT_TABLE"), 0, nil, false, nil)
	assert.Error(t, err)
}

func TestConsumersPriorityOrder(t *testing.T) {
	o := orch.NewOrch(orch.Options{})

	for _, spec := range []struct {
		table    string
		priority int
	}{
		{"ROUTE_TABLE", 0},
		{"PORT_TABLE", 10},
		{"VLAN_TABLE", 5},
		{"NEIGH_TABLE", 5},
	} {
		_, err := o.RegisterConsumer(changememory.NewSource(spec.table), spec.priority, nil, false, nil)
		require.NoError(t, err)
	}

	var order []string
	for _, c := range o.Consumers() {
		order = append(order, c.TableName())
	}

	// descending priority, registration order breaking the tie
	assert.Equal(t, []string{"PORT_TABLE", "VLAN_TABLE", "NEIGH_TABLE", "ROUTE_TABLE"}, order)
}

func TestDoTaskForStatusSemantics(t *testing.T) {
	pub := &capturePublisher{}
	o := orch.NewOrch(orch.Options{Publisher: pub})

	h := &statusHandler{statuses: map[string][]orch.TaskStatus{
		"ok":      {orch.TaskSuccess},
		"retry":   {orch.TaskNeedRetry, orch.TaskSuccess},
		"invalid": {orch.TaskInvalidEntry},
		"failed":  {orch.TaskFailed},
		"ignored": {orch.TaskIgnore},
	}}
	c, err := o.RegisterConsumer(changememory.NewSource("PORT_TABLE"), 0, nil, false, h)
	require.NoError(t, err)

	for _, key := range []string{"ok", "retry", "invalid", "failed", "ignored"} {
		c.AddToSync(orch.Tuple{Key: key, Op: orch.OpSet})
	}

	o.DoTaskFor(context.Background(), c)

	// only the need_retry entry survives the pass
	assert.Equal(t, []string{"retry"}, c.Pending().Keys())

	got := map[string]orch.TaskStatus{}
	for _, e := range pub.all() {
		got[e.key] = e.status
	}
	assert.Equal(t, map[string]orch.TaskStatus{
		"ok":      orch.TaskSuccess,
		"invalid": orch.TaskInvalidEntry,
		"failed":  orch.TaskFailed,
	}, got)

	// next pass clears the retried entry
	o.DoTaskFor(context.Background(), c)
	assert.Empty(t, c.Pending().Keys())
}

func TestDoTaskForRetryLimit(t *testing.T) {
	pub := &capturePublisher{}
	o := orch.NewOrch(orch.Options{Publisher: pub, TaskRetryLimit: 2})

	h := orch.TaskHandlerFunc(func(ctx context.Context, t orch.Tuple) orch.TaskStatus {
		return orch.TaskNeedRetry
	})
	c, err := o.RegisterConsumer(changememory.NewSource("ROUTE_TABLE"), 0, nil, false, h)
	require.NoError(t, err)

	c.AddToSync(orch.Tuple{Key: "10.0.0.0/24", Op: orch.OpSet})

	o.DoTaskFor(context.Background(), c)
	assert.Equal(t, 1, c.Pending().Len())
	o.DoTaskFor(context.Background(), c)
	assert.Equal(t, 1, c.Pending().Len())

	// the third pass exceeds the limit and drops the entry as failed
	o.DoTaskFor(context.Background(), c)
	assert.Equal(t, 0, c.Pending().Len())

	entries := pub.all()
	require.Len(t, entries, 1)
	assert.Equal(t, orch.TaskFailed, entries[0].status)
}

func TestConsumerExecuteConsolidatesAndDrains(t *testing.T) {
	rec := &captureRecorder{}
	o := orch.NewOrch(orch.Options{Recorder: rec})

	var processed []orch.Tuple
	h := orch.TaskHandlerFunc(func(ctx context.Context, t orch.Tuple) orch.TaskStatus {
		processed = append(processed, t)
		return orch.TaskSuccess
	})

	src := changememory.NewSource("PORT_TABLE")
	c, err := o.RegisterConsumer(src, 0, nil, false, h)
	require.NoError(t, err)

	src.Push(
		orch.Tuple{Key: "Ethernet0", Op: orch.OpSet, Fields: []orch.FieldValue{{Field: "mtu", Value: "1500"}}},
		orch.Tuple{Key: "Ethernet0", Op: orch.OpSet, Fields: []orch.FieldValue{{Field: "mtu", Value: "9100"}}},
		orch.Tuple{Key: "Ethernet4", Op: orch.OpSet},
	)
	c.Execute(context.Background())

	// the two SETs for Ethernet0 consolidated into one task
	require.Len(t, processed, 2)
	assert.Equal(t, "Ethernet0", processed[0].Key)
	assert.Equal(t, []orch.FieldValue{{Field: "mtu", Value: "9100"}}, processed[0].Fields)
	assert.Equal(t, "Ethernet4", processed[1].Key)

	// every popped tuple was recorded, pre-consolidation
	assert.Len(t, rec.lines, 3)
	assert.Contains(t, rec.lines[0], "PORT_TABLE:Ethernet0|SET|mtu=1500")
}

func TestBakeSeedsPendingFromSnapshots(t *testing.T) {
	o := orch.NewOrch(orch.Options{})

	c, err := o.RegisterConsumer(changememory.NewSource("PORT_TABLE"), 0, nil, false, nil)
	require.NoError(t, err)
	_, err = o.RegisterConsumer(changememory.NewSource("VLAN_TABLE"), 0, nil, false, nil)
	require.NoError(t, err)

	provider := changememory.NewProvider()
	provider.Add("PORT_TABLE", []orch.Tuple{
		{Key: "Ethernet0", Op: orch.OpSet, Fields: []orch.FieldValue{{Field: "mtu", Value: "9100"}}},
		{Key: "Ethernet4", Op: orch.OpSet},
		{Key: "Ethernet8", Op: orch.OpSet},
	})

	loaded, err := o.Bake(context.Background(), provider)
	require.NoError(t, err)
	assert.True(t, loaded)

	assert.Equal(t, 3, c.Pending().Len())
	assert.Equal(t, 0, o.Consumer("VLAN_TABLE").Pending().Len())
}

func TestBakeWithoutSnapshots(t *testing.T) {
	o := orch.NewOrch(orch.Options{})
	_, err := o.RegisterConsumer(changememory.NewSource("PORT_TABLE"), 0, nil, false, nil)
	require.NoError(t, err)

	loaded, err := o.Bake(context.Background(), changememory.NewProvider())
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestAddExistingDataUnknownTable(t *testing.T) {
	o := orch.NewOrch(orch.Options{})
	_, err := o.AddExistingData(context.Background(), changememory.NewSnapshot("GHOST_TABLE", nil))
	assert.Error(t, err)
}

func TestDumpPendingTasks(t *testing.T) {
	o := orch.NewOrch(orch.Options{})
	c, err := o.RegisterConsumer(changememory.NewSource("VLAN_TABLE"), 0, nil, false, nil)
	require.NoError(t, err)

	c.AddToSync(orch.Tuple{Key: "Vlan100", Op: orch.OpSet, Fields: []orch.FieldValue{{Field: "vlanid", Value: "100"}}})
	c.AddToSync(orch.Tuple{Key: "Vlan100", Op: orch.OpDel})

	assert.Equal(t, []string{
		"VLAN_TABLE:Vlan100|SET|vlanid=100",
		"VLAN_TABLE:Vlan100|DEL|",
	}, o.DumpPendingTasks())
}

func TestDumpPendingTasksConcurrentWithExecute(t *testing.T) {
	o := orch.NewOrch(orch.Options{})

	h := orch.TaskHandlerFunc(func(ctx context.Context, t orch.Tuple) orch.TaskStatus {
		return orch.TaskSuccess
	})
	src := changememory.NewSource("PORT_TABLE")
	c, err := o.RegisterConsumer(src, 0, nil, false, h)
	require.NoError(t, err)

	// diagnostics reads pending entries while the drain goroutine
	// consolidates and replaces them
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			o.DumpPendingTasks()
		}
	}()

	for i := 0; i < 200; i++ {
		src.Push(orch.Tuple{Key: "Ethernet0", Op: orch.OpSet,
			Fields: []orch.FieldValue{{Field: "mtu", Value: "9100"}}})
		c.Execute(context.Background())
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dump goroutine did not finish")
	}
	assert.Empty(t, c.Pending().Keys())
}

func TestRingRoutedExecution(t *testing.T) {
	ring := orch.NewRingBuffer(8)
	o := orch.NewOrch(orch.Options{})

	var processed []string
	h := orch.TaskHandlerFunc(func(ctx context.Context, t orch.Tuple) orch.TaskStatus {
		processed = append(processed, t.Key)
		return orch.TaskSuccess
	})

	src := changememory.NewSource("PORT_TABLE")
	c, err := o.RegisterConsumer(src, 0, ring, true, h)
	require.NoError(t, err)

	src.Push(orch.Tuple{Key: "Ethernet0", Op: orch.OpSet})
	c.Execute(context.Background())

	// the work is queued, not yet executed
	assert.Empty(t, processed)
	assert.Equal(t, 1, ring.Depth())

	task, ok := ring.Pop()
	require.True(t, ok)
	task()
	assert.Equal(t, []string{"Ethernet0"}, processed)
	assert.Empty(t, c.Pending().Keys())
}
