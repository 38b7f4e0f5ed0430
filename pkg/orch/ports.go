package orch

import (
	"context"
	"errors"
)

// Handle is an opaque identifier a HAL assigns to a created object.
type Handle uint64

// NullHandle marks an object that has no HAL handle yet.
const NullHandle Handle = 0

// Typed HAL failures the core interprets. Anything else is treated as
// a plain rejection.
var (
	ErrObjectExists      = errors.New("object already exists")
	ErrObjectNotFound    = errors.New("object not found")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// HAL is the hardware abstraction layer: create/set/remove primitives
// on typed objects with opaque handles. The core never looks past
// the typed sentinel errors above.
type HAL interface {
	Create(ctx context.Context, objType, key string, fields []FieldValue) (Handle, error)
	Set(ctx context.Context, objType string, handle Handle, fields []FieldValue) error
	Remove(ctx context.Context, objType string, handle Handle) error
}

// EventSource signals readiness of an underlying change feed. The
// channel carries coalesced wake-ups, not data.
type EventSource interface {
	Events() <-chan struct{}
}

// ChangeSource is one change-log table: an event feed plus a drain
// operation producing the tuples that arrived since the last call.
type ChangeSource interface {
	EventSource
	TableName() string
	Pops(ctx context.Context) ([]Tuple, error)
	// Backend identifies the backing store for diagnostics.
	Backend() string
}

// SnapshotSource reads the full current content of a table. Used only
// at startup to seed pending tasks on warm restart.
type SnapshotSource interface {
	TableName() string
	ReadAll(ctx context.Context) ([]Tuple, error)
}

// SnapshotProvider hands out snapshot readers by table name. A nil
// return means no durable state exists for that table.
type SnapshotProvider interface {
	Snapshot(table string) SnapshotSource
}

// ResponsePublisher receives (table, key, fields, status)
// acknowledgements. Publish may buffer; Flush delivers synchronously.
type ResponsePublisher interface {
	Publish(table, key string, fields []FieldValue, status TaskStatus)
	Flush(ctx context.Context) error
}

// Recorder is the audit sink for consumed tuples.
type Recorder interface {
	Record(line string)
}

// MetricsCollector receives engine counters. A nop implementation is
// used when none is injected.
type MetricsCollector interface {
	RecordTaskProcessed(table string, status TaskStatus)
	SetPendingTasks(table string, n int)
	SetRingDepth(n int)
	RecordRingFull()
	RecordBakeRows(table string, n int)
	ObserveDrainPass(table string, seconds float64)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, []FieldValue, TaskStatus) {}
func (nopPublisher) Flush(context.Context) error                      { return nil }

type nopRecorder struct{}

func (nopRecorder) Record(string) {}

type nopMetrics struct{}

func (nopMetrics) RecordTaskProcessed(string, TaskStatus) {}
func (nopMetrics) SetPendingTasks(string, int)            {}
func (nopMetrics) SetRingDepth(int)                       {}
func (nopMetrics) RecordRingFull()                        {}
func (nopMetrics) RecordBakeRows(string, int)             {}
func (nopMetrics) ObserveDrainPass(string, float64)       {}
