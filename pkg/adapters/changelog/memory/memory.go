// Package memory provides an in-memory change source and snapshot
// provider, used by tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/linkfabric/swagent/pkg/orch"
)

// Source implements orch.ChangeSource over an in-memory buffer.
type Source struct {
	table string

	mu      sync.Mutex
	pending []orch.Tuple
	events  chan struct{}
}

// NewSource creates an empty change source for one table.
func NewSource(table string) *Source {
	return &Source{
		table:  table,
		events: make(chan struct{}, 1),
	}
}

// Push appends tuples to the source and signals readiness. The signal
// channel is buffered and coalesces bursts.
func (s *Source) Push(tuples ...orch.Tuple) {
	s.mu.Lock()
	s.pending = append(s.pending, tuples...)
	s.mu.Unlock()

	select {
	case s.events <- struct{}{}:
	default:
	}
}

// Events implements orch.EventSource.
func (s *Source) Events() <-chan struct{} { return s.events }

// TableName implements orch.ChangeSource.
func (s *Source) TableName() string { return s.table }

// Backend implements orch.ChangeSource.
func (s *Source) Backend() string { return "memory" }

// Pops implements orch.ChangeSource: it drains and returns everything
// pushed since the last call.
func (s *Source) Pops(ctx context.Context) ([]orch.Tuple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out, nil
}

// Snapshot implements orch.SnapshotSource over a fixed row set.
type Snapshot struct {
	table string
	rows  []orch.Tuple
}

// NewSnapshot creates a snapshot of rows for one table.
func NewSnapshot(table string, rows []orch.Tuple) *Snapshot {
	return &Snapshot{table: table, rows: rows}
}

// TableName implements orch.SnapshotSource.
func (s *Snapshot) TableName() string { return s.table }

// ReadAll implements orch.SnapshotSource.
func (s *Snapshot) ReadAll(ctx context.Context) ([]orch.Tuple, error) {
	out := make([]orch.Tuple, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

// Provider implements orch.SnapshotProvider over a table map.
type Provider struct {
	snapshots map[string]*Snapshot
}

// NewProvider creates an empty snapshot provider.
func NewProvider() *Provider {
	return &Provider{snapshots: make(map[string]*Snapshot)}
}

// Add registers rows as the durable state of a table.
func (p *Provider) Add(table string, rows []orch.Tuple) {
	p.snapshots[table] = NewSnapshot(table, rows)
}

// Snapshot implements orch.SnapshotProvider.
func (p *Provider) Snapshot(table string) orch.SnapshotSource {
	snap, ok := p.snapshots[table]
	if !ok {
		return nil
	}
	return snap
}
