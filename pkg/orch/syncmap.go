package orch

import (
	"sort"
	"sync"
)

// SyncMap is the pending-task multi-map of a consumer: key to ordered
// tuples, preserving insertion order among tuples sharing a key.
//
// Consecutive pending SETs for a key consolidate by field-level merge
// (later values win, previously-set fields survive). A DEL is always
// appended as a new entry so both the prior state and the delete
// intent stay visible to the task handler.
//
// Mutation happens on the goroutine that drains the owning consumer
// (the ring drainer for ring-routed tables, the dispatch loop
// otherwise), but the diagnostics API reads pending entries from its
// own goroutine, so every method locks.
type SyncMap struct {
	mu      sync.Mutex
	entries map[string][]Tuple
}

// NewSyncMap creates an empty pending-task map.
func NewSyncMap() *SyncMap {
	return &SyncMap{entries: make(map[string][]Tuple)}
}

// Add inserts a tuple, consolidating with a pending SET for the same
// key when possible. Returns true when a new entry was appended and
// false when the tuple merged into an existing one.
func (m *SyncMap) Add(t Tuple) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.entries[t.Key]
	if t.Op == OpSet && len(pending) > 0 {
		last := &pending[len(pending)-1]
		if last.Op == OpSet {
			mergeFields(last, t.Fields)
			return false
		}
	}
	m.entries[t.Key] = append(pending, t.Clone())
	return true
}

// mergeFields overwrites same-named fields of dst in place and appends
// fields dst did not have, preserving dst's field order.
func mergeFields(dst *Tuple, fields []FieldValue) {
	for _, fv := range fields {
		found := false
		for i := range dst.Fields {
			if dst.Fields[i].Field == fv.Field {
				dst.Fields[i].Value = fv.Value
				found = true
				break
			}
		}
		if !found {
			dst.Fields = append(dst.Fields, fv)
		}
	}
}

// Len returns the number of pending entries across all keys.
func (m *SyncMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ts := range m.entries {
		n += len(ts)
	}
	return n
}

// Keys returns the pending keys in sorted order.
func (m *SyncMap) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of the pending tuples for a key, in
// insertion order.
func (m *SyncMap) Entries(key string) []Tuple {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.entries[key]
	out := make([]Tuple, len(ts))
	copy(out, ts)
	return out
}

// Replace installs the remaining tuples for a key after a drain pass,
// deleting the key when nothing remains.
func (m *SyncMap) Replace(key string, remaining []Tuple) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(remaining) == 0 {
		delete(m.entries, key)
		return
	}
	m.entries[key] = remaining
}
