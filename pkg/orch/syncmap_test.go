package orch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMapMergesConsecutiveSets(t *testing.T) {
	m := NewSyncMap()

	appended := m.Add(Tuple{Key: "Ethernet0", Op: OpSet, Fields: []FieldValue{
		{Field: "mtu", Value: "1500"},
		{Field: "speed", Value: "100000"},
	}})
	require.True(t, appended)

	appended = m.Add(Tuple{Key: "Ethernet0", Op: OpSet, Fields: []FieldValue{
		{Field: "mtu", Value: "9100"},
		{Field: "admin_status", Value: "up"},
	}})
	assert.False(t, appended)

	require.Equal(t, 1, m.Len())
	entries := m.Entries("Ethernet0")
	require.Len(t, entries, 1)

	// later values win, earlier fields survive, order is preserved
	assert.Equal(t, []FieldValue{
		{Field: "mtu", Value: "9100"},
		{Field: "speed", Value: "100000"},
		{Field: "admin_status", Value: "up"},
	}, entries[0].Fields)
}

func TestSyncMapNeverMergesDeletes(t *testing.T) {
	m := NewSyncMap()

	m.Add(Tuple{Key: "Ethernet0", Op: OpSet, Fields: []FieldValue{{Field: "mtu", Value: "1500"}}})
	m.Add(Tuple{Key: "Ethernet0", Op: OpDel})
	m.Add(Tuple{Key: "Ethernet0", Op: OpDel})

	entries := m.Entries("Ethernet0")
	require.Len(t, entries, 3)
	assert.Equal(t, OpSet, entries[0].Op)
	assert.Equal(t, OpDel, entries[1].Op)
	assert.Equal(t, OpDel, entries[2].Op)
}

func TestSyncMapSetAfterDeleteIsAppended(t *testing.T) {
	m := NewSyncMap()

	m.Add(Tuple{Key: "Vlan100", Op: OpSet, Fields: []FieldValue{{Field: "vlanid", Value: "100"}}})
	m.Add(Tuple{Key: "Vlan100", Op: OpDel})
	appended := m.Add(Tuple{Key: "Vlan100", Op: OpSet, Fields: []FieldValue{{Field: "vlanid", Value: "100"}}})

	assert.True(t, appended)
	assert.Equal(t, 3, m.Len())
}

func TestSyncMapMergeDoesNotMutateInput(t *testing.T) {
	m := NewSyncMap()

	first := Tuple{Key: "Vlan100", Op: OpSet, Fields: []FieldValue{{Field: "vlanid", Value: "100"}}}
	m.Add(first)
	m.Add(Tuple{Key: "Vlan100", Op: OpSet, Fields: []FieldValue{{Field: "vlanid", Value: "200"}}})

	assert.Equal(t, "100", first.Fields[0].Value)
}

func TestSyncMapKeysSorted(t *testing.T) {
	m := NewSyncMap()
	m.Add(Tuple{Key: "c", Op: OpSet})
	m.Add(Tuple{Key: "a", Op: OpSet})
	m.Add(Tuple{Key: "b", Op: OpSet})

	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
}

func TestSyncMapReplace(t *testing.T) {
	m := NewSyncMap()
	m.Add(Tuple{Key: "Ethernet0", Op: OpSet})
	m.Add(Tuple{Key: "Ethernet0", Op: OpDel})

	remaining := m.Entries("Ethernet0")[1:]
	m.Replace("Ethernet0", remaining)
	assert.Equal(t, 1, m.Len())

	m.Replace("Ethernet0", nil)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Keys())
}
