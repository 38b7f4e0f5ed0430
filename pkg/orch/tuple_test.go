package orch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTupleGetFirstOccurrenceWins(t *testing.T) {
	tu := Tuple{
		Key: "Ethernet0",
		Op:  OpSet,
		Fields: []FieldValue{
			{Field: "mtu", Value: "9100"},
			{Field: "speed", Value: "100000"},
			{Field: "mtu", Value: "1500"},
		},
	}

	v, ok := tu.Get("mtu")
	require.True(t, ok)
	assert.Equal(t, "9100", v)

	_, ok = tu.Get("admin_status")
	assert.False(t, ok)
}

func TestTupleCloneIsDeep(t *testing.T) {
	orig := Tuple{
		Key:    "Vlan100",
		Op:     OpSet,
		Fields: []FieldValue{{Field: "vlanid", Value: "100"}},
	}

	clone := orig.Clone()
	clone.Fields[0].Value = "200"

	assert.Equal(t, "100", orig.Fields[0].Value)
	assert.Equal(t, "200", clone.Fields[0].Value)
}

func TestTupleString(t *testing.T) {
	tu := Tuple{
		Key: "Vlan100",
		Op:  OpSet,
		Fields: []FieldValue{
			{Field: "vlanid", Value: "100"},
			{Field: "mtu", Value: "9100"},
		},
	}

	assert.Equal(t, "Vlan100|SET|vlanid=100,mtu=9100", tu.String())
}

func TestDumpTupleQualifiesTable(t *testing.T) {
	tu := Tuple{Key: "Vlan100", Op: OpDel}
	assert.Equal(t, "VLAN_TABLE:Vlan100|DEL|", DumpTuple("VLAN_TABLE", tu))
}
