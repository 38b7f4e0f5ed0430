package orch

import "strings"

// Lexical conventions shared with the change-log and state tables.
const (
	Delimiter            = ":"
	ListItemDelimiter    = ","
	RefStart             = "["
	RefEnd               = "]"
	RangeSpecifier       = "-"
	ConfigDBKeyDelimiter = "|"
	StateDBKeyDelimiter  = "|"
)

// Operation tags a change tuple as an upsert or a delete.
type Operation string

const (
	OpSet Operation = "SET"
	OpDel Operation = "DEL"
)

// FieldValue is one field of a change tuple. Order matters, so tuples
// carry a slice rather than a map.
type FieldValue struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Tuple is the unit of change read from a change-log table: a key, an
// operation and an ordered set of field/value pairs. Immutable once
// enqueued; consolidation works on the pending copy.
type Tuple struct {
	Key    string       `json:"key"`
	Op     Operation    `json:"op"`
	Fields []FieldValue `json:"fields"`
}

// Get returns the value of the named field and whether it is present.
// If the field appears more than once, the first occurrence wins.
func (t Tuple) Get(field string) (string, bool) {
	for _, fv := range t.Fields {
		if fv.Field == field {
			return fv.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the tuple.
func (t Tuple) Clone() Tuple {
	fields := make([]FieldValue, len(t.Fields))
	copy(fields, t.Fields)
	return Tuple{Key: t.Key, Op: t.Op, Fields: fields}
}

// String renders the tuple as KEY|OP|field1=val1,field2=val2.
func (t Tuple) String() string {
	var b strings.Builder
	b.WriteString(t.Key)
	b.WriteString(ConfigDBKeyDelimiter)
	b.WriteString(string(t.Op))
	b.WriteString(ConfigDBKeyDelimiter)
	for i, fv := range t.Fields {
		if i > 0 {
			b.WriteString(ListItemDelimiter)
		}
		b.WriteString(fv.Field)
		b.WriteString("=")
		b.WriteString(fv.Value)
	}
	return b.String()
}

// DumpTuple renders a tuple qualified by its table:
// TABLE:KEY|OP|field1=val1,field2=val2. The rendering is deterministic
// given identical input and is used for diagnostics and audit records.
func DumpTuple(table string, t Tuple) string {
	return table + Delimiter + t.String()
}
