// Package executor realizes a planner.MatchExecutable or
// planner.WriteExecutable against live storage, producing or consuming
// rows of bound concepts, and implements the read pipeline's filter,
// sort, offset, limit, reduce, and fetch stages.
package executor

import (
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
)

// CellKind tags the variant of a bound VariableValue.
type CellKind int

const (
	CellUnbound CellKind = iota
	CellType
	CellObject
	CellAttribute
	CellValue
)

// VariableValue is one bound (or unbound) column of a Row, mirroring
// ir.Variable's three categories: a schema type, a thing instance, or a
// computed/literal value.
type VariableValue struct {
	Kind      CellKind
	Type      encoding.TypeID
	Object    thing.Object
	Attribute thing.Attribute
	Value     thing.Value
}

func typeCell(t encoding.TypeID) VariableValue          { return VariableValue{Kind: CellType, Type: t} }
func objectCell(o thing.Object) VariableValue           { return VariableValue{Kind: CellObject, Object: o} }
func attributeCell(a thing.Attribute) VariableValue     { return VariableValue{Kind: CellAttribute, Attribute: a} }
func valueCell(v thing.Value) VariableValue             { return VariableValue{Kind: CellValue, Value: v} }

// Row is a fixed-width tuple of bound variables, indexed by
// planner.VariablePosition.
type Row []VariableValue

// newRow allocates a row of width, every cell unbound.
func newRow(width int) Row {
	return make(Row, width)
}

// clone returns an independent copy of r with exactly width cells,
// padded with unbound cells or truncated as needed.
func (r Row) clone(width int) Row {
	out := make(Row, width)
	copy(out, r)
	return out
}

func (r Row) get(pos planner.VariablePosition) VariableValue {
	if int(pos) >= len(r) {
		return VariableValue{}
	}
	return r[pos]
}

func (r Row) bound(pos planner.VariablePosition) bool {
	return r.get(pos).Kind != CellUnbound
}

// typeIDOf extracts the concrete type id a Thing-category cell belongs
// to, used when an Isa constraint's instance side is already bound and
// only the type side needs resolving.
func typeIDOf(v VariableValue) (encoding.TypeID, bool) {
	switch v.Kind {
	case CellObject:
		return v.Object.TypeID(), true
	case CellAttribute:
		return v.Attribute.TypeID, true
	default:
		return 0, false
	}
}

func objectVertexOf(v VariableValue) (encoding.ObjectVertex, bool) {
	switch v.Kind {
	case CellObject:
		return v.Object.Vertex, true
	case CellAttribute:
		return v.Attribute.Vertex(), true
	default:
		return encoding.ObjectVertex{}, false
	}
}

// variablePosition resolves v's assigned slot in exe, the zero position
// when v was never assigned one (e.g. a value-category variable never
// realized by a searchable constraint).
func variablePosition(exe *planner.MatchExecutable, v ir.Variable) (planner.VariablePosition, bool) {
	pos, ok := exe.VariablePositions[v]
	return pos, ok
}
