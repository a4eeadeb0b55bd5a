package executor

import (
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
)

// ConceptDocument is the flat map fetch execution produces per row, one
// entry per projection key: nil for an unbound variable, a Go value
// (string/int64/float64/bool/[]byte) for an attribute or value, a map of
// "type" and "iid" for an object, and the label for a type. No lists and
// no nested sub-documents are produced.
type ConceptDocument map[string]interface{}

// RunFetch evaluates exe's fetch template against every row a match
// produces, invoking emit for each resulting document.
func (c *Context) RunFetch(exe *planner.MatchExecutable, projections []ir.FetchProjection, input Row, emit func(ConceptDocument) bool) error {
	return c.RunMatch(exe, input, func(row Row) bool {
		doc, err := c.fetchRow(exe, projections, row)
		if err != nil {
			return false
		}
		return emit(doc)
	})
}

func (c *Context) fetchRow(exe *planner.MatchExecutable, projections []ir.FetchProjection, row Row) (ConceptDocument, error) {
	doc := make(ConceptDocument, len(projections))
	for _, proj := range projections {
		pos, ok := variablePosition(exe, proj.Variable)
		if !ok || !row.bound(pos) {
			doc[proj.Key] = nil
			continue
		}
		leaf, err := c.documentLeaf(row.get(pos))
		if err != nil {
			return nil, err
		}
		doc[proj.Key] = leaf
	}
	return doc, nil
}

// documentLeaf renders a cell as a fetchable scalar: an object concept
// becomes its IID-addressable identity, an attribute or bound value
// becomes the Go value it holds.
func (c *Context) documentLeaf(v VariableValue) (interface{}, error) {
	switch v.Kind {
	case CellAttribute:
		return thingValueLeaf(v.Attribute.Value), nil
	case CellValue:
		return thingValueLeaf(v.Value), nil
	case CellObject:
		return map[string]interface{}{
			"type": uint16(v.Object.TypeID()),
			"iid":  v.Object.Vertex.Encode(),
		}, nil
	case CellType:
		t, ok := c.Types.Get(v.Type)
		if !ok {
			return nil, nil
		}
		return t.Label.String(), nil
	default:
		return nil, nil
	}
}

// RowDocument renders every variable exe assigns a position to as one
// flat document keyed by variable name, for callers that want a
// human-readable answer shape for a plain match query rather than a
// positional Row.
func (c *Context) RowDocument(exe *planner.MatchExecutable, vars *ir.VariableRegistry, row Row) ConceptDocument {
	doc := make(ConceptDocument, len(exe.VariablePositions))
	for v, pos := range exe.VariablePositions {
		name := vars.Name(v)
		if !row.bound(pos) {
			doc[name] = nil
			continue
		}
		leaf, err := c.documentLeaf(row.get(pos))
		if err != nil {
			doc[name] = nil
			continue
		}
		doc[name] = leaf
	}
	return doc
}

// BindingsDocument renders a write stage's resulting bindings the same
// way RowDocument renders a match row, keyed by variable name.
func (c *Context) BindingsDocument(vars *ir.VariableRegistry, bindings Bindings) ConceptDocument {
	doc := make(ConceptDocument, len(bindings))
	for v, val := range bindings {
		leaf, err := c.documentLeaf(val)
		if err != nil {
			continue
		}
		doc[vars.Name(v)] = leaf
	}
	return doc
}

func thingValueLeaf(v thing.Value) interface{} {
	switch v.Kind {
	case thing.ValueBoolean:
		return v.Boolean
	case thing.ValueLong:
		return v.Long
	case thing.ValueDouble:
		return v.Double
	case thing.ValueString:
		return v.String
	default:
		return v.StructRaw
	}
}
