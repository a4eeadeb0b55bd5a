package executor

import (
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/interrupt"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// Context bundles everything a running query needs to realize planner
// instructions against storage: the reader it scans against, the concept
// managers that know how to decode what it finds, the type annotations
// produced by inference (candidate sets for the type-pseudo-variables an
// instruction iterates), and the interrupt signal checked at batch
// boundaries.
type Context struct {
	Reader     thing.Reader
	Things     *thing.Manager
	Types      *typesystem.Cache
	Annotation *inference.TypeAnnotations
	Parameters *ir.ParameterRegistry
	Interrupt  *interrupt.Signal
}

// candidateTypes returns the concrete type ids a type-category variable
// may range over: the annotated candidate set, narrowed to a single id
// if the row already bound it (e.g. an outer conjunction fixed it).
func (c *Context) candidateTypes(row Row, exe *planner.MatchExecutable, v ir.Variable) []encoding.TypeID {
	if pos, ok := variablePosition(exe, v); ok {
		if cell := row.get(pos); cell.Kind == CellType {
			return []encoding.TypeID{cell.Type}
		}
	}
	if c.Annotation == nil {
		return nil
	}
	set := c.Annotation.Candidates(v)
	out := make([]encoding.TypeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// decodeValue materializes an attribute's canonical value from its
// vertex and the owning type's declared value kind.
func (c *Context) decodeValue(typeID encoding.TypeID, id encoding.AttributeID) (thing.Value, error) {
	t, ok := c.Types.Get(typeID)
	if !ok {
		return thing.Value{}, vterr.New(vterr.CodeConceptRead, "unknown attribute type in row")
	}
	kind := valueKindOf(t.ValueType)
	var raw []byte
	if t.ValueType == typesystem.ValueTypeString || t.ValueType == typesystem.ValueTypeStruct {
		var err error
		raw, err = c.Things.ValueTableBytes(c.Reader, typeID, id)
		if err != nil {
			return thing.Value{}, err
		}
	}
	return thing.DecodeValue(kind, id, raw), nil
}

func valueKindOf(vt typesystem.ValueType) thing.ValueKind {
	switch vt {
	case typesystem.ValueTypeBoolean:
		return thing.ValueBoolean
	case typesystem.ValueTypeLong:
		return thing.ValueLong
	case typesystem.ValueTypeDouble:
		return thing.ValueDouble
	case typesystem.ValueTypeString:
		return thing.ValueString
	default:
		return thing.ValueStruct
	}
}

func (c *Context) attributeFromVertex(v encoding.ObjectVertex) (thing.Attribute, error) {
	id := encoding.AttributeID{ID: uint64(v.ObjectID)}
	value, err := c.decodeValue(v.TypeID, id)
	if err != nil {
		return thing.Attribute{}, err
	}
	return thing.Attribute{TypeID: v.TypeID, ID: id, Value: value}, nil
}
