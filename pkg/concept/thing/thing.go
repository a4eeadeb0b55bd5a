// Package thing manages entity, relation, and attribute instances:
// allocation, the Has and Links edges connecting them, canonical
// attribute lookup, and delete cascades over incident edges.
package thing

import (
	"github.com/vertexdb/vertexdb/pkg/encoding"
)

const (
	thingKeyspace      = "thing-vertex"
	edgeKeyspace       = "thing-edge"
	valueTableKeyspace = "value-table"
)

// Object is an entity or relation instance.
type Object struct {
	Vertex encoding.ObjectVertex
}

func (o Object) TypeID() encoding.TypeID { return o.Vertex.TypeID }

// Attribute is an attribute instance: a type plus a canonical value,
// addressed by its AttributeID.
type Attribute struct {
	TypeID encoding.TypeID
	ID     encoding.AttributeID
	Value  Value
}

// Vertex returns the attribute's storage vertex, reusing the ObjectVertex
// layout with the attribute id's low 8 bytes as the object id; the value
// type header is redundant with the owning type's declared value type,
// so it is not part of the vertex key.
func (a Attribute) Vertex() encoding.ObjectVertex {
	return encoding.ObjectVertex{Prefix: encoding.PrefixAttribute, TypeID: a.TypeID, ObjectID: encoding.ObjectID(a.ID.ID)}
}

// ValueKind tags the Go-level shape of a Value.
type ValueKind int

const (
	ValueBoolean ValueKind = iota
	ValueLong
	ValueDouble
	ValueString
	ValueStruct
)

// Value is a decoded attribute value of any supported kind.
type Value struct {
	Kind      ValueKind
	Boolean   bool
	Long      int64
	Double    float64
	String    string
	StructRaw []byte
}

func attributeIDForValue(v Value) encoding.AttributeID {
	switch v.Kind {
	case ValueBoolean:
		return encoding.EncodeBoolean(v.Boolean)
	case ValueLong:
		return encoding.EncodeLong(v.Long)
	case ValueDouble:
		return encoding.EncodeDouble(v.Double)
	case ValueString:
		return encoding.HashString(v.String)
	case ValueStruct:
		return encoding.HashStruct(v.StructRaw)
	default:
		panic("thing: unknown value kind")
	}
}

func canonicalBytes(v Value) []byte {
	switch v.Kind {
	case ValueString:
		return []byte(v.String)
	case ValueStruct:
		return v.StructRaw
	default:
		return nil // fixed-width values are fully encoded in the AttributeID
	}
}

func decodeCanonical(kind ValueKind, raw []byte) Value {
	switch kind {
	case ValueString:
		return Value{Kind: ValueString, String: string(raw)}
	case ValueStruct:
		return Value{Kind: ValueStruct, StructRaw: raw}
	default:
		return Value{Kind: kind}
	}
}

// DecodeValue reconstructs a Value from its AttributeID and, for
// variable-length kinds, the canonical bytes looked up from the value
// table; kind must come from the owning attribute type's schema
// declaration, since it is not recoverable from the id alone.
func DecodeValue(kind ValueKind, id encoding.AttributeID, valueTableBytes []byte) Value {
	switch kind {
	case ValueBoolean:
		return Value{Kind: ValueBoolean, Boolean: encoding.DecodeBoolean(id)}
	case ValueLong:
		return Value{Kind: ValueLong, Long: encoding.DecodeLong(id)}
	case ValueDouble:
		return Value{Kind: ValueDouble, Double: encoding.DecodeDouble(id)}
	default:
		return decodeCanonical(kind, valueTableBytes)
	}
}

func needsValueTable(v Value) bool {
	return v.Kind == ValueString || v.Kind == ValueStruct
}
