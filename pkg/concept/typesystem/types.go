// Package typesystem represents the schema type graph: entity, relation,
// attribute, and role types related by subtyping, ownership, playing, and
// relating, cached in memory for read and rebuilt wholesale on schema
// commit.
package typesystem

import (
	"github.com/vertexdb/vertexdb/pkg/encoding"
)

// Kind is the variant discriminant shared by every Type.
type Kind string

const (
	KindEntity    Kind = "entity"
	KindRelation  Kind = "relation"
	KindAttribute Kind = "attribute"
	KindRole      Kind = "role"
)

// ValueType is the value kind carried by an attribute type.
type ValueType string

const (
	ValueTypeNone    ValueType = ""
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeLong    ValueType = "long"
	ValueTypeDouble  ValueType = "double"
	ValueTypeString  ValueType = "string"
	ValueTypeStruct  ValueType = "struct"
)

// Label is a scoped type name: an optional scope (the owning relation for
// role types) plus a name.
type Label struct {
	Scope string
	Name  string
}

func (l Label) String() string {
	if l.Scope == "" {
		return l.Name
	}
	return l.Scope + ":" + l.Name
}

// Annotation is a declared schema annotation (cardinality, uniqueness,
// abstract, key, ...).
type Annotation struct {
	Name  string
	Value string
}

// CapabilityKind distinguishes the three capability relations.
type CapabilityKind string

const (
	CapabilityOwns    CapabilityKind = "owns"
	CapabilityPlays   CapabilityKind = "plays"
	CapabilityRelates CapabilityKind = "relates"
)

// Capability is one declared Owns/Plays/Relates edge in the schema.
type Capability struct {
	Kind        CapabilityKind
	Source      encoding.TypeID // owner / player / relation
	Target      encoding.TypeID // attribute / role / role
	Ordered     bool
	Annotations []Annotation
}

// Type is a schema node: one entity, relation, attribute, or role type.
// All four variants share this struct with Kind as the discriminant,
// mirroring the flat-struct-with-string-enum style used for node/service
// records elsewhere in the ambient stack.
type Type struct {
	ID         encoding.TypeID
	Kind       Kind
	Label      Label
	ValueType  ValueType // attribute types only

	Supertype *encoding.TypeID
	Abstract  bool

	Annotations  []Annotation
	Capabilities []Capability // declared directly on this type
}

// IsSubtypeOf reports whether child's declared supertype chain in cache
// reaches parent (inclusive of child == parent).
func IsSubtypeOf(cache *Cache, child, parent encoding.TypeID) bool {
	if child == parent {
		return true
	}
	supers, ok := cache.Supertypes(child)
	if !ok {
		return false
	}
	for _, s := range supers {
		if s == parent {
			return true
		}
	}
	return false
}
