// Package encoding implements the bijective mapping between semantic
// entities (types, things, edges, attribute values) and the byte keys and
// values stored in the KV keyspaces. Byte layout follows the prefix +
// type-id + object-id vertex scheme: a fixed-width prefix byte identifies
// the vertex kind, followed by a 2-byte type id and an 8-byte object id.
package encoding

import (
	"encoding/binary"
	"fmt"
)

// Prefix identifies the kind of vertex or edge a key encodes.
type Prefix byte

const (
	PrefixTypeVertex   Prefix = 0x01
	PrefixEntity       Prefix = 0x10
	PrefixRelation     Prefix = 0x11
	PrefixAttribute    Prefix = 0x12
	PrefixHasForward   Prefix = 0x20 // owner -> attribute
	PrefixHasBackward  Prefix = 0x21 // attribute -> owner (reverse scan)
	PrefixLinksForward Prefix = 0x22 // relation -> (role, player)
	PrefixLinksBackward Prefix = 0x23 // player -> (role, relation)
	PrefixLabel        Prefix = 0x30 // label -> type-id
	PrefixValue        Prefix = 0x40 // value-table: hash -> canonical value
)

const (
	prefixLen = 1
	typeIDLen = 2
	objectIDLen = 8
)

// TypeID is the 2-byte identifier of a schema type, assigned on creation
// and stable for the type's lifetime.
type TypeID uint16

func (id TypeID) bytes() [typeIDLen]byte {
	var b [typeIDLen]byte
	binary.BigEndian.PutUint16(b[:], uint16(id))
	return b
}

func typeIDFromBytes(b []byte) TypeID {
	return TypeID(binary.BigEndian.Uint16(b))
}

// ObjectID is the 8-byte per-type monotonic identifier of an entity or
// relation instance.
type ObjectID uint64

func (id ObjectID) bytes() [objectIDLen]byte {
	var b [objectIDLen]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b
}

func objectIDFromBytes(b []byte) ObjectID {
	return ObjectID(binary.BigEndian.Uint64(b))
}

// ObjectVertex is the storage key of an entity or relation instance:
// prefix ∥ type-id ∥ object-id.
type ObjectVertex struct {
	Prefix   Prefix
	TypeID   TypeID
	ObjectID ObjectID
}

const ObjectVertexLength = prefixLen + typeIDLen + objectIDLen

// Encode serializes the vertex to its canonical key bytes.
func (v ObjectVertex) Encode() []byte {
	out := make([]byte, ObjectVertexLength)
	out[0] = byte(v.Prefix)
	tid := v.TypeID.bytes()
	copy(out[prefixLen:prefixLen+typeIDLen], tid[:])
	oid := v.ObjectID.bytes()
	copy(out[prefixLen+typeIDLen:], oid[:])
	return out
}

// DecodeObjectVertex parses bytes produced by Encode.
func DecodeObjectVertex(b []byte) (ObjectVertex, error) {
	if len(b) != ObjectVertexLength {
		return ObjectVertex{}, fmt.Errorf("encoding: object vertex must be %d bytes, got %d", ObjectVertexLength, len(b))
	}
	return ObjectVertex{
		Prefix:   Prefix(b[0]),
		TypeID:   typeIDFromBytes(b[prefixLen : prefixLen+typeIDLen]),
		ObjectID: objectIDFromBytes(b[prefixLen+typeIDLen:]),
	}, nil
}

// PrefixTypeKey returns the key prefix matching every vertex of the given
// kind, for a full-keyspace scan.
func PrefixTypeKey(p Prefix) []byte {
	return []byte{byte(p)}
}

// PrefixTypeAndType returns the key prefix matching every instance of a
// specific type, for a range scan.
func PrefixTypeAndType(p Prefix, t TypeID) []byte {
	out := make([]byte, prefixLen+typeIDLen)
	out[0] = byte(p)
	tid := t.bytes()
	copy(out[prefixLen:], tid[:])
	return out
}

// TypeVertex is the storage key of a schema type definition:
// PrefixTypeVertex ∥ type-id.
type TypeVertex struct {
	TypeID TypeID
}

// Encode serializes the type vertex key.
func (v TypeVertex) Encode() []byte {
	out := make([]byte, prefixLen+typeIDLen)
	out[0] = byte(PrefixTypeVertex)
	tid := v.TypeID.bytes()
	copy(out[prefixLen:], tid[:])
	return out
}

// DecodeTypeVertex parses bytes produced by TypeVertex.Encode.
func DecodeTypeVertex(b []byte) (TypeVertex, error) {
	if len(b) != prefixLen+typeIDLen || Prefix(b[0]) != PrefixTypeVertex {
		return TypeVertex{}, fmt.Errorf("encoding: not a type vertex key")
	}
	return TypeVertex{TypeID: typeIDFromBytes(b[prefixLen:])}, nil
}

// LabelKey returns the key of the label→type-id index entry for label.
func LabelKey(label string) []byte {
	out := make([]byte, prefixLen+len(label))
	out[0] = byte(PrefixLabel)
	copy(out[prefixLen:], label)
	return out
}

// HasForwardKey encodes an owner→attribute Has edge, ordered so a prefix
// scan over the owner's object vertex yields every owned attribute.
func HasForwardKey(owner ObjectVertex, attribute ObjectVertex) []byte {
	out := make([]byte, 0, prefixLen+2*ObjectVertexLength)
	out = append(out, byte(PrefixHasForward))
	out = append(out, owner.Encode()...)
	out = append(out, attribute.Encode()...)
	return out
}

// HasBackwardKey encodes the inverse attribute→owner direction of the same
// edge, so reverse lookups (who owns this attribute) need no extra index.
func HasBackwardKey(attribute ObjectVertex, owner ObjectVertex) []byte {
	out := make([]byte, 0, prefixLen+2*ObjectVertexLength)
	out = append(out, byte(PrefixHasBackward))
	out = append(out, attribute.Encode()...)
	out = append(out, owner.Encode()...)
	return out
}

// LinksForwardKey encodes a relation→(role, player) Links edge.
func LinksForwardKey(relation ObjectVertex, role TypeID, player ObjectVertex) []byte {
	out := make([]byte, 0, prefixLen+ObjectVertexLength+typeIDLen+ObjectVertexLength)
	out = append(out, byte(PrefixLinksForward))
	out = append(out, relation.Encode()...)
	rb := role.bytes()
	out = append(out, rb[:]...)
	out = append(out, player.Encode()...)
	return out
}

// LinksBackwardKey encodes the inverse player→(role, relation) direction.
func LinksBackwardKey(player ObjectVertex, role TypeID, relation ObjectVertex) []byte {
	out := make([]byte, 0, prefixLen+ObjectVertexLength+typeIDLen+ObjectVertexLength)
	out = append(out, byte(PrefixLinksBackward))
	out = append(out, player.Encode()...)
	rb := role.bytes()
	out = append(out, rb[:]...)
	out = append(out, relation.Encode()...)
	return out
}
