package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ValueType tags the kind of an attribute value.
type ValueType byte

const (
	ValueTypeBoolean ValueType = iota + 1
	ValueTypeLong
	ValueTypeDouble
	ValueTypeString
	ValueTypeStruct
)

const (
	attributeHeaderLen = 4
	attributeIDLen     = 8
)

// AttributeID is the header + id byte pair identifying a canonical
// attribute value. Fixed-width values (boolean, long, double) are encoded
// directly in the 8-byte id; variable-length values (string, struct) store
// an xxhash of the canonical bytes here and the bytes themselves in the
// value table.
type AttributeID struct {
	Header [attributeHeaderLen]byte
	ID     uint64
}

const AttributeIDLength = attributeHeaderLen + attributeIDLen

// Encode serializes the attribute id to its canonical bytes.
func (a AttributeID) Encode() []byte {
	out := make([]byte, AttributeIDLength)
	copy(out[:attributeHeaderLen], a.Header[:])
	binary.BigEndian.PutUint64(out[attributeHeaderLen:], a.ID)
	return out
}

// DecodeAttributeID parses bytes produced by Encode.
func DecodeAttributeID(b []byte) (AttributeID, error) {
	if len(b) != AttributeIDLength {
		return AttributeID{}, fmt.Errorf("encoding: attribute id must be %d bytes, got %d", AttributeIDLength, len(b))
	}
	var a AttributeID
	copy(a.Header[:], b[:attributeHeaderLen])
	a.ID = binary.BigEndian.Uint64(b[attributeHeaderLen:])
	return a, nil
}

func header(vt ValueType) [attributeHeaderLen]byte {
	return [attributeHeaderLen]byte{byte(vt), 0, 0, 0}
}

// EncodeBoolean builds the inline attribute id for a boolean value.
func EncodeBoolean(v bool) AttributeID {
	var id uint64
	if v {
		id = 1
	}
	return AttributeID{Header: header(ValueTypeBoolean), ID: id}
}

// EncodeLong builds the inline attribute id for a 64-bit integer value.
func EncodeLong(v int64) AttributeID {
	return AttributeID{Header: header(ValueTypeLong), ID: uint64(v)}
}

// EncodeDouble builds the inline attribute id for a float64 value.
func EncodeDouble(v float64) AttributeID {
	return AttributeID{Header: header(ValueTypeDouble), ID: math.Float64bits(v)}
}

// HashString computes the value-table lookup id for a string value: its
// 64-bit xxhash, which fills the 8-byte id slot. The canonical bytes
// themselves are stored separately in the value table under ValueKey.
func HashString(s string) AttributeID {
	return AttributeID{Header: header(ValueTypeString), ID: xxhash.Sum64String(s)}
}

// HashStruct computes the value-table lookup id for struct-valued
// attributes, hashing their canonical encoded bytes.
func HashStruct(canonical []byte) AttributeID {
	return AttributeID{Header: header(ValueTypeStruct), ID: xxhash.Sum64(canonical)}
}

// DecodeBoolean extracts a boolean from an inline-encoded attribute id.
func DecodeBoolean(a AttributeID) bool {
	return a.ID != 0
}

// DecodeLong extracts an int64 from an inline-encoded attribute id.
func DecodeLong(a AttributeID) int64 {
	return int64(a.ID)
}

// DecodeDouble extracts a float64 from an inline-encoded attribute id.
func DecodeDouble(a AttributeID) float64 {
	return math.Float64frombits(a.ID)
}

// ValueKey returns the value-table storage key for an attribute id whose
// value type requires an out-of-line lookup (string, struct).
func ValueKey(typeID TypeID, a AttributeID) []byte {
	out := make([]byte, 0, prefixLen+typeIDLen+AttributeIDLength)
	out = append(out, byte(PrefixValue))
	tb := typeID.bytes()
	out = append(out, tb[:]...)
	out = append(out, a.Encode()...)
	return out
}
