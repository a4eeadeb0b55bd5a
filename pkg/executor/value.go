package executor

import (
	"bytes"

	"github.com/vertexdb/vertexdb/pkg/concept/thing"
)

// valueLiteral is a comparison-ready projection of a thing.Value: exactly
// one of the typed fields is meaningful, selected by kind.
type valueLiteral struct {
	kind    thing.ValueKind
	boolean bool
	long    int64
	double  float64
	str     string
	raw     []byte
}

func fromThingValue(v thing.Value) valueLiteral {
	return valueLiteral{kind: v.Kind, boolean: v.Boolean, long: v.Long, double: v.Double, str: v.String, raw: v.StructRaw}
}

// compareValues orders two literals of the same or numerically
// compatible kinds, returning ok=false for kinds with no defined
// ordering (booleans, structs: equality only, expressed as 0 or
// non-zero with no meaningful sign).
func compareValues(a, b valueLiteral) (int, bool) {
	switch {
	case a.kind == thing.ValueLong && b.kind == thing.ValueLong:
		return compareInt64(a.long, b.long), true
	case isNumeric(a.kind) && isNumeric(b.kind):
		return compareFloat64(numericOf(a), numericOf(b)), true
	case a.kind == thing.ValueString && b.kind == thing.ValueString:
		return bytes.Compare([]byte(a.str), []byte(b.str)), true
	case a.kind == thing.ValueBoolean && b.kind == thing.ValueBoolean:
		if a.boolean == b.boolean {
			return 0, true
		}
		if !a.boolean && b.boolean {
			return -1, true
		}
		return 1, true
	case a.kind == thing.ValueStruct && b.kind == thing.ValueStruct:
		return bytes.Compare(a.raw, b.raw), true
	default:
		return 0, false
	}
}

func isNumeric(k thing.ValueKind) bool { return k == thing.ValueLong || k == thing.ValueDouble }

func numericOf(v valueLiteral) float64 {
	if v.kind == thing.ValueLong {
		return float64(v.long)
	}
	return v.double
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func longValue(v int64) thing.Value     { return thing.Value{Kind: thing.ValueLong, Long: v} }
func doubleValue(v float64) thing.Value { return thing.Value{Kind: thing.ValueDouble, Double: v} }
