// Package inference narrows each IR variable's candidate type set and each
// constraint's admissible type relation via fixpoint propagation over the
// schema, so the planner can cost steps against concrete candidate sizes
// instead of scanning the whole schema at plan time.
package inference

import (
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
)

// TypeSet is a variable's or edge endpoint's candidate type set.
type TypeSet map[encoding.TypeID]bool

func newTypeSet(ids ...encoding.TypeID) TypeSet {
	s := make(TypeSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func (s TypeSet) clone() TypeSet {
	out := make(TypeSet, len(s))
	for id := range s {
		out[id] = true
	}
	return out
}

// intersect removes from s any id not present in allowed, reporting
// whether the set changed.
func (s TypeSet) intersect(allowed TypeSet) bool {
	changed := false
	for id := range s {
		if !allowed[id] {
			delete(s, id)
			changed = true
		}
	}
	return changed
}

func union(sets ...TypeSet) TypeSet {
	out := make(TypeSet)
	for _, s := range sets {
		for id := range s {
			out[id] = true
		}
	}
	return out
}

// EdgeKind tags the schema relation an Edge's admissible pairs were
// derived from.
type EdgeKind int

const (
	EdgeIsa EdgeKind = iota
	EdgeOwns
	EdgeRelates
	EdgePlays
)

// Edge records one constraint's admissible type relation between two
// variables, in both directions, per spec's "both directions, plus
// optional filter sets" output shape.
type Edge struct {
	Kind  EdgeKind
	Left  ir.Variable
	Right ir.Variable

	LeftToRight map[encoding.TypeID]TypeSet
	RightToLeft map[encoding.TypeID]TypeSet
}

func newEdge(kind EdgeKind, left, right ir.Variable) *Edge {
	return &Edge{
		Kind:        kind,
		Left:        left,
		Right:       right,
		LeftToRight: make(map[encoding.TypeID]TypeSet),
		RightToLeft: make(map[encoding.TypeID]TypeSet),
	}
}

func (e *Edge) add(left, right encoding.TypeID) {
	if e.LeftToRight[left] == nil {
		e.LeftToRight[left] = make(TypeSet)
	}
	e.LeftToRight[left][right] = true
	if e.RightToLeft[right] == nil {
		e.RightToLeft[right] = make(TypeSet)
	}
	e.RightToLeft[right][left] = true
}

// TypeAnnotations is the output of Infer: each variable's narrowed
// candidate type set, plus one Edge per type-relating constraint
// encountered during propagation. A true Unsatisfiable means some
// variable's candidate set was narrowed to empty, which the planner
// reads as a signal to emit an empty iterator without touching storage.
type TypeAnnotations struct {
	Variables     map[ir.Variable]TypeSet
	Edges         []*Edge
	Unsatisfiable bool
}

func newTypeAnnotations() *TypeAnnotations {
	return &TypeAnnotations{Variables: make(map[ir.Variable]TypeSet)}
}

// Candidates returns v's narrowed candidate type set, or nil if v was
// never assigned one (value-category variables, or variables outside the
// block entirely).
func (ta *TypeAnnotations) Candidates(v ir.Variable) TypeSet {
	return ta.Variables[v]
}
