package ir

import "github.com/vertexdb/vertexdb/pkg/concept/thing"

// ParameterID is an opaque handle into a ParameterRegistry.
type ParameterID int

// ParameterRegistry interns every literal value appearing in a query, so
// constraints reference parameters by id instead of carrying the literal
// inline; the planner and executor substitute the actual value only at
// the point of use.
type ParameterRegistry struct {
	values []thing.Value
}

// NewParameterRegistry returns an empty registry.
func NewParameterRegistry() *ParameterRegistry {
	return &ParameterRegistry{}
}

// Intern records value and returns its id. Unlike VariableRegistry,
// interning does not deduplicate by value: the same literal appearing
// twice in a query is free to occupy two parameter slots, since the
// planner may statistics-bind each occurrence differently.
func (p *ParameterRegistry) Intern(value thing.Value) ParameterID {
	id := ParameterID(len(p.values))
	p.values = append(p.values, value)
	return id
}

// Value returns the literal value interned at id.
func (p *ParameterRegistry) Value(id ParameterID) thing.Value {
	return p.values[id]
}

// Len returns the number of interned parameters.
func (p *ParameterRegistry) Len() int {
	return len(p.values)
}
