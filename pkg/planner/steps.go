package planner

import "github.com/vertexdb/vertexdb/pkg/ir"

// VariablePosition is a variable's contiguous positional index within a
// row, assigned by lowering: input variables keep their caller-assigned
// positions, and variables introduced later get successive ones.
type VariablePosition int

// IterateMode determines how a single-constraint instruction reads
// storage, chosen from which of its endpoints are already bound when the
// step runs.
type IterateMode int

const (
	// Unbound scans the full relation the constraint ranges over.
	Unbound IterateMode = iota
	// UnboundInverted scans the full relation but sorted by the opposite
	// endpoint, for constraints whose natural key order doesn't match the
	// step's chosen sort variable.
	UnboundInverted
	// BoundFrom seeks on the already-bound endpoint and scans from there.
	BoundFrom
)

// Instruction is one constraint lowered for execution: the original IR
// constraint (the executor interprets its Kind to choose a storage
// accessor), the iterate mode its bindings imply, and the variable the
// step as a whole is sorted by.
type Instruction struct {
	Constraint   ir.Constraint
	Mode         IterateMode
	SortVariable ir.Variable
	// Indexed is set when a two-role-player Links constraint was folded
	// into a single indexed-relation lookup rather than two independent
	// role traversals; see transformIndexedRelations.
	Indexed bool
}

// StepKind tags the variant of an ExecutionStep.
type StepKind int

const (
	StepIntersection StepKind = iota
	StepUnsortedJoin
	StepCheck
	StepAssignment
	StepDisjunction
	StepNegation
	StepOptional
)

// ExecutionStep is one step of a MatchExecutable's straight-line program.
type ExecutionStep struct {
	Kind StepKind

	// Intersection / UnsortedJoin
	SortVariable ir.Variable
	Instructions []Instruction

	// Check
	Checks []ir.Constraint

	// Assignment
	Assignment ir.Constraint

	// Disjunction
	Branches []*MatchExecutable

	// Negation / Optional
	Child *MatchExecutable

	OutputWidth int
}

// MatchExecutable is the planner's output for one conjunction: an ordered
// step sequence plus the position every variable it touches was assigned.
type MatchExecutable struct {
	Steps             []ExecutionStep
	OutputWidth       int
	VariablePositions map[ir.Variable]VariablePosition
}

// WriteExecutable is the straight-line program for an insert/update/delete
// stage: no search, just a sequence of thing/connection instructions.
type WriteExecutable struct {
	Kind         ir.WriteStageKind
	Instructions []ir.Constraint
	DeleteRoles  []ir.Variable
}
