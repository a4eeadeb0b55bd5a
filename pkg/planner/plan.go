package planner

import (
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/ir"
)

// searchableKinds is the set of constraint kinds the planner treats as
// storage-backed accessors eligible for intersection/check placement; the
// rest (schema-definition constraints, value/role-name constraints) carry
// no candidate-set cost and are placed as checks once their variables are
// bound.
func searchable(kind ir.ConstraintKind) bool {
	switch kind {
	case ir.ConstraintIsa, ir.ConstraintHas, ir.ConstraintLinks, ir.ConstraintIid:
		return true
	default:
		return false
	}
}

// Plan builds a MatchExecutable for conj: a cost-ordered sequence of
// ExecutionSteps followed by a contiguous position assignment. input is
// the set of variables already bound before this conjunction runs (e.g.
// from an enclosing query's earlier stage).
func Plan(conj *ir.Conjunction, input map[ir.Variable]VariablePosition, ta *inference.TypeAnnotations, stats *Statistics) *MatchExecutable {
	b := &builder{
		bound:     make(map[ir.Variable]bool, len(input)),
		ta:        ta,
		stats:     stats,
		positions: make(map[ir.Variable]VariablePosition, len(input)),
	}
	for v, pos := range input {
		b.bound[v] = true
		b.positions[v] = pos
		if int(pos)+1 > b.next {
			b.next = int(pos) + 1
		}
	}

	b.planConjunction(conj)

	return &MatchExecutable{
		Steps:             b.steps,
		OutputWidth:       b.next,
		VariablePositions: b.positions,
	}
}

type builder struct {
	bound     map[ir.Variable]bool
	positions map[ir.Variable]VariablePosition
	next      int

	ta    *inference.TypeAnnotations
	stats *Statistics

	steps []ExecutionStep
}

func (b *builder) position(v ir.Variable) VariablePosition {
	if pos, ok := b.positions[v]; ok {
		return pos
	}
	pos := VariablePosition(b.next)
	b.positions[v] = pos
	b.next++
	return pos
}

func (b *builder) planConjunction(conj *ir.Conjunction) {
	remaining := transformIndexedRelations(conj.Constraints)

	var checks []ir.Constraint
	for len(remaining) > 0 {
		idx, inst := b.pickNext(remaining)
		if idx < 0 {
			// Every remaining constraint's variables are already bound;
			// everything left is a post-hoc check.
			checks = append(checks, remaining...)
			break
		}
		c := remaining[idx]
		remaining = append(remaining[:idx:idx], remaining[idx+1:]...)

		for _, v := range c.VariablesWritten() {
			b.position(v)
			b.bound[v] = true
		}

		if searchable(c.Kind) {
			b.steps = append(b.steps, ExecutionStep{
				Kind:         StepIntersection,
				SortVariable: inst.SortVariable,
				Instructions: []Instruction{inst},
				OutputWidth:  b.next,
			})
		} else if c.Kind == ir.ConstraintExpressionBinding || c.Kind == ir.ConstraintFunctionCallBinding {
			b.steps = append(b.steps, ExecutionStep{Kind: StepAssignment, Assignment: c, OutputWidth: b.next})
		} else {
			checks = append(checks, c)
		}
	}

	if len(checks) > 0 {
		b.steps = append(b.steps, ExecutionStep{Kind: StepCheck, Checks: checks, OutputWidth: b.next})
	}

	for i := range conj.Nested {
		b.planNested(&conj.Nested[i])
	}
}

// pickNext chooses the lowest-estimated-cost constraint among those with
// at most one unbound "sort" variable, mirroring the planner's "a
// candidate step chooses constraints sorted by one sort variable, with
// the rest already bound, bound by this step, or checked after". Returns
// -1 when nothing remaining is eligible to search (every candidate is
// fully bound already, so it becomes a check instead).
func (b *builder) pickNext(constraints []ir.Constraint) (int, Instruction) {
	best := -1
	var bestInst Instruction
	var bestCost float64

	for i, c := range constraints {
		if !searchable(c.Kind) {
			continue
		}
		sortVar, mode, ok := b.chooseSortVariable(c)
		if !ok {
			continue
		}
		cost := b.estimateCost(c, sortVar, mode)
		if best < 0 || cost < bestCost {
			best = i
			bestCost = cost
			bestInst = Instruction{Constraint: c, Mode: mode, SortVariable: sortVar, Indexed: c.Indexed}
		}
	}
	return best, bestInst
}

// chooseSortVariable decides which of c's variables drives iteration:
// prefer an already-unbound endpoint seeked from a bound one (BoundFrom);
// fall back to the first unbound variable via a full Unbound scan when
// nothing is bound yet.
func (b *builder) chooseSortVariable(c ir.Constraint) (ir.Variable, IterateMode, bool) {
	vars := constraintVariables(c)
	if len(vars) == 0 {
		return 0, Unbound, false
	}

	var anyBound bool
	var firstUnbound ir.Variable = -1
	for _, v := range vars {
		if b.bound[v] {
			anyBound = true
		} else if firstUnbound < 0 {
			firstUnbound = v
		}
	}
	if firstUnbound < 0 {
		// every variable already bound: nothing left to search for.
		return 0, Unbound, false
	}
	if anyBound {
		return firstUnbound, BoundFrom, true
	}
	return firstUnbound, Unbound, true
}

func constraintVariables(c ir.Constraint) []ir.Variable {
	seen := make(map[ir.Variable]bool)
	var out []ir.Variable
	add := func(v ir.Variable) {
		if v >= 0 && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	add(c.Variable)
	add(c.Type)
	add(c.Attribute)
	add(c.Relation)
	for _, rp := range c.RolePlayers {
		add(rp.Role)
		add(rp.Player)
	}
	add(c.Other)
	return out
}

// estimateCost combines the candidate-set size from type annotations with
// recorded instance/edge statistics, falling back to the candidate-set
// size alone when no statistics were recorded (a cold database).
func (b *builder) estimateCost(c ir.Constraint, sortVar ir.Variable, mode IterateMode) float64 {
	candidates := b.ta.Candidates(sortVar)
	if len(candidates) == 0 {
		return 1 // unseeded (e.g. value-category) variables cost nothing to bind here
	}

	var total uint64
	for t := range candidates {
		total += b.stats.InstanceCount(t)
	}
	if total == 0 {
		total = uint64(len(candidates))
	}

	cost := float64(total)
	if mode == BoundFrom {
		// a seek-and-scan is cheaper than a full scan of the same relation.
		cost /= float64(len(candidates) + 1)
	}
	if c.Kind == ir.ConstraintLinks && c.Indexed {
		cost /= 2 // a two-sided indexed-relation lookup replaces two traversals
	}
	return cost
}

func (b *builder) planNested(n *ir.Pattern) {
	switch n.Kind {
	case ir.PatternDisjunction:
		step := ExecutionStep{Kind: StepDisjunction, OutputWidth: b.next}
		for i := range n.Branches {
			branchPositions := make(map[ir.Variable]VariablePosition, len(b.positions))
			for v, pos := range b.positions {
				branchPositions[v] = pos
			}
			exe := Plan(&n.Branches[i], branchPositions, b.ta, b.stats)
			step.Branches = append(step.Branches, exe)
			for v, pos := range exe.VariablePositions {
				if _, ok := b.positions[v]; !ok {
					b.positions[v] = pos
					if int(pos)+1 > b.next {
						b.next = int(pos) + 1
					}
				}
			}
		}
		step.OutputWidth = b.next
		b.steps = append(b.steps, step)
	case ir.PatternNegation, ir.PatternOptional:
		if n.Child == nil {
			return
		}
		childPositions := make(map[ir.Variable]VariablePosition, len(b.positions))
		for v, pos := range b.positions {
			childPositions[v] = pos
		}
		exe := Plan(n.Child, childPositions, b.ta, b.stats)
		kind := StepNegation
		if n.Kind == ir.PatternOptional {
			kind = StepOptional
			for v, pos := range exe.VariablePositions {
				if _, ok := b.positions[v]; !ok {
					b.positions[v] = pos
					if int(pos)+1 > b.next {
						b.next = int(pos) + 1
					}
				}
			}
		}
		b.steps = append(b.steps, ExecutionStep{Kind: kind, Child: exe, OutputWidth: b.next})
	}
}

// transformIndexedRelations finds Links constraints on a relation
// variable connected by exactly two role-player pairs and marks them as
// eligible for a single two-sided IndexedRelation lookup instead of two
// independent role traversals, per spec.md §4.10. The rewrite only
// applies within one conjunction's own constraint list; nested patterns
// are transformed independently when planNested recurses into them.
func transformIndexedRelations(constraints []ir.Constraint) []ir.Constraint {
	out := make([]ir.Constraint, len(constraints))
	copy(out, constraints)
	for i, c := range out {
		if c.Kind == ir.ConstraintLinks && len(c.RolePlayers) == 2 {
			out[i].Indexed = true
		}
	}
	return out
}
