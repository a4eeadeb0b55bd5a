package executor

import "github.com/vertexdb/vertexdb/pkg/planner"

// runDisjunction runs every branch against the current row and
// concatenates their outputs, continuing the enclosing step sequence for
// each; row positions a branch never touches are left unbound (the zero
// VariableValue), matching spec.md's "padding unbound positions with
// empty".
func (c *Context) runDisjunction(exe *planner.MatchExecutable, step planner.ExecutionStep, rest []planner.ExecutionStep, row Row, emit func(Row) bool) (bool, error) {
	keepGoing := true
	var innerErr error
	for _, branch := range step.Branches {
		if !keepGoing {
			break
		}
		err := c.RunMatch(branch, row, func(branchRow Row) bool {
			extended := branchRow.clone(exe.OutputWidth)
			cont, rerr := c.runSteps(exe, rest, extended, emit)
			if rerr != nil {
				innerErr = rerr
				return false
			}
			keepGoing = cont
			return cont
		})
		if err != nil {
			return false, err
		}
		if innerErr != nil {
			return false, innerErr
		}
	}
	return keepGoing, nil
}

// runNegation drops row if its child executable finds any match at all,
// otherwise continues the enclosing step sequence unchanged.
func (c *Context) runNegation(exe *planner.MatchExecutable, step planner.ExecutionStep, rest []planner.ExecutionStep, row Row, emit func(Row) bool) (bool, error) {
	found := false
	if err := c.RunMatch(step.Child, row, func(Row) bool { found = true; return false }); err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	return c.runSteps(exe, rest, row, emit)
}

// runOptional runs the child executable; every match it finds continues
// the enclosing step sequence with its bindings added, and if it finds
// none, row continues unchanged (its optional variables stay unbound).
func (c *Context) runOptional(exe *planner.MatchExecutable, step planner.ExecutionStep, rest []planner.ExecutionStep, row Row, emit func(Row) bool) (bool, error) {
	found := false
	keepGoing := true
	var innerErr error
	err := c.RunMatch(step.Child, row, func(childRow Row) bool {
		found = true
		extended := childRow.clone(exe.OutputWidth)
		cont, rerr := c.runSteps(exe, rest, extended, emit)
		if rerr != nil {
			innerErr = rerr
			return false
		}
		keepGoing = cont
		return cont
	})
	if err != nil {
		return false, err
	}
	if innerErr != nil {
		return false, innerErr
	}
	if !found {
		return c.runSteps(exe, rest, row, emit)
	}
	return keepGoing, nil
}
