package executor

import (
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
)

// RunMatch realizes exe against storage starting from input (typically a
// single all-unbound row, or an outer query's current row when exe plans
// a nested pattern), calling emit for every row that satisfies the whole
// step sequence. emit's return value controls whether the scan continues.
func (c *Context) RunMatch(exe *planner.MatchExecutable, input Row, emit func(Row) bool) error {
	row := input.clone(exe.OutputWidth)
	_, err := c.runSteps(exe, exe.Steps, row, emit)
	return err
}

func (c *Context) checkInterrupt() error {
	if c.Interrupt == nil {
		return nil
	}
	return c.Interrupt.Check()
}

func (c *Context) runSteps(exe *planner.MatchExecutable, steps []planner.ExecutionStep, row Row, emit func(Row) bool) (bool, error) {
	if err := c.checkInterrupt(); err != nil {
		return false, err
	}
	if len(steps) == 0 {
		return emit(row), nil
	}

	step := steps[0]
	rest := steps[1:]
	switch step.Kind {
	case planner.StepIntersection:
		return c.runIntersection(exe, step, rest, row, emit)
	case planner.StepCheck:
		ok, err := c.runChecks(exe, step.Checks, row)
		if err != nil || !ok {
			return true, err
		}
		return c.runSteps(exe, rest, row, emit)
	case planner.StepAssignment:
		newRow, ok, err := c.runAssignment(step.Assignment, row)
		if err != nil || !ok {
			return true, err
		}
		return c.runSteps(exe, rest, newRow, emit)
	case planner.StepDisjunction:
		return c.runDisjunction(exe, step, rest, row, emit)
	case planner.StepNegation:
		return c.runNegation(exe, step, rest, row, emit)
	case planner.StepOptional:
		return c.runOptional(exe, step, rest, row, emit)
	default:
		return c.runSteps(exe, rest, row, emit)
	}
}

// runIntersection realizes the step's lead instruction against storage,
// post-filtering each candidate row through any further instructions in
// the step as a semi-join check (our planner only ever places one
// instruction per intersection step; the multi-instruction merge-join
// spec.md describes degenerates correctly to this when there is exactly
// one, and remains correct, if not optimally lazy, for more).
func (c *Context) runIntersection(exe *planner.MatchExecutable, step planner.ExecutionStep, rest []planner.ExecutionStep, row Row, emit func(Row) bool) (bool, error) {
	if len(step.Instructions) == 0 {
		return c.runSteps(exe, rest, row, emit)
	}

	lead := step.Instructions[0]
	extra := step.Instructions[1:]

	keepGoing := true
	var innerErr error
	err := c.realize(exe, lead, row, func(extended Row) bool {
		ok, verr := c.verifyAll(exe, extra, extended)
		if verr != nil {
			innerErr = verr
			return false
		}
		if !ok {
			return true
		}
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
	return keepGoing, nil
}

func (c *Context) verifyAll(exe *planner.MatchExecutable, extra []planner.Instruction, row Row) (bool, error) {
	for _, inst := range extra {
		ok, err := c.verifySearchable(exe, inst.Constraint, row)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// realize dispatches one searchable instruction to its storage-backed
// iterator, extending row with the instruction's unbound variables and
// invoking fn for every resulting binding.
func (c *Context) realize(exe *planner.MatchExecutable, inst planner.Instruction, row Row, fn func(Row) bool) error {
	switch inst.Constraint.Kind {
	case ir.ConstraintIsa:
		return c.realizeIsa(exe, inst, row, fn)
	case ir.ConstraintHas:
		return c.realizeHas(exe, inst, row, fn)
	case ir.ConstraintLinks:
		return c.realizeLinks(exe, inst, row, fn)
	case ir.ConstraintIid:
		return c.realizeIid(exe, inst, row, fn)
	default:
		fn(row)
		return nil
	}
}

func (c *Context) realizeIsa(exe *planner.MatchExecutable, inst planner.Instruction, row Row, fn func(Row) bool) error {
	con := inst.Constraint
	instPos, instOk := variablePosition(exe, con.Variable)
	typePos, typeOk := variablePosition(exe, con.Type)

	if instOk && row.bound(instPos) {
		tid, ok := typeIDOf(row.get(instPos))
		if !ok {
			return nil
		}
		if typeOk && row.bound(typePos) {
			cell := row.get(typePos)
			if cell.Kind == CellType && cell.Type == tid {
				fn(row)
			}
			return nil
		}
		newRow := row.clone(len(row))
		if typeOk {
			newRow[typePos] = typeCell(tid)
		}
		fn(newRow)
		return nil
	}

	types := c.candidateTypes(row, exe, con.Type)
	keepGoing := true
	for _, tid := range types {
		if !keepGoing {
			break
		}
		t, ok := c.Types.Get(tid)
		if !ok {
			continue
		}
		var scanErr error
		switch t.Kind {
		case typesystem.KindEntity:
			scanErr = c.Things.GetEntitiesIn(c.Reader, tid, func(o thing.Object) bool {
				newRow := row.clone(len(row))
				if instOk {
					newRow[instPos] = objectCell(o)
				}
				if typeOk {
					newRow[typePos] = typeCell(tid)
				}
				keepGoing = fn(newRow)
				return keepGoing
			})
		case typesystem.KindRelation:
			scanErr = c.Things.GetRelationsIn(c.Reader, tid, func(o thing.Object) bool {
				newRow := row.clone(len(row))
				if instOk {
					newRow[instPos] = objectCell(o)
				}
				if typeOk {
					newRow[typePos] = typeCell(tid)
				}
				keepGoing = fn(newRow)
				return keepGoing
			})
		case typesystem.KindAttribute:
			scanErr = c.Things.GetAttributesIn(c.Reader, tid, func(a thing.Attribute, _ []byte) bool {
				value, derr := c.decodeValue(tid, a.ID)
				if derr != nil {
					scanErr = derr
					return false
				}
				a.Value = value
				newRow := row.clone(len(row))
				if instOk {
					newRow[instPos] = attributeCell(a)
				}
				if typeOk {
					newRow[typePos] = typeCell(tid)
				}
				keepGoing = fn(newRow)
				return keepGoing
			})
		default:
			continue
		}
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}

func (c *Context) realizeHas(exe *planner.MatchExecutable, inst planner.Instruction, row Row, fn func(Row) bool) error {
	con := inst.Constraint
	ownerPos, ownerOk := variablePosition(exe, con.Variable)
	attrPos, attrOk := variablePosition(exe, con.Attribute)
	ownerBound := ownerOk && row.bound(ownerPos)
	attrBound := attrOk && row.bound(attrPos)

	if ownerBound && attrBound {
		ok, err := c.verifyHas(row.get(ownerPos), row.get(attrPos))
		if err != nil {
			return err
		}
		if ok {
			fn(row)
		}
		return nil
	}

	if ownerBound {
		ownerCell := row.get(ownerPos)
		owner, ok := objectVertexOf(ownerCell)
		if !ok {
			return nil
		}
		attrTypes := c.Annotation.Candidates(con.Attribute)
		keepGoing := true
		return c.Things.AttributesOfOwner(c.Reader, thing.Object{Vertex: owner}, func(av encoding.ObjectVertex) bool {
			if len(attrTypes) > 0 && !attrTypes[av.TypeID] {
				return true
			}
			attr, derr := c.attributeFromVertex(av)
			if derr != nil {
				keepGoing = false
				return false
			}
			newRow := row.clone(len(row))
			if attrOk {
				newRow[attrPos] = attributeCell(attr)
			}
			keepGoing = fn(newRow)
			return keepGoing
		})
	}

	if attrBound {
		attrCell := row.get(attrPos)
		if attrCell.Kind != CellAttribute {
			return nil
		}
		ownerTypes := c.Annotation.Candidates(con.Variable)
		keepGoing := true
		return c.Things.OwnersOfAttribute(c.Reader, attrCell.Attribute, func(ov encoding.ObjectVertex) bool {
			if len(ownerTypes) > 0 && !ownerTypes[ov.TypeID] {
				return true
			}
			newRow := row.clone(len(row))
			if ownerOk {
				newRow[ownerPos] = objectCell(thing.Object{Vertex: ov})
			}
			keepGoing = fn(newRow)
			return keepGoing
		})
	}

	// Neither side bound: full range scan over every candidate owner
	// type, post-filtered to the candidate attribute types.
	ownerTypes := c.Annotation.Candidates(con.Variable)
	attrTypes := c.Annotation.Candidates(con.Attribute)
	if len(ownerTypes) == 0 {
		return nil
	}
	lowType, highType := typeRange(ownerTypes)
	keepGoing := true
	return c.Things.GetHasFromOwnerTypeRangeUnordered(c.Reader, lowType, highType, func(owner, attribute encoding.ObjectVertex) bool {
		if !ownerTypes[owner.TypeID] {
			return true
		}
		if len(attrTypes) > 0 && !attrTypes[attribute.TypeID] {
			return true
		}
		attr, derr := c.attributeFromVertex(attribute)
		if derr != nil {
			keepGoing = false
			return false
		}
		newRow := row.clone(len(row))
		if ownerOk {
			newRow[ownerPos] = objectCell(thing.Object{Vertex: owner})
		}
		if attrOk {
			newRow[attrPos] = attributeCell(attr)
		}
		keepGoing = fn(newRow)
		return keepGoing
	})
}

func (c *Context) verifyHas(ownerCell, attrCell VariableValue) (bool, error) {
	owner, ok := ownerCell.Object, ownerCell.Kind == CellObject
	if !ok {
		return false, nil
	}
	if attrCell.Kind != CellAttribute {
		return false, nil
	}
	return c.Things.HasEdgeExists(c.Reader, owner, attrCell.Attribute)
}

func typeRange(set map[encoding.TypeID]bool) (low, high encoding.TypeID) {
	first := true
	for id := range set {
		if first || id < low {
			low = id
		}
		if first || id > high {
			high = id
		}
		first = false
	}
	return low, high
}

func (c *Context) realizeLinks(exe *planner.MatchExecutable, inst planner.Instruction, row Row, fn func(Row) bool) error {
	con := inst.Constraint
	relPos, relOk := variablePosition(exe, con.Relation)

	if relOk && row.bound(relPos) {
		relVertex, ok := objectVertexOf(row.get(relPos))
		if !ok {
			return nil
		}
		keepGoing := true
		c.walkRolePlayers(exe, con, 0, thing.Object{Vertex: relVertex}, row, func(r Row) bool {
			keepGoing = fn(r)
			return keepGoing
		})
		return nil
	}

	// Relation unbound: seek from the first already-bound player instead
	// of enumerating every candidate relation type from scratch.
	for _, rp := range con.RolePlayers {
		playerPos, ok := variablePosition(exe, rp.Player)
		if !ok || !row.bound(playerPos) {
			continue
		}
		playerVertex, ok := objectVertexOf(row.get(playerPos))
		if !ok {
			continue
		}
		relTypes := c.Annotation.Candidates(con.Relation)
		keepGoing := true
		return c.Things.RelationsOfPlayer(c.Reader, thing.Object{Vertex: playerVertex}, func(_ encoding.TypeID, relation encoding.ObjectVertex) bool {
			if len(relTypes) > 0 && !relTypes[relation.TypeID] {
				return true
			}
			newRow := row.clone(len(row))
			if relOk {
				newRow[relPos] = objectCell(thing.Object{Vertex: relation})
			}
			c.walkRolePlayers(exe, con, 0, thing.Object{Vertex: relation}, newRow, func(r Row) bool {
				keepGoing = fn(r)
				return keepGoing
			})
			return keepGoing
		})
	}

	for tid := range c.Annotation.Candidates(con.Relation) {
		keepGoing := true
		scanErr := c.Things.GetRelationsIn(c.Reader, tid, func(o thing.Object) bool {
			newRow := row.clone(len(row))
			if relOk {
				newRow[relPos] = objectCell(o)
			}
			c.walkRolePlayers(exe, con, 0, o, newRow, func(r Row) bool {
				keepGoing = fn(r)
				return keepGoing
			})
			return keepGoing
		})
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}

// walkRolePlayers matches con's role-player list, one pair at a time,
// against relation's actual (role, player) edges, extending row at each
// step and invoking fn once every pair has been matched. Bound players
// narrow the per-pair scan to a membership check instead of a full
// enumeration of relation's edges.
func (c *Context) walkRolePlayers(exe *planner.MatchExecutable, con ir.Constraint, idx int, relation thing.Object, row Row, fn func(Row) bool) bool {
	if idx == len(con.RolePlayers) {
		return fn(row)
	}
	rp := con.RolePlayers[idx]
	rolePos, roleOk := variablePosition(exe, rp.Role)
	playerPos, playerOk := variablePosition(exe, rp.Player)
	playerBound := playerOk && row.bound(playerPos)

	var boundPlayer encoding.ObjectVertex
	if playerBound {
		v, ok := objectVertexOf(row.get(playerPos))
		if !ok {
			return true
		}
		boundPlayer = v
	}

	keepGoing := true
	_ = c.Things.PlayersOfRelation(c.Reader, relation, func(role encoding.TypeID, player encoding.ObjectVertex) bool {
		if playerBound && player != boundPlayer {
			return true
		}
		if roleOk && row.bound(rolePos) {
			if cell := row.get(rolePos); cell.Kind != CellType || cell.Type != role {
				return true
			}
		}
		next := row.clone(len(row))
		if roleOk {
			next[rolePos] = typeCell(role)
		}
		if playerOk {
			next[playerPos] = objectCell(thing.Object{Vertex: player})
		}
		keepGoing = c.walkRolePlayers(exe, con, idx+1, relation, next, fn)
		return keepGoing
	})
	return keepGoing
}

func (c *Context) realizeIid(exe *planner.MatchExecutable, inst planner.Instruction, row Row, fn func(Row) bool) error {
	con := inst.Constraint
	pos, ok := variablePosition(exe, con.Variable)
	if !ok {
		return nil
	}
	vertex, err := encoding.DecodeObjectVertex([]byte(con.Iid))
	if err != nil {
		return nil
	}
	switch vertex.Prefix {
	case encoding.PrefixAttribute:
		attr, derr := c.attributeFromVertex(vertex)
		if derr != nil {
			return derr
		}
		newRow := row.clone(len(row))
		newRow[pos] = attributeCell(attr)
		fn(newRow)
	default:
		newRow := row.clone(len(row))
		newRow[pos] = objectCell(thing.Object{Vertex: vertex})
		fn(newRow)
	}
	return nil
}

// verifySearchable checks an already-fully-bound searchable constraint
// (planned as a Check because nothing it mentions remained unbound by
// the time it was considered) without re-scanning storage.
func (c *Context) verifySearchable(exe *planner.MatchExecutable, con ir.Constraint, row Row) (bool, error) {
	switch con.Kind {
	case ir.ConstraintIsa:
		instPos, ok := variablePosition(exe, con.Variable)
		if !ok || !row.bound(instPos) {
			return false, nil
		}
		tid, ok := typeIDOf(row.get(instPos))
		if !ok {
			return false, nil
		}
		if typePos, ok := variablePosition(exe, con.Type); ok && row.bound(typePos) {
			cell := row.get(typePos)
			return cell.Kind == CellType && cell.Type == tid, nil
		}
		candidates := c.Annotation.Candidates(con.Type)
		if len(candidates) == 0 {
			return true, nil
		}
		return candidates[tid], nil
	case ir.ConstraintHas:
		ownerPos, ok1 := variablePosition(exe, con.Variable)
		attrPos, ok2 := variablePosition(exe, con.Attribute)
		if !ok1 || !ok2 || !row.bound(ownerPos) || !row.bound(attrPos) {
			return false, nil
		}
		return c.verifyHas(row.get(ownerPos), row.get(attrPos))
	case ir.ConstraintLinks:
		relPos, ok := variablePosition(exe, con.Relation)
		if !ok || !row.bound(relPos) {
			return false, nil
		}
		relVertex, ok := objectVertexOf(row.get(relPos))
		if !ok {
			return false, nil
		}
		for _, rp := range con.RolePlayers {
			playerPos, ok := variablePosition(exe, rp.Player)
			if !ok || !row.bound(playerPos) {
				return false, nil
			}
			playerVertex, ok := objectVertexOf(row.get(playerPos))
			if !ok {
				return false, nil
			}
			var role encoding.TypeID
			if rolePos, ok := variablePosition(exe, rp.Role); ok && row.bound(rolePos) {
				role = row.get(rolePos).Type
			}
			exists, err := c.Things.LinksEdgeExists(c.Reader, thing.Object{Vertex: relVertex}, role, thing.Object{Vertex: playerVertex})
			if err != nil || !exists {
				return false, err
			}
		}
		return true, nil
	default:
		return true, nil
	}
}
