package executor

import (
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/planner"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// Bindings is the per-row variable environment a write stage executes
// against: unlike match execution's positional Row, write stages have no
// compiled position table (CompileWrite is a straight-line instruction
// list, not a search plan), so variables are addressed directly.
type Bindings map[ir.Variable]VariableValue

// BindingsFromRow projects a completed match Row into a Bindings
// environment for the write stages that follow it.
func BindingsFromRow(exe *planner.MatchExecutable, row Row) Bindings {
	b := make(Bindings, len(exe.VariablePositions))
	for v, pos := range exe.VariablePositions {
		if cell := row.get(pos); cell.Kind != CellUnbound {
			b[v] = cell
		}
	}
	return b
}

// RunWrite executes one insert/update/delete stage against bindings,
// returning the environment extended (insert), narrowed (delete), or
// otherwise updated, ready to feed the next write stage or the
// projected output row.
func (c *Context) RunWrite(ws *snapshot.WriteSnapshot, vars *ir.VariableRegistry, exe *planner.WriteExecutable, bindings Bindings) (Bindings, error) {
	out := make(Bindings, len(bindings))
	for v, val := range bindings {
		out[v] = val
	}
	switch exe.Kind {
	case ir.WriteInsert:
		return out, c.runInsert(ws, vars, exe, out)
	case ir.WriteDelete:
		return out, c.runDelete(ws, exe, out)
	case ir.WriteUpdate:
		return out, c.runUpdate(ws, vars, exe, out)
	default:
		return out, nil
	}
}

func (c *Context) resolveLiteralType(vars *ir.VariableRegistry, v ir.Variable) (encoding.TypeID, bool) {
	t, ok := c.Types.GetByLabel(typesystem.Label{Name: vars.Name(v)})
	if !ok {
		return 0, false
	}
	return t.ID, true
}

// literalValueFor finds a literal the write stage compares an
// attribute-typed variable against, used as that attribute's value when
// the stage creates it; `$a isa age; $a == 25;` is this IR's idiom for
// a valued attribute insert.
func (c *Context) literalValueFor(exe *planner.WriteExecutable, v ir.Variable) (thing.Value, bool) {
	for _, con := range exe.Instructions {
		if con.Kind != ir.ConstraintComparison || con.Op != ir.OpEQ {
			continue
		}
		if !con.Left.IsLiteral && con.Left.Variable == v && con.Right.IsLiteral {
			return c.Parameters.Value(con.Right.Parameter), true
		}
		if !con.Right.IsLiteral && con.Right.Variable == v && con.Left.IsLiteral {
			return c.Parameters.Value(con.Left.Parameter), true
		}
	}
	return thing.Value{}, false
}

func (c *Context) runInsert(ws *snapshot.WriteSnapshot, vars *ir.VariableRegistry, exe *planner.WriteExecutable, bindings Bindings) error {
	for _, con := range exe.Instructions {
		switch con.Kind {
		case ir.ConstraintIsa:
			if _, ok := bindings[con.Variable]; ok {
				continue
			}
			tid, ok := c.isaTargetType(vars, bindings, con)
			if !ok {
				return vterr.New(vterr.CodeMissingInputVariable, "insert: cannot resolve isa target type for $"+vars.Name(con.Variable))
			}
			t, ok := c.Types.Get(tid)
			if !ok {
				return vterr.New(vterr.CodeConceptRead, "insert: unknown type")
			}
			switch t.Kind {
			case typesystem.KindEntity:
				obj, err := c.Things.CreateEntity(ws, tid)
				if err != nil {
					return err
				}
				bindings[con.Variable] = objectCell(obj)
			case typesystem.KindRelation:
				obj, err := c.Things.CreateRelation(ws, tid)
				if err != nil {
					return err
				}
				bindings[con.Variable] = objectCell(obj)
			case typesystem.KindAttribute:
				value, ok := c.literalValueFor(exe, con.Variable)
				if !ok {
					return vterr.New(vterr.CodeMissingRequiredAttribute, "insert: attribute $"+vars.Name(con.Variable)+" has no value")
				}
				attr, err := c.Things.PutAttribute(ws, tid, value)
				if err != nil {
					return err
				}
				bindings[con.Variable] = attributeCell(attr)
			}
		case ir.ConstraintHas:
			owner, attr, ok := c.resolveHasPair(bindings, con)
			if !ok {
				return vterr.New(vterr.CodeMissingInputVariable, "insert: has clause references an unbound variable")
			}
			c.Things.SetHas(ws, owner, attr)
		case ir.ConstraintLinks:
			if err := c.insertLinks(ws, bindings, con); err != nil {
				return err
			}
		case ir.ConstraintComparison, ir.ConstraintExpressionBinding, ir.ConstraintFunctionCallBinding:
			// Value-binding support only; no storage effect of its own.
		}
	}
	return nil
}

func (c *Context) isaTargetType(vars *ir.VariableRegistry, bindings Bindings, con ir.Constraint) (encoding.TypeID, bool) {
	if cell, ok := bindings[con.Type]; ok && cell.Kind == CellType {
		return cell.Type, true
	}
	return c.resolveLiteralType(vars, con.Type)
}

func (c *Context) resolveHasPair(bindings Bindings, con ir.Constraint) (thing.Object, thing.Attribute, bool) {
	ownerCell, ok := bindings[con.Variable]
	if !ok || ownerCell.Kind != CellObject {
		return thing.Object{}, thing.Attribute{}, false
	}
	attrCell, ok := bindings[con.Attribute]
	if !ok || attrCell.Kind != CellAttribute {
		return thing.Object{}, thing.Attribute{}, false
	}
	return ownerCell.Object, attrCell.Attribute, true
}

func (c *Context) insertLinks(ws *snapshot.WriteSnapshot, bindings Bindings, con ir.Constraint) error {
	relCell, ok := bindings[con.Relation]
	if !ok || relCell.Kind != CellObject {
		return vterr.New(vterr.CodeMissingInputVariable, "insert: links clause references an unbound relation")
	}
	for _, rp := range con.RolePlayers {
		playerCell, ok := bindings[rp.Player]
		if !ok || playerCell.Kind != CellObject {
			return vterr.New(vterr.CodeMissingInputVariable, "insert: links clause references an unbound player")
		}
		var role encoding.TypeID
		if rp.Role >= 0 {
			roleCell, ok := bindings[rp.Role]
			if !ok || roleCell.Kind != CellType {
				return vterr.New(vterr.CodeRoleNotResolved, "insert: links clause references an unresolved role")
			}
			role = roleCell.Type
		}
		c.Things.SetLinks(ws, relCell.Object, role, playerCell.Object)
	}
	return nil
}

func (c *Context) runDelete(ws *snapshot.WriteSnapshot, exe *planner.WriteExecutable, bindings Bindings) error {
	for _, con := range exe.Instructions {
		switch con.Kind {
		case ir.ConstraintIsa:
			cell, ok := bindings[con.Variable]
			if !ok {
				continue
			}
			if err := c.deleteCell(ws, cell); err != nil {
				return err
			}
			delete(bindings, con.Variable)
		case ir.ConstraintHas:
			owner, attr, ok := c.resolveHasPair(bindings, con)
			if !ok {
				continue
			}
			c.Things.UnsetHas(ws, owner, attr)
		case ir.ConstraintLinks:
			relCell, ok := bindings[con.Relation]
			if !ok || relCell.Kind != CellObject {
				continue
			}
			for _, rp := range con.RolePlayers {
				playerCell, ok := bindings[rp.Player]
				if !ok || playerCell.Kind != CellObject {
					continue
				}
				var role encoding.TypeID
				if rp.Role >= 0 {
					if roleCell, ok := bindings[rp.Role]; ok && roleCell.Kind == CellType {
						role = roleCell.Type
					}
				}
				c.Things.UnsetLinks(ws, relCell.Object, role, playerCell.Object)
			}
		}
	}
	return nil
}

func (c *Context) deleteCell(ws *snapshot.WriteSnapshot, cell VariableValue) error {
	switch cell.Kind {
	case CellObject:
		return c.Things.Delete(ws, cell.Object)
	case CellAttribute:
		return c.Things.Delete(ws, thing.Object{Vertex: cell.Attribute.Vertex()})
	default:
		return nil
	}
}

// runUpdate runs an update stage exactly as an insert: the stage is
// translated the same as an insert (Isa/Has/Links constraints) and runs
// against an owner already bound by the preceding match. Existing values
// the owner has of the same attribute type are not unset, so the new
// value is added alongside them.
func (c *Context) runUpdate(ws *snapshot.WriteSnapshot, vars *ir.VariableRegistry, exe *planner.WriteExecutable, bindings Bindings) error {
	return c.runInsert(ws, vars, exe, bindings)
}
