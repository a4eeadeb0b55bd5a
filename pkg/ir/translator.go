package ir

import (
	"fmt"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// Translate lowers a surface-level ast.Query into a Block: variables and
// literals are interned, clauses become tagged Constraints, and every
// variable read by an update or delete stage is checked against the set
// bound by the preceding match. Insert stages are not checked, since they
// may introduce fresh variables.
func Translate(q ast.Query) (*Block, error) {
	t := &translator{
		vars:   NewVariableRegistry(),
		params: NewParameterRegistry(),
	}

	conjunction, modifiers, err := t.translateMatch(q)
	if err != nil {
		return nil, err
	}

	block := &Block{
		Variables:   t.vars,
		Parameters:  t.params,
		Conjunction: conjunction,
		Modifiers:   modifiers,
	}

	bound := block.InputVariables()
	for _, stage := range q.Stages {
		switch stage.Kind {
		case ast.StageInsert, ast.StageUpdate, ast.StageDelete:
			ws, err := t.translateWriteStage(stage, bound)
			if err != nil {
				return nil, err
			}
			block.WriteStages = append(block.WriteStages, ws)
			for _, c := range ws.Constraints {
				for _, v := range c.VariablesWritten() {
					bound[v] = true
				}
			}
		case ast.StageFetch:
			for key, varRef := range stage.FetchProjections {
				v, ok := t.vars.Lookup(string(varRef))
				if !ok {
					return nil, vterr.New(vterr.CodeMissingInputVariable, fmt.Sprintf("fetch references unbound variable $%s", varRef))
				}
				block.Fetch = append(block.Fetch, FetchProjection{Key: key, Variable: v})
			}
		}
	}

	return block, nil
}

type translator struct {
	vars   *VariableRegistry
	params *ParameterRegistry
}

func (t *translator) translateMatch(q ast.Query) (Conjunction, []Modifier, error) {
	conjunction, err := t.translatePattern(q.Match)
	if err != nil {
		return Conjunction{}, nil, err
	}

	var modifiers []Modifier
	for _, stage := range q.Stages {
		switch stage.Kind {
		case ast.StageFilter:
			var vars []Variable
			for _, ref := range stage.FilterVariables {
				v, ok := t.vars.Lookup(string(ref))
				if !ok {
					return Conjunction{}, nil, vterr.New(vterr.CodeMissingInputVariable, fmt.Sprintf("filter references unbound variable $%s", ref))
				}
				vars = append(vars, v)
			}
			modifiers = append(modifiers, Modifier{Kind: ModifierFilter, FilterVariables: vars})
		case ast.StageSort:
			var keys []SortKey
			for _, k := range stage.SortKeys {
				v, ok := t.vars.Lookup(string(k.Variable))
				if !ok {
					return Conjunction{}, nil, vterr.New(vterr.CodeMissingInputVariable, fmt.Sprintf("sort references unbound variable $%s", k.Variable))
				}
				keys = append(keys, SortKey{Variable: v, Descending: k.Descending})
			}
			modifiers = append(modifiers, Modifier{Kind: ModifierSort, SortKeys: keys})
		case ast.StageOffset:
			modifiers = append(modifiers, Modifier{Kind: ModifierOffset, Offset: stage.Offset})
		case ast.StageLimit:
			modifiers = append(modifiers, Modifier{Kind: ModifierLimit, Limit: stage.Limit})
		case ast.StageReduce:
			modifiers = append(modifiers, t.translateReduce(stage))
		}
	}
	return conjunction, modifiers, nil
}

func (t *translator) translateReduce(stage ast.Stage) Modifier {
	m := Modifier{Kind: ModifierReduce}
	for _, ref := range stage.GroupBy {
		if v, ok := t.vars.Lookup(string(ref)); ok {
			m.GroupBy = append(m.GroupBy, v)
		}
	}
	for _, r := range stage.Reductions {
		red := Reduction{Op: translateReduceOp(r.Op), As: t.vars.Declare(string(r.As), CategoryValue)}
		if r.Variable != "" {
			if v, ok := t.vars.Lookup(string(r.Variable)); ok {
				red.Variable = v
			}
		}
		m.Reductions = append(m.Reductions, red)
	}
	return m
}

func translateReduceOp(op ast.ReduceOp) ReduceOp {
	switch op {
	case ast.ReduceSum:
		return ReduceSum
	case ast.ReduceMax:
		return ReduceMax
	case ast.ReduceMin:
		return ReduceMin
	case ast.ReduceMean:
		return ReduceMean
	default:
		return ReduceCount
	}
}

func (t *translator) translatePattern(p ast.Pattern) (Conjunction, error) {
	switch p.Kind {
	case ast.PatternConjunction:
		return t.translateConjunction(p)
	default:
		return Conjunction{}, vterr.New(vterr.CodeUnsatisfiableConstraint, "top-level match must be a conjunction")
	}
}

func (t *translator) translateConjunction(p ast.Pattern) (Conjunction, error) {
	var c Conjunction
	for _, clause := range p.Clauses {
		constraint, err := t.translateClause(clause)
		if err != nil {
			return Conjunction{}, err
		}
		c.Constraints = append(c.Constraints, constraint)
	}
	for _, nested := range p.Nested {
		np, err := t.translateNested(nested)
		if err != nil {
			return Conjunction{}, err
		}
		c.Nested = append(c.Nested, np)
	}
	return c, nil
}

func (t *translator) translateNested(p ast.Pattern) (Pattern, error) {
	switch p.Kind {
	case ast.PatternDisjunction:
		var branches []Conjunction
		for _, branch := range p.Branches {
			bc, err := t.translateConjunction(branch)
			if err != nil {
				return Pattern{}, err
			}
			branches = append(branches, bc)
		}
		return Pattern{Kind: PatternDisjunction, Branches: branches}, nil
	case ast.PatternNegation, ast.PatternOptional:
		if p.Child == nil {
			return Pattern{}, vterr.New(vterr.CodeUnsatisfiableConstraint, "negation/optional pattern missing its child conjunction")
		}
		child, err := t.translateConjunction(*p.Child)
		if err != nil {
			return Pattern{}, err
		}
		kind := PatternNegation
		if p.Kind == ast.PatternOptional {
			kind = PatternOptional
			for _, c := range child.Constraints {
				for _, v := range c.VariablesWritten() {
					t.vars.SetOptional(v)
				}
			}
		}
		return Pattern{Kind: kind, Child: &child}, nil
	default:
		return Pattern{}, vterr.New(vterr.CodeUnsatisfiableConstraint, "expected a nested disjunction, negation, or optional pattern")
	}
}

func (t *translator) translateClause(clause ast.Clause) (Constraint, error) {
	switch clause.Kind {
	case ast.ClauseIsa:
		return Constraint{
			Kind:     ConstraintIsa,
			Variable: t.vars.Declare(string(clause.Variable), CategoryThing),
			Type:     t.declareRef(clause.Type, CategoryType),
		}, nil
	case ast.ClauseHas:
		return Constraint{
			Kind:      ConstraintHas,
			Variable:  t.declareRef(clause.Variable, CategoryThing),
			Attribute: t.declareRef(clause.Attribute, CategoryThing),
		}, nil
	case ast.ClauseLinks:
		c := Constraint{Kind: ConstraintLinks, Relation: t.declareRef(clause.Relation, CategoryThing)}
		for _, rp := range clause.RolePlayers {
			role := Variable(-1)
			if rp.Role != "" {
				role = t.declareRef(rp.Role, CategoryType)
			}
			c.RolePlayers = append(c.RolePlayers, RolePlayer{Role: role, Player: t.declareRef(rp.Player, CategoryThing)})
		}
		return c, nil
	case ast.ClauseSub:
		return Constraint{Kind: ConstraintSub, Variable: t.declareRef(clause.Variable, CategoryType), Type: t.declareRef(clause.Type, CategoryType)}, nil
	case ast.ClauseOwns:
		return Constraint{Kind: ConstraintOwns, Variable: t.declareRef(clause.Variable, CategoryType), Type: t.declareRef(clause.Type, CategoryType), Ordered: clause.Ordered}, nil
	case ast.ClausePlays:
		return Constraint{Kind: ConstraintPlays, Variable: t.declareRef(clause.Variable, CategoryType), Type: t.declareRef(clause.Type, CategoryType)}, nil
	case ast.ClauseRelates:
		return Constraint{Kind: ConstraintRelates, Variable: t.declareRef(clause.Variable, CategoryType), Type: t.declareRef(clause.Type, CategoryType), Ordered: clause.Ordered}, nil
	case ast.ClauseLabel:
		return Constraint{Kind: ConstraintLabel, Variable: t.declareRef(clause.Variable, CategoryType), Label: clause.Label}, nil
	case ast.ClauseRoleName:
		return Constraint{Kind: ConstraintRoleName, Variable: t.declareRef(clause.Variable, CategoryType), Label: clause.Label}, nil
	case ast.ClauseValue:
		return Constraint{Kind: ConstraintValue, Variable: t.declareRef(clause.Variable, CategoryType), KindName: clause.ValueType}, nil
	case ast.ClauseKindOf:
		return Constraint{Kind: ConstraintKindOf, Variable: t.declareRef(clause.Variable, CategoryType), KindName: clause.ValueType}, nil
	case ast.ClauseIid:
		return Constraint{Kind: ConstraintIid, Variable: t.declareRef(clause.Variable, CategoryThing), Iid: clause.Iid}, nil
	case ast.ClauseIs:
		return Constraint{Kind: ConstraintIs, Variable: t.declareRef(clause.Variable, CategoryThing), Other: t.declareRef(clause.Other, CategoryThing)}, nil
	case ast.ClauseComparison:
		left, err := t.translateTerm(clause.Left)
		if err != nil {
			return Constraint{}, err
		}
		right, err := t.translateTerm(clause.Right)
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{Kind: ConstraintComparison, Left: left, Right: right, Op: translateOp(clause.Op)}, nil
	case ast.ClauseExpressionBinding:
		var assigns []Variable
		for _, a := range clause.Assigns {
			assigns = append(assigns, t.vars.Declare(string(a), CategoryValue))
		}
		return Constraint{Kind: ConstraintExpressionBinding, Expression: clause.Expression, Assigns: assigns}, nil
	case ast.ClauseFunctionCallBind:
		var assigns []Variable
		for _, a := range clause.Assigns {
			assigns = append(assigns, t.vars.Declare(string(a), CategoryValue))
		}
		var args []Operand
		for _, a := range clause.Arguments {
			op, err := t.translateTerm(a)
			if err != nil {
				return Constraint{}, err
			}
			args = append(args, op)
		}
		return Constraint{Kind: ConstraintFunctionCallBinding, FunctionName: clause.FunctionName, Arguments: args, Assigns: assigns}, nil
	default:
		return Constraint{}, vterr.New(vterr.CodeUnsatisfiableConstraint, fmt.Sprintf("unknown clause kind %q", clause.Kind))
	}
}

func (t *translator) declareRef(ref ast.VariableRef, category Category) Variable {
	return t.vars.Declare(string(ref), category)
}

func (t *translator) translateTerm(term ast.Term) (Operand, error) {
	if term.Literal != nil {
		value, err := literalToValue(*term.Literal)
		if err != nil {
			return Operand{}, err
		}
		return Operand{Parameter: t.params.Intern(value), IsLiteral: true}, nil
	}
	return Operand{Variable: t.declareRef(term.Variable, CategoryValue)}, nil
}

func literalToValue(lit ast.Literal) (thing.Value, error) {
	switch lit.Kind {
	case ast.LiteralLong:
		return thing.Value{Kind: thing.ValueLong, Long: lit.Long}, nil
	case ast.LiteralDouble:
		return thing.Value{Kind: thing.ValueDouble, Double: lit.Double}, nil
	case ast.LiteralString:
		return thing.Value{Kind: thing.ValueString, String: lit.String}, nil
	case ast.LiteralBoolean:
		return thing.Value{Kind: thing.ValueBoolean, Boolean: lit.Boolean}, nil
	default:
		return thing.Value{}, vterr.New(vterr.CodeLiteralParse, "unknown literal kind")
	}
}

func translateOp(op ast.ComparisonOp) ComparisonOp {
	switch op {
	case ast.CompareNE:
		return OpNE
	case ast.CompareLT:
		return OpLT
	case ast.CompareLE:
		return OpLE
	case ast.CompareGT:
		return OpGT
	case ast.CompareGE:
		return OpGE
	default:
		return OpEQ
	}
}

// translateWriteStage lowers one insert/update/delete stage, validating
// for update and delete stages that every variable they read was bound by
// a preceding match (or an earlier write stage), and that role variables
// named in a delete stage
// are not deleted independently of their relation.
func (t *translator) translateWriteStage(stage ast.Stage, bound map[Variable]bool) (WriteStage, error) {
	kind := WriteInsert
	switch stage.Kind {
	case ast.StageUpdate:
		kind = WriteUpdate
	case ast.StageDelete:
		kind = WriteDelete
	}

	ws := WriteStage{Kind: kind}
	for _, clause := range stage.WriteClauses {
		constraint, err := t.translateClause(clause)
		if err != nil {
			return WriteStage{}, err
		}

		if kind != WriteInsert {
			for _, v := range constraint.VariablesRead() {
				if v >= 0 && !bound[v] {
					return WriteStage{}, vterr.New(vterr.CodeMissingInputVariable,
						fmt.Sprintf("%s stage references unbound variable $%s", stage.Kind, t.vars.Name(v)))
				}
			}
		}
		ws.Constraints = append(ws.Constraints, constraint)
	}

	if kind == WriteDelete {
		for _, ref := range stage.DeleteRoles {
			v, ok := t.vars.Lookup(string(ref))
			if !ok {
				continue
			}
			ws.DeleteRoles = append(ws.DeleteRoles, v)
		}
		if len(ws.DeleteRoles) > 0 {
			return WriteStage{}, vterr.New(vterr.CodeIllegalRoleDelete, "role players cannot be deleted independently of their relation")
		}
	}

	return ws, nil
}
