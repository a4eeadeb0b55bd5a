package ir

// ConstraintKind tags the variant of a Constraint.
type ConstraintKind int

const (
	ConstraintIsa ConstraintKind = iota
	ConstraintHas
	ConstraintLinks
	ConstraintSub
	ConstraintOwns
	ConstraintPlays
	ConstraintRelates
	ConstraintLabel
	ConstraintRoleName
	ConstraintValue
	ConstraintKindOf
	ConstraintComparison
	ConstraintExpressionBinding
	ConstraintFunctionCallBinding
	ConstraintIid
	ConstraintIs
)

// RolePlayer is one (role, player) pair within a Links constraint, role
// left unset (-1) when unnamed and left for type inference to resolve.
type RolePlayer struct {
	Role   Variable
	Player Variable
}

// ComparisonOp mirrors ast.ComparisonOp at the IR level.
type ComparisonOp int

const (
	OpEQ ComparisonOp = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
)

// Operand is either a bound variable or an interned literal parameter.
type Operand struct {
	Variable  Variable
	Parameter ParameterID
	IsLiteral bool
}

// Constraint is one tagged pattern constraint within a Conjunction. Only
// the fields relevant to Kind are meaningful, mirroring ast.Clause's
// shape one level lower, after name resolution and category inference.
type Constraint struct {
	Kind ConstraintKind

	Variable    Variable
	Type        Variable
	Attribute   Variable
	Relation    Variable
	RolePlayers []RolePlayer
	Label       string
	KindName    string
	Ordered     bool
	Iid         string
	Other       Variable

	Left, Right Operand
	Op          ComparisonOp

	Expression   string
	FunctionName string
	Arguments    []Operand
	Assigns      []Variable

	// Indexed marks a Links constraint the planner rewrote into a
	// two-sided indexed-relation lookup (see pkg/planner's
	// transformIndexedRelations); it carries no meaning at translation
	// time.
	Indexed bool
}

// VariablesRead returns the set of variables this constraint requires to
// already be bound, used by the write-stage binding check.
func (c Constraint) VariablesRead() []Variable {
	switch c.Kind {
	case ConstraintHas:
		return []Variable{c.Variable, c.Attribute}
	case ConstraintLinks:
		out := []Variable{c.Relation}
		for _, rp := range c.RolePlayers {
			if rp.Role >= 0 {
				out = append(out, rp.Role)
			}
			out = append(out, rp.Player)
		}
		return out
	case ConstraintIs:
		return []Variable{c.Variable, c.Other}
	case ConstraintComparison:
		var out []Variable
		if !c.Left.IsLiteral {
			out = append(out, c.Left.Variable)
		}
		if !c.Right.IsLiteral {
			out = append(out, c.Right.Variable)
		}
		return out
	default:
		return []Variable{c.Variable}
	}
}

// VariablesWritten returns the set of variables this constraint binds
// when matched: every variable a has or links constraint names, the
// Assigns of a binding constraint, and Variable for any other kind.
func (c Constraint) VariablesWritten() []Variable {
	switch c.Kind {
	case ConstraintExpressionBinding, ConstraintFunctionCallBinding:
		return c.Assigns
	case ConstraintHas, ConstraintLinks:
		return c.VariablesRead()
	default:
		return []Variable{c.Variable}
	}
}
