// Package ast defines the smallest concrete input tree the IR translator
// needs. Query text and its grammar are out of scope; callers build an
// ast.Query directly (or a future parser would), and the translator
// lowers it into pkg/ir's typed constraint representation.
package ast

// VariableRef names a query variable by its surface-syntax name (without
// the leading `$`).
type VariableRef string

// Term is either a bound variable reference or a literal value.
type Term struct {
	Variable VariableRef
	Literal  *Literal
}

// LiteralKind tags the Go-level shape of a Literal.
type LiteralKind int

const (
	LiteralLong LiteralKind = iota
	LiteralDouble
	LiteralString
	LiteralBoolean
)

// Literal is a parsed constant value appearing in query text.
type Literal struct {
	Kind    LiteralKind
	Long    int64
	Double  float64
	String  string
	Boolean bool
}

// ClauseKind tags the variant of a Clause, mirroring the IR's tagged
// Constraint set one-for-one; the translator's job is exactly this
// mapping, elaborated with category inference and error checking.
type ClauseKind string

const (
	ClauseIsa                ClauseKind = "isa"
	ClauseHas                ClauseKind = "has"
	ClauseLinks              ClauseKind = "links"
	ClauseSub                ClauseKind = "sub"
	ClauseOwns               ClauseKind = "owns"
	ClausePlays              ClauseKind = "plays"
	ClauseRelates            ClauseKind = "relates"
	ClauseLabel              ClauseKind = "label"
	ClauseRoleName           ClauseKind = "role_name"
	ClauseValue              ClauseKind = "value"
	ClauseKindOf             ClauseKind = "kind"
	ClauseComparison         ClauseKind = "comparison"
	ClauseExpressionBinding  ClauseKind = "expression_binding"
	ClauseFunctionCallBind   ClauseKind = "function_call_binding"
	ClauseIid                ClauseKind = "iid"
	ClauseIs                 ClauseKind = "is"
)

// RolePlayer is one (role, player) pair within a links clause.
type RolePlayer struct {
	Role   VariableRef // empty if the role is unnamed and inferred from context
	Player VariableRef
}

// ComparisonOp enumerates the comparison operators surface syntax can
// express.
type ComparisonOp string

const (
	CompareEQ ComparisonOp = "=="
	CompareNE ComparisonOp = "!="
	CompareLT ComparisonOp = "<"
	CompareLE ComparisonOp = "<="
	CompareGT ComparisonOp = ">"
	CompareGE ComparisonOp = ">="
)

// Clause is one tagged pattern constraint. Only the fields relevant to
// Kind are populated; this mirrors the IR's own tagged-variant Constraint
// shape rather than introducing a separate closed sum type in ast, since
// the translator's whole job is a near-direct field-by-field mapping
// from Clause to ir.Constraint.
type Clause struct {
	Kind ClauseKind

	Variable    VariableRef   // Isa/Has/Sub/Owns/Plays/Relates/Label/Value/Kind/Iid/Is subject
	Type        VariableRef   // Isa type, Sub supertype, Owns attribute type, Plays role type
	Attribute   VariableRef   // Has attribute variable
	Relation    VariableRef   // Links relation variable
	RolePlayers []RolePlayer  // Links role/player pairs
	Label       string        // Label/RoleName literal
	ValueType   string        // Value clause's declared value type name
	Ordered     bool          // Owns/Relates ordering flag
	Iid         string        // Iid literal (hex string)
	Other       VariableRef   // Is clause's right-hand variable

	Left, Right Term         // Comparison operands
	Op          ComparisonOp // Comparison operator

	Expression   string      // ExpressionBinding's surface expression text
	FunctionName string      // FunctionCallBinding's function name
	Arguments    []Term      // FunctionCallBinding's argument list
	Assigns      []VariableRef // ExpressionBinding/FunctionCallBinding output variables
}

// Pattern is either a flat conjunction of clauses or a nested
// disjunction/negation/optional wrapping child conjunctions.
type PatternKind int

const (
	PatternConjunction PatternKind = iota
	PatternDisjunction
	PatternNegation
	PatternOptional
)

// Pattern is one node of the query's pattern tree.
type Pattern struct {
	Kind     PatternKind
	Clauses  []Clause  // PatternConjunction: the conjunction's own constraints
	Nested   []Pattern // PatternConjunction: disjunction/negation/optional patterns scoped to it
	Branches []Pattern // PatternDisjunction: each branch is itself a conjunction pattern
	Child    *Pattern  // PatternNegation / PatternOptional: the wrapped conjunction pattern
}

// StageKind tags a pipeline stage modifier applied after the top-level
// match pattern.
type StageKind string

const (
	StageFilter StageKind = "filter"
	StageSort   StageKind = "sort"
	StageOffset StageKind = "offset"
	StageLimit  StageKind = "limit"
	StageReduce StageKind = "reduce"
	StageInsert StageKind = "insert"
	StageUpdate StageKind = "update"
	StageDelete StageKind = "delete"
	StageFetch  StageKind = "fetch"
)

// SortKey is one variable/direction pair within a sort stage.
type SortKey struct {
	Variable   VariableRef
	Descending bool
}

// ReduceOp enumerates the supported aggregation functions.
type ReduceOp string

const (
	ReduceCount ReduceOp = "count"
	ReduceSum   ReduceOp = "sum"
	ReduceMax   ReduceOp = "max"
	ReduceMin   ReduceOp = "min"
	ReduceMean  ReduceOp = "mean"
)

// Reduction is one output column of a reduce stage.
type Reduction struct {
	Op       ReduceOp
	Variable VariableRef // empty for count-of-rows
	As       VariableRef
}

// Stage is one pipeline stage following the top-level match pattern.
type Stage struct {
	Kind StageKind

	FilterVariables []VariableRef // StageFilter
	SortKeys        []SortKey     // StageSort
	Offset          int           // StageOffset
	Limit           int           // StageLimit
	Reductions      []Reduction   // StageReduce
	GroupBy         []VariableRef // StageReduce

	WriteClauses []Clause // StageInsert/StageUpdate/StageDelete
	DeleteRoles  []VariableRef

	FetchProjections map[string]VariableRef // StageFetch: output key -> source variable
}

// Query is the complete surface-level input to the translator: one
// top-level match pattern plus a sequence of pipeline stages.
type Query struct {
	Match  Pattern
	Stages []Stage
}
