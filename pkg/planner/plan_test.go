package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/ir"
)

func translate(t *testing.T, q ast.Query) *ir.Block {
	t.Helper()
	block, err := ir.Translate(q)
	require.NoError(t, err)
	return block
}

func TestPlanSimpleIsaProducesIntersectionStep(t *testing.T) {
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind:    ast.PatternConjunction,
			Clauses: []ast.Clause{{Kind: ast.ClauseIsa, Variable: "x", Type: "person"}},
		},
	})

	x, _ := block.Variables.Lookup("x")
	personType, _ := block.Variables.Lookup("person")

	ta := &inference.TypeAnnotations{Variables: map[ir.Variable]inference.TypeSet{
		x:          {1: true},
		personType: {1: true},
	}}
	stats := NewStatistics()
	stats.RecordInstance(1)

	exe := Plan(&block.Conjunction, nil, ta, stats)
	require.Len(t, exe.Steps, 1)
	assert.Equal(t, StepIntersection, exe.Steps[0].Kind)
	assert.Contains(t, exe.VariablePositions, x)
}

func TestPlanPrefersBoundFromWhenInputAlreadyBound(t *testing.T) {
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "x", Type: "person"},
				{Kind: ast.ClauseHas, Variable: "x", Attribute: "n"},
			},
		},
	})

	x, _ := block.Variables.Lookup("x")
	n, _ := block.Variables.Lookup("n")
	personType, _ := block.Variables.Lookup("person")

	ta := &inference.TypeAnnotations{Variables: map[ir.Variable]inference.TypeSet{
		x:          {1: true},
		n:          {10: true},
		personType: {1: true},
	}}
	stats := NewStatistics()

	exe := Plan(&block.Conjunction, map[ir.Variable]VariablePosition{x: 0}, ta, stats)
	require.NotEmpty(t, exe.Steps)

	var sawBoundFrom bool
	for _, step := range exe.Steps {
		for _, inst := range step.Instructions {
			if inst.Constraint.Kind == ir.ConstraintHas && inst.Mode == BoundFrom {
				sawBoundFrom = true
			}
		}
	}
	assert.True(t, sawBoundFrom)
}

func TestPlanDisjunctionProducesBranches(t *testing.T) {
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Nested: []ast.Pattern{
				{
					Kind: ast.PatternDisjunction,
					Branches: []ast.Pattern{
						{Kind: ast.PatternConjunction, Clauses: []ast.Clause{{Kind: ast.ClauseIsa, Variable: "x", Type: "cat"}}},
						{Kind: ast.PatternConjunction, Clauses: []ast.Clause{{Kind: ast.ClauseIsa, Variable: "x", Type: "dog"}}},
					},
				},
			},
		},
	})

	x, _ := block.Variables.Lookup("x")
	catType, _ := block.Variables.Lookup("cat")
	dogType, _ := block.Variables.Lookup("dog")

	ta := &inference.TypeAnnotations{Variables: map[ir.Variable]inference.TypeSet{
		x:       {2: true, 3: true},
		catType: {3: true},
		dogType: {2: true},
	}}
	stats := NewStatistics()

	exe := Plan(&block.Conjunction, nil, ta, stats)
	require.Len(t, exe.Steps, 1)
	require.Equal(t, StepDisjunction, exe.Steps[0].Kind)
	assert.Len(t, exe.Steps[0].Branches, 2)
}

func TestTransformIndexedRelationsMarksTwoRoleLinks(t *testing.T) {
	constraints := []ir.Constraint{
		{Kind: ir.ConstraintLinks, RolePlayers: []ir.RolePlayer{{Player: 0}, {Player: 1}}},
		{Kind: ir.ConstraintLinks, RolePlayers: []ir.RolePlayer{{Player: 0}}},
	}
	out := transformIndexedRelations(constraints)
	assert.True(t, out[0].Indexed)
	assert.False(t, out[1].Indexed)
}
