package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/ast"
)

func TestTranslateSimpleMatch(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				{Kind: ast.ClauseHas, Variable: "p", Attribute: "n"},
			},
		},
	}

	block, err := Translate(q)
	require.NoError(t, err)
	require.Len(t, block.Conjunction.Constraints, 2)
	assert.Equal(t, ConstraintIsa, block.Conjunction.Constraints[0].Kind)
	assert.Equal(t, ConstraintHas, block.Conjunction.Constraints[1].Kind)

	pVar, ok := block.Variables.Lookup("p")
	require.True(t, ok)
	assert.Equal(t, CategoryThing, block.Variables.Category(pVar))
}

func TestTranslateInsertAllowsFreshVariable(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{
			{
				Kind: ast.StageInsert,
				WriteClauses: []ast.Clause{
					{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				},
			},
		},
	}

	_, err := Translate(q)
	require.NoError(t, err) // insert stages may introduce fresh variables
}

func TestTranslateDeleteRejectsUnboundVariable(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{
			{
				Kind: ast.StageDelete,
				WriteClauses: []ast.Clause{
					{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				},
			},
		},
	}

	_, err := Translate(q)
	require.Error(t, err)
}

func TestTranslateDeleteRejectsIndependentRoleDeletion(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "r", Type: "employment"},
			},
		},
		Stages: []ast.Stage{
			{
				Kind:        ast.StageDelete,
				DeleteRoles: []ast.VariableRef{"r"},
			},
		},
	}

	_, err := Translate(q)
	require.Error(t, err)
}

func TestTranslateNestedNegation(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
			},
			Nested: []ast.Pattern{
				{
					Kind: ast.PatternNegation,
					Child: &ast.Pattern{
						Kind: ast.PatternConjunction,
						Clauses: []ast.Clause{
							{Kind: ast.ClauseHas, Variable: "p", Attribute: "banned"},
						},
					},
				},
			},
		},
	}

	block, err := Translate(q)
	require.NoError(t, err)
	require.Len(t, block.Conjunction.Nested, 1)
	assert.Equal(t, PatternNegation, block.Conjunction.Nested[0].Kind)
}

func TestTranslateFetchRequiresBoundVariable(t *testing.T) {
	q := ast.Query{
		Match: ast.Pattern{
			Kind:    ast.PatternConjunction,
			Clauses: []ast.Clause{{Kind: ast.ClauseIsa, Variable: "p", Type: "person"}},
		},
		Stages: []ast.Stage{
			{Kind: ast.StageFetch, FetchProjections: map[string]ast.VariableRef{"person": "p"}},
		},
	}

	block, err := Translate(q)
	require.NoError(t, err)
	require.Len(t, block.Fetch, 1)
	assert.Equal(t, "person", block.Fetch[0].Key)
}
