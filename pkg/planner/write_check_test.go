package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/ir"
)

type fakeSource struct{ types []*typesystem.Type }

func (f fakeSource) AllTypes() ([]*typesystem.Type, error) { return f.types, nil }

func schemaWithOwnership(t *testing.T) *typesystem.Cache {
	t.Helper()
	name := &typesystem.Type{ID: 10, Kind: typesystem.KindAttribute, Label: typesystem.Label{Name: "name"}, ValueType: typesystem.ValueTypeString}
	person := &typesystem.Type{ID: 1, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "person"},
		Capabilities: []typesystem.Capability{{Kind: typesystem.CapabilityOwns, Source: 1, Target: name.ID}}}
	company := &typesystem.Type{ID: 2, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "company"}}

	c, err := typesystem.Build(fakeSource{types: []*typesystem.Type{name, person, company}})
	require.NoError(t, err)
	return c
}

func TestValidateWriteStageAcceptsAdmissibleHas(t *testing.T) {
	cache := schemaWithOwnership(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{{
			Kind: ast.StageInsert,
			WriteClauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				{Kind: ast.ClauseHas, Variable: "p", Attribute: "n"},
			},
		}},
	})

	p, _ := block.Variables.Lookup("p")
	n, _ := block.Variables.Lookup("n")
	ta := &inference.TypeAnnotations{Variables: map[ir.Variable]inference.TypeSet{
		p: {1: true},
		n: {10: true},
	}}

	require.Len(t, block.WriteStages, 1)
	err := ValidateWriteStage(block.WriteStages[0], block.Variables, ta, cache)
	assert.NoError(t, err)
}

func TestValidateWriteStageRejectsInadmissibleHas(t *testing.T) {
	cache := schemaWithOwnership(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{{
			Kind: ast.StageInsert,
			WriteClauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "c", Type: "company"},
				{Kind: ast.ClauseHas, Variable: "c", Attribute: "n"},
			},
		}},
	})

	c, _ := block.Variables.Lookup("c")
	n, _ := block.Variables.Lookup("n")
	ta := &inference.TypeAnnotations{Variables: map[ir.Variable]inference.TypeSet{
		c: {2: true},
		n: {10: true},
	}}

	err := ValidateWriteStage(block.WriteStages[0], block.Variables, ta, cache)
	require.Error(t, err)
}

func TestCompileWritePreservesInstructionOrder(t *testing.T) {
	block := translate(t, ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{{
			Kind: ast.StageInsert,
			WriteClauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				{Kind: ast.ClauseHas, Variable: "p", Attribute: "n"},
			},
		}},
	})

	exe := CompileWrite(block.WriteStages[0])
	require.Len(t, exe.Instructions, 2)
	assert.Equal(t, ir.ConstraintIsa, exe.Instructions[0].Kind)
	assert.Equal(t, ir.ConstraintHas, exe.Instructions[1].Kind)
}
