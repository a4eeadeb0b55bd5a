package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
)

type fakeSource struct{ types []*typesystem.Type }

func (f fakeSource) AllTypes() ([]*typesystem.Type, error) { return f.types, nil }

// animalSchema builds: animal <- dog, cat; name (string, owned by animal);
// fears relation relates has-fear/is-feared,
// cat plays has-fear, dog plays is-feared.
func animalSchema(t *testing.T) *typesystem.Cache {
	t.Helper()

	name := &typesystem.Type{ID: 10, Kind: typesystem.KindAttribute, Label: typesystem.Label{Name: "name"}, ValueType: typesystem.ValueTypeString}
	animal := &typesystem.Type{ID: 1, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "animal"},
		Capabilities: []typesystem.Capability{{Kind: typesystem.CapabilityOwns, Source: 1, Target: name.ID}}}
	dog := &typesystem.Type{ID: 2, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "dog"}, Supertype: &animal.ID}
	cat := &typesystem.Type{ID: 3, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "cat"}, Supertype: &animal.ID}

	fears := &typesystem.Type{ID: 20, Kind: typesystem.KindRelation, Label: typesystem.Label{Name: "fears"}}
	hasFear := &typesystem.Type{ID: 21, Kind: typesystem.KindRole, Label: typesystem.Label{Scope: "fears", Name: "has-fear"}}
	isFeared := &typesystem.Type{ID: 22, Kind: typesystem.KindRole, Label: typesystem.Label{Scope: "fears", Name: "is-feared"}}
	fears.Capabilities = []typesystem.Capability{
		{Kind: typesystem.CapabilityRelates, Source: fears.ID, Target: hasFear.ID},
		{Kind: typesystem.CapabilityRelates, Source: fears.ID, Target: isFeared.ID},
	}
	cat.Capabilities = []typesystem.Capability{{Kind: typesystem.CapabilityPlays, Source: cat.ID, Target: hasFear.ID}}
	dog.Capabilities = []typesystem.Capability{{Kind: typesystem.CapabilityPlays, Source: dog.ID, Target: isFeared.ID}}

	c, err := typesystem.Build(fakeSource{types: []*typesystem.Type{name, animal, dog, cat, fears, hasFear, isFeared}})
	require.NoError(t, err)
	return c
}

func translate(t *testing.T, q ast.Query) *ir.Block {
	t.Helper()
	block, err := ir.Translate(q)
	require.NoError(t, err)
	return block
}

func TestInferIsaNarrowsToSubtypesOnly(t *testing.T) {
	cache := animalSchema(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind:    ast.PatternConjunction,
			Clauses: []ast.Clause{{Kind: ast.ClauseIsa, Variable: "x", Type: "dog"}},
		},
	})

	ta, err := Infer(block, cache)
	require.NoError(t, err)

	x, _ := block.Variables.Lookup("x")
	assert.Equal(t, TypeSet{encoding.TypeID(2): true}, ta.Candidates(x))
	assert.False(t, ta.Unsatisfiable)
}

func TestInferHasNarrowsByOwnsCapability(t *testing.T) {
	cache := animalSchema(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "x", Type: "animal"},
				{Kind: ast.ClauseHas, Variable: "x", Attribute: "n"},
				{Kind: ast.ClauseIsa, Variable: "n", Type: "name"},
			},
		},
	})

	ta, err := Infer(block, cache)
	require.NoError(t, err)

	x, _ := block.Variables.Lookup("x")
	// animal, dog and cat all transitively own name, via inherited owns.
	assert.Equal(t, TypeSet{1: true, 2: true, 3: true}, ta.Candidates(x))
	assert.False(t, ta.Unsatisfiable)
}

func TestInferHasUnsatisfiableWhenOwnerCannotOwnAttribute(t *testing.T) {
	cache := animalSchema(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				// fears is a relation, not an owner of name in this schema.
				{Kind: ast.ClauseIsa, Variable: "f", Type: "fears"},
				{Kind: ast.ClauseHas, Variable: "f", Attribute: "n"},
				{Kind: ast.ClauseIsa, Variable: "n", Type: "name"},
			},
		},
	})

	ta, err := Infer(block, cache)
	require.NoError(t, err)
	assert.True(t, ta.Unsatisfiable)
}

func TestInferLinksNarrowsByRelatesAndPlays(t *testing.T) {
	cache := animalSchema(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "r", Type: "fears"},
				{Kind: ast.ClauseLinks, Relation: "r", RolePlayers: []ast.RolePlayer{{Player: "p"}}},
			},
		},
	})

	ta, err := Infer(block, cache)
	require.NoError(t, err)

	p, _ := block.Variables.Lookup("p")
	// an unnamed role can be played by either a cat (has-fear) or a dog
	// (is-feared); both remain admissible with no further narrowing.
	assert.Equal(t, TypeSet{2: true, 3: true}, ta.Candidates(p))
}

func TestInferDisjunctionUnionsBranches(t *testing.T) {
	cache := animalSchema(t)
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

	ta, err := Infer(block, cache)
	require.NoError(t, err)

	x, _ := block.Variables.Lookup("x")
	assert.Equal(t, TypeSet{2: true, 3: true}, ta.Candidates(x))
}

func TestInferLabelNotResolvedErrors(t *testing.T) {
	cache := animalSchema(t)
	block := translate(t, ast.Query{
		Match: ast.Pattern{
			Kind:    ast.PatternConjunction,
			Clauses: []ast.Clause{{Kind: ast.ClauseLabel, Variable: "t", Label: "does-not-exist"}},
		},
	})

	_, err := Infer(block, cache)
	require.Error(t, err)
}
