package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/ast"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return mgr
}

func TestManagerCreateOpenDelete(t *testing.T) {
	mgr := newTestManager(t)

	db, err := mgr.Create("school")
	require.NoError(t, err)
	assert.Equal(t, "school", db.Name)

	_, err = mgr.Create("school")
	require.Error(t, err)
	assert.True(t, vterr.Is(err, vterr.CodeDatabaseExists))

	reopened, err := mgr.Open("school")
	require.NoError(t, err)
	assert.Same(t, db, reopened)

	require.NoError(t, mgr.Delete("school"))
	_, err = mgr.Open("school")
	require.Error(t, err)
	assert.True(t, vterr.Is(err, vterr.CodeDatabaseNotFound))
}

func TestManagerRejectsReservedName(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Create("_vertexdb_internal")
	require.Error(t, err)
	assert.True(t, vterr.Is(err, vterr.CodeReservedDatabase))
}

func TestSchemaCommitPublishesType(t *testing.T) {
	mgr := newTestManager(t)
	db, err := mgr.Create("school")
	require.NoError(t, err)

	tx := db.Begin(Schema)
	person, err := tx.Types.CreateType(tx.write, typesystem.KindEntity, typesystem.Label{Name: "person"}, typesystem.ValueTypeNone)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	read := db.Begin(Read)
	defer read.Close()
	got, ok := read.Types.LookupByLabel(typesystem.Label{Name: "person"})
	require.True(t, ok)
	assert.Equal(t, person.ID, got.ID)
}

func defineSchool(t *testing.T, db *Database) {
	t.Helper()
	tx := db.Begin(Schema)
	person, err := tx.Types.CreateType(tx.write, typesystem.KindEntity, typesystem.Label{Name: "person"}, typesystem.ValueTypeNone)
	require.NoError(t, err)
	name, err := tx.Types.CreateType(tx.write, typesystem.KindAttribute, typesystem.Label{Name: "name"}, typesystem.ValueTypeString)
	require.NoError(t, err)
	require.NoError(t, tx.Types.SetCapability(tx.write, person.ID, typesystem.Capability{
		Kind: typesystem.CapabilityOwns, Source: person.ID, Target: name.ID,
	}))
	require.NoError(t, tx.Commit())
}

func TestInsertThenMatchRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	db, err := mgr.Create("school")
	require.NoError(t, err)
	defineSchool(t, db)

	write := db.Begin(Write)
	insertQuery := ast.Query{
		Match: ast.Pattern{Kind: ast.PatternConjunction},
		Stages: []ast.Stage{
			{
				Kind: ast.StageInsert,
				WriteClauses: []ast.Clause{
					{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
					{Kind: ast.ClauseIsa, Variable: "a", Type: "name"},
					{
						Kind: ast.ClauseComparison,
						Left: ast.Term{Variable: "a"},
						Right: ast.Term{Literal: &ast.Literal{
							Kind: ast.LiteralString, String: "bob",
						}},
						Op: ast.CompareEQ,
					},
					{Kind: ast.ClauseHas, Variable: "p", Attribute: "a"},
				},
			},
		},
	}

	result, err := write.Query.Run(nil, insertQuery)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.NoError(t, write.Commit())

	read := db.Begin(Read)
	defer read.Close()
	matchQuery := ast.Query{
		Match: ast.Pattern{
			Kind: ast.PatternConjunction,
			Clauses: []ast.Clause{
				{Kind: ast.ClauseIsa, Variable: "p", Type: "person"},
				{Kind: ast.ClauseHas, Variable: "p", Attribute: "n"},
			},
		},
	}
	matched, err := read.Query.Run(nil, matchQuery)
	require.NoError(t, err)
	require.Len(t, matched.Rows, 1)
	assert.Equal(t, "bob", matched.Rows[0]["n"])
}
