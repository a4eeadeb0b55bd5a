package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/concept/thing"
	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/planner"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
)

const (
	personType = encoding.TypeID(1)
	nameType   = encoding.TypeID(2)
	ageType    = encoding.TypeID(3)
)

type fakeSource struct{ types []*typesystem.Type }

func (f fakeSource) AllTypes() ([]*typesystem.Type, error) { return f.types, nil }

func testSchema(t *testing.T) *typesystem.Cache {
	t.Helper()
	src := fakeSource{types: []*typesystem.Type{
		{ID: personType, Kind: typesystem.KindEntity, Label: typesystem.Label{Name: "person"},
			Capabilities: []typesystem.Capability{
				{Kind: typesystem.CapabilityOwns, Source: personType, Target: nameType},
				{Kind: typesystem.CapabilityOwns, Source: personType, Target: ageType},
			}},
		{ID: nameType, Kind: typesystem.KindAttribute, Label: typesystem.Label{Name: "name"}, ValueType: typesystem.ValueTypeString},
		{ID: ageType, Kind: typesystem.KindAttribute, Label: typesystem.Label{Name: "age"}, ValueType: typesystem.ValueTypeLong},
	}}
	cache, err := typesystem.Build(src)
	require.NoError(t, err)
	return cache
}

type fixture struct {
	manager *thing.Manager
	iso     *isolation.Manager
	store   *kv.Store
	cache   *typesystem.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := kv.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	wal, err := durability.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	gen, err := thing.NewObjectIDGenerator(store)
	require.NoError(t, err)

	im := isolation.NewManager(store, wal)
	return &fixture{manager: thing.NewManager(gen), iso: im, store: store, cache: testSchema(t)}
}

func (f *fixture) write(t *testing.T, fn func(ws *snapshot.WriteSnapshot)) {
	t.Helper()
	ws := snapshot.NewWriteSnapshot(f.store, f.iso.Watermark())
	fn(ws)
	_, err := f.iso.Commit(ws, isolation.CommitData)
	require.NoError(t, err)
}

func (f *fixture) readSnapshot() *snapshot.ReadSnapshot {
	return snapshot.NewReadSnapshot(f.store, f.iso.Watermark())
}

func (f *fixture) newContext(read *snapshot.ReadSnapshot, ta *inference.TypeAnnotations, params *ir.ParameterRegistry) *Context {
	return &Context{Reader: read, Things: f.manager, Types: f.cache, Annotation: ta, Parameters: params}
}

func TestRealizeIsaEntity(t *testing.T) {
	f := newFixture(t)
	var created thing.Object
	f.write(t, func(ws *snapshot.WriteSnapshot) {
		var err error
		created, err = f.manager.CreateEntity(ws, personType)
		require.NoError(t, err)
	})

	vars := ir.NewVariableRegistry()
	params := ir.NewParameterRegistry()
	x := vars.Declare("x", ir.CategoryThing)
	personRef := vars.Declare("person", ir.CategoryType)
	conj := ir.Conjunction{Constraints: []ir.Constraint{{Kind: ir.ConstraintIsa, Variable: x, Type: personRef}}}

	block := &ir.Block{Variables: vars, Parameters: params, Conjunction: conj}
	cache := f.cache
	ta, err := inference.Infer(block, cache)
	require.NoError(t, err)

	exe := planner.Plan(&conj, nil, ta, planner.NewStatistics())
	ctx := f.newContext(f.readSnapshot(), ta, params)

	var results []Row
	err = ctx.RunMatch(exe, newRow(exe.OutputWidth), func(row Row) bool {
		results = append(results, row.clone(exe.OutputWidth))
		return true
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	pos := exe.VariablePositions[x]
	require.Equal(t, created.Vertex, results[0].get(pos).Object.Vertex)
}

func TestRealizeHasBothBound(t *testing.T) {
	f := newFixture(t)
	var person thing.Object
	var name thing.Attribute
	f.write(t, func(ws *snapshot.WriteSnapshot) {
		var err error
		person, err = f.manager.CreateEntity(ws, personType)
		require.NoError(t, err)
		name, err = f.manager.PutAttribute(ws, nameType, thing.Value{Kind: thing.ValueString, String: "bob"})
		require.NoError(t, err)
		f.manager.SetHas(ws, person, name)
	})

	read := f.readSnapshot()
	ok, err := f.manager.HasEdgeExists(read, person, name)
	require.NoError(t, err)
	require.True(t, ok)

	vars := ir.NewVariableRegistry()
	owner := vars.Declare("owner", ir.CategoryThing)
	attr := vars.Declare("attr", ir.CategoryThing)
	conj := ir.Conjunction{Constraints: []ir.Constraint{{Kind: ir.ConstraintHas, Variable: owner, Attribute: attr}}}
	params := ir.NewParameterRegistry()
	ta, err := inference.Infer(&ir.Block{Variables: vars, Parameters: params, Conjunction: conj}, f.cache)
	require.NoError(t, err)
	exe := planner.Plan(&conj, nil, ta, planner.NewStatistics())
	ctx := f.newContext(read, ta, params)

	ownerPos, ok := exe.VariablePositions[owner]
	require.True(t, ok)
	attrPos, ok := exe.VariablePositions[attr]
	require.True(t, ok)
	input := newRow(exe.OutputWidth)
	input[ownerPos] = objectCell(person)
	input[attrPos] = attributeCell(name)

	var matched int
	err = ctx.RunMatch(exe, input, func(Row) bool { matched++; return true })
	require.NoError(t, err)
	require.Equal(t, 1, matched)
}

func TestApplySortAndLimit(t *testing.T) {
	vars := ir.NewVariableRegistry()
	a := vars.Declare("a", ir.CategoryValue)
	exe := &planner.MatchExecutable{OutputWidth: 1, VariablePositions: map[ir.Variable]planner.VariablePosition{a: 0}}
	ctx := &Context{}

	rows := []Row{
		{valueCell(longValue(3))},
		{valueCell(longValue(1))},
		{valueCell(longValue(2))},
	}
	sorted := ctx.applySort(exe, ir.Modifier{Kind: ir.ModifierSort, SortKeys: []ir.SortKey{{Variable: a}}}, rows)
	require.Equal(t, int64(1), sorted[0][0].Value.Long)
	require.Equal(t, int64(2), sorted[1][0].Value.Long)
	require.Equal(t, int64(3), sorted[2][0].Value.Long)

	limited := applyLimit(ir.Modifier{Limit: 2}, sorted)
	require.Len(t, limited, 2)
}

func TestApplyReduceCount(t *testing.T) {
	vars := ir.NewVariableRegistry()
	as := vars.Declare("c", ir.CategoryValue)
	exe := &planner.MatchExecutable{OutputWidth: 1, VariablePositions: map[ir.Variable]planner.VariablePosition{as: 0}}
	ctx := &Context{}

	rows := []Row{{valueCell(longValue(0))}, {valueCell(longValue(0))}, {valueCell(longValue(0))}}
	reduced := ctx.applyReduce(exe, ir.Modifier{Kind: ir.ModifierReduce, Reductions: []ir.Reduction{{Op: ir.ReduceCount, As: as}}}, rows)
	require.Len(t, reduced, 1)
	require.Equal(t, int64(3), reduced[0][0].Value.Long)
}

func TestRunInsertCreatesEntityAndAttribute(t *testing.T) {
	f := newFixture(t)
	vars := ir.NewVariableRegistry()
	params := ir.NewParameterRegistry()
	p := vars.Declare("p", ir.CategoryThing)
	a := vars.Declare("a", ir.CategoryThing)
	lit := params.Intern(thing.Value{Kind: thing.ValueString, String: "bob"})

	ws := snapshot.NewWriteSnapshot(f.store, f.iso.Watermark())
	ctx := f.newContext(nil, nil, params)
	exe := &planner.WriteExecutable{Kind: ir.WriteInsert, Instructions: []ir.Constraint{
		{Kind: ir.ConstraintIsa, Variable: p, Type: variableForLabel(vars, "person", p)},
		{Kind: ir.ConstraintIsa, Variable: a, Type: variableForLabel(vars, "name", a)},
		{Kind: ir.ConstraintComparison, Op: ir.OpEQ, Left: ir.Operand{Variable: a}, Right: ir.Operand{Parameter: lit, IsLiteral: true}},
		{Kind: ir.ConstraintHas, Variable: p, Attribute: a},
	}}

	bindings, err := ctx.RunWrite(ws, vars, exe, Bindings{})
	require.NoError(t, err)
	require.Contains(t, bindings, p)
	require.Contains(t, bindings, a)
	require.Equal(t, CellObject, bindings[p].Kind)
	require.Equal(t, CellAttribute, bindings[a].Kind)
	require.Equal(t, "bob", bindings[a].Attribute.Value.String)
}

// variableForLabel declares (or reuses) a registry entry whose name
// matches a schema label, standing in for how translation resolves an
// isa clause's literal type name to the variable the constraint's Type
// field references in this IR shape.
func variableForLabel(vars *ir.VariableRegistry, label string, fallback ir.Variable) ir.Variable {
	if v, ok := vars.Lookup(label); ok {
		return v
	}
	return vars.Declare(label, ir.CategoryType)
}
