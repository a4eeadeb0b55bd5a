package thing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
)

func newTestFixture(t *testing.T) (*Manager, *isolation.Manager, *kv.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := kv.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	wal, err := durability.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	gen, err := NewObjectIDGenerator(store)
	require.NoError(t, err)

	im := isolation.NewManager(store, wal)
	return NewManager(gen), im, store
}

func TestCreateEntityAndIterate(t *testing.T) {
	m, im, store := newTestFixture(t)
	personType := encoding.TypeID(1)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	p1, err := m.CreateEntity(ws, personType)
	require.NoError(t, err)
	p2, err := m.CreateEntity(ws, personType)
	require.NoError(t, err)
	require.NotEqual(t, p1.Vertex.ObjectID, p2.Vertex.ObjectID)

	_, err = im.Commit(ws, isolation.CommitData)
	require.NoError(t, err)

	read := snapshot.NewReadSnapshot(store, im.Watermark())
	var found []Object
	require.NoError(t, m.GetEntitiesIn(read, personType, func(o Object) bool {
		found = append(found, o)
		return true
	}))
	require.Len(t, found, 2)
}

func TestPutAttributeIsIdempotent(t *testing.T) {
	m, im, store := newTestFixture(t)
	nameType := encoding.TypeID(5)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	a1, err := m.PutAttribute(ws, nameType, Value{Kind: ValueString, String: "alice"})
	require.NoError(t, err)
	a2, err := m.PutAttribute(ws, nameType, Value{Kind: ValueString, String: "alice"})
	require.NoError(t, err)
	require.Equal(t, a1.ID, a2.ID)

	_, err = im.Commit(ws, isolation.CommitData)
	require.NoError(t, err)

	ws2 := snapshot.NewWriteSnapshot(store, im.Watermark())
	a3, err := m.PutAttribute(ws2, nameType, Value{Kind: ValueString, String: "alice"})
	require.NoError(t, err)
	require.Equal(t, a1.ID, a3.ID)
}

func TestHasEdgeAndDeleteCascade(t *testing.T) {
	m, im, store := newTestFixture(t)
	personType := encoding.TypeID(1)
	nameType := encoding.TypeID(5)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	person, err := m.CreateEntity(ws, personType)
	require.NoError(t, err)
	name, err := m.PutAttribute(ws, nameType, Value{Kind: ValueString, String: "bob"})
	require.NoError(t, err)
	m.SetHas(ws, person, name)
	_, err = im.Commit(ws, isolation.CommitData)
	require.NoError(t, err)

	read := snapshot.NewReadSnapshot(store, im.Watermark())
	var attrs []encoding.ObjectVertex
	require.NoError(t, m.AttributesOfOwner(read, person, func(a encoding.ObjectVertex) bool {
		attrs = append(attrs, a)
		return true
	}))
	require.Len(t, attrs, 1)

	ws2 := snapshot.NewWriteSnapshot(store, im.Watermark())
	require.NoError(t, m.Delete(ws2, person))
	_, err = im.Commit(ws2, isolation.CommitData)
	require.NoError(t, err)

	read2 := snapshot.NewReadSnapshot(store, im.Watermark())
	attrs = nil
	require.NoError(t, m.AttributesOfOwner(read2, person, func(a encoding.ObjectVertex) bool {
		attrs = append(attrs, a)
		return true
	}))
	require.Empty(t, attrs)
}
