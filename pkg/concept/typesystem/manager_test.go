package typesystem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
)

func newTestManager(t *testing.T) (*Manager, *isolation.Manager, *kv.Store) {
	t.Helper()
	dir := t.TempDir()

	store, err := kv.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	wal, err := durability.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	im := isolation.NewManager(store, wal)
	ws := snapshot.NewWriteSnapshot(store, 0)

	tm, err := NewManager(im, ws)
	require.NoError(t, err)
	return tm, im, store
}

func TestManagerCreateAndCommitType(t *testing.T) {
	tm, im, store := newTestManager(t)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	person, err := tm.CreateType(ws, KindEntity, Label{Name: "person"}, ValueTypeNone)
	require.NoError(t, err)

	unlock := im.AcquireSchemaLock(isolation.CommitSchema)
	_, err = im.Commit(ws, isolation.CommitSchema)
	unlock()
	require.NoError(t, err)

	readWS := snapshot.NewWriteSnapshot(store, im.Watermark())
	require.NoError(t, tm.Rebuild(readWS))

	got, ok := tm.LookupByLabel(Label{Name: "person"})
	require.True(t, ok)
	require.Equal(t, person.ID, got.ID)
	require.Equal(t, KindEntity, got.Kind)
}

func TestManagerCreateTypeRejectsDuplicateLabel(t *testing.T) {
	tm, im, store := newTestManager(t)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	_, err := tm.CreateType(ws, KindEntity, Label{Name: "person"}, ValueTypeNone)
	require.NoError(t, err)
	unlock := im.AcquireSchemaLock(isolation.CommitSchema)
	_, err = im.Commit(ws, isolation.CommitSchema)
	unlock()
	require.NoError(t, err)

	readWS := snapshot.NewWriteSnapshot(store, im.Watermark())
	require.NoError(t, tm.Rebuild(readWS))

	ws2 := snapshot.NewWriteSnapshot(store, im.Watermark())
	_, err = tm.CreateType(ws2, KindEntity, Label{Name: "person"}, ValueTypeNone)
	require.Error(t, err)
}

func TestManagerSetSupertypeAndSubtypes(t *testing.T) {
	tm, im, store := newTestManager(t)

	ws := snapshot.NewWriteSnapshot(store, im.Watermark())
	animal, err := tm.CreateType(ws, KindEntity, Label{Name: "animal"}, ValueTypeNone)
	require.NoError(t, err)
	dog, err := tm.CreateType(ws, KindEntity, Label{Name: "dog"}, ValueTypeNone)
	require.NoError(t, err)
	require.NoError(t, tm.SetSupertype(ws, dog.ID, &animal.ID))

	unlock := im.AcquireSchemaLock(isolation.CommitSchema)
	_, err = im.Commit(ws, isolation.CommitSchema)
	unlock()
	require.NoError(t, err)

	readWS := snapshot.NewWriteSnapshot(store, im.Watermark())
	require.NoError(t, tm.Rebuild(readWS))

	subtypes := tm.SubtypesTransitive(animal.ID)
	require.Contains(t, subtypes, dog.ID)
}
