package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/durability"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

const testKeyspace = "test"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()

	store, err := kv.OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	wal, err := durability.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })

	return NewManager(store, wal)
}

func TestConcurrentExclusiveLockConflicts(t *testing.T) {
	m := newTestManager(t)

	// Both snapshots open at the same watermark, as they would if two
	// transactions started concurrently before either commits.
	ws1 := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())
	ws2 := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())

	ws1.Locks.Add([]byte("person/1"), snapshot.LockExclusive)
	ws1.Buffer(testKeyspace).Put([]byte("person/1"), []byte("alice"))

	ws2.Locks.Add([]byte("person/1"), snapshot.LockExclusive)
	ws2.Buffer(testKeyspace).Put([]byte("person/1"), []byte("alice-again"))

	_, err := m.Commit(ws1, CommitData)
	require.NoError(t, err)
	m.CloseWriteSnapshot(ws1.OpenSequence)

	_, err = m.Commit(ws2, CommitData)
	require.Error(t, err)
	assert.True(t, vterr.Is(err, vterr.CodeExclusiveLock))
	m.CloseWriteSnapshot(ws2.OpenSequence)
}

func TestConcurrentDeleteOfUnmodifiableKeyConflicts(t *testing.T) {
	m := newTestManager(t)

	ws1 := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())
	ws2 := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())

	ws1.Locks.Add([]byte("person/1"), snapshot.LockUnmodifiable)
	ws1.Buffer(testKeyspace).Delete([]byte("person/1"))

	ws2.Locks.Add([]byte("person/1"), snapshot.LockUnmodifiable)
	ws2.Buffer(testKeyspace).Put([]byte("person/1"), []byte("still-here"))

	_, err := m.Commit(ws1, CommitData)
	require.NoError(t, err)
	m.CloseWriteSnapshot(ws1.OpenSequence)

	_, err = m.Commit(ws2, CommitData)
	require.Error(t, err)
	assert.True(t, vterr.Is(err, vterr.CodeRequireDeletedKey))
	m.CloseWriteSnapshot(ws2.OpenSequence)
}

// TestHistoryRetainedForLiveOpenSnapshot reproduces the scenario a naive
// watermark-only pruning rule gets wrong: a transaction (ws1) that
// opened before ws2 is still open when ws2 commits and advances the
// watermark. ws1's eventual commit must still see ws2's record in
// history even though it now sits at or below the watermark.
func TestHistoryRetainedForLiveOpenSnapshot(t *testing.T) {
	m := newTestManager(t)

	openSN := m.OpenWriteSnapshot() // ws1 opens first and stays open
	ws1 := snapshot.NewWriteSnapshot(m.store, openSN)

	ws2 := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())
	ws2.Locks.Add([]byte("person/1"), snapshot.LockExclusive)
	ws2.Buffer(testKeyspace).Put([]byte("person/1"), []byte("bob"))
	_, err := m.Commit(ws2, CommitData)
	require.NoError(t, err)
	m.CloseWriteSnapshot(ws2.OpenSequence)

	require.NotEmpty(t, m.history, "ws2's commit record must survive pruning while ws1 is still open")

	ws1.Locks.Add([]byte("person/1"), snapshot.LockExclusive)
	ws1.Buffer(testKeyspace).Put([]byte("person/1"), []byte("alice"))
	_, err = m.Commit(ws1, CommitData)
	require.Error(t, err, "ws1 opened before ws2's commit and must be checked against it")
	assert.True(t, vterr.Is(err, vterr.CodeExclusiveLock))
	m.CloseWriteSnapshot(openSN)
}

func TestWatermarkAdvancesPastClosedSnapshots(t *testing.T) {
	m := newTestManager(t)

	ws := snapshot.NewWriteSnapshot(m.store, m.OpenWriteSnapshot())
	ws.Buffer(testKeyspace).Put([]byte("person/1"), []byte("alice"))
	commitSN, err := m.Commit(ws, CommitData)
	require.NoError(t, err)
	m.CloseWriteSnapshot(ws.OpenSequence)

	assert.Equal(t, commitSN, m.Watermark())
	assert.Empty(t, m.history, "no live snapshot needs the record once it closed")
}
