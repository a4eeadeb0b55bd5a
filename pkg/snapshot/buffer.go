// Package snapshot implements read and write snapshots over the KV
// keyspace layer: read snapshots delegate straight through to a sequence-
// bounded view of committed state, write snapshots additionally buffer
// uncommitted operations and locks, merged with committed state on read.
package snapshot

import (
	"bytes"

	"github.com/google/btree"
)

// WriteKind is the kind of a buffered write.
type WriteKind int

const (
	WriteInsert WriteKind = iota
	WritePut
	WriteDelete
)

// Write is one buffered operation on a key.
type Write struct {
	Kind     WriteKind
	Value    []byte
	Reinsert bool // Put only: force re-insertion even if unchanged
}

// bufferEntry is the btree.Item stored for one buffered key; keys sort
// lexicographically by their raw bytes.
type bufferEntry struct {
	key   string
	write Write
}

func (e bufferEntry) Less(than btree.Item) bool {
	return e.key < than.(bufferEntry).key
}

// OperationsBuffer is the per-keyspace buffer of writes for a write
// snapshot, held in a btree keyed by raw key bytes so it is always in
// key order: a committed range iterator and the buffer can be k-way
// merged directly, with no sort pass over the buffered side.
type OperationsBuffer struct {
	tree *btree.BTree
}

// NewOperationsBuffer creates an empty buffer.
func NewOperationsBuffer() *OperationsBuffer {
	return &OperationsBuffer{tree: btree.New(32)}
}

func (b *OperationsBuffer) set(key []byte, w Write) {
	b.tree.ReplaceOrInsert(bufferEntry{key: string(key), write: w})
}

// Insert buffers an unconditional insert of key.
func (b *OperationsBuffer) Insert(key, value []byte) {
	b.set(key, Write{Kind: WriteInsert, Value: value})
}

// Put buffers an idempotent put; reinsert marks "treat as insert even if
// the prior committed state was a delete", resolved during commit
// validation against concurrent predecessors.
func (b *OperationsBuffer) Put(key, value []byte) {
	b.set(key, Write{Kind: WritePut, Value: value})
}

// Delete buffers a delete of key.
func (b *OperationsBuffer) Delete(key []byte) {
	b.set(key, Write{Kind: WriteDelete})
}

// MarkReinsert flips the Reinsert flag on an existing buffered Put,
// called by the isolation manager during commit validation.
func (b *OperationsBuffer) MarkReinsert(key []byte) {
	item := b.tree.Get(bufferEntry{key: string(key)})
	if item == nil {
		return
	}
	entry := item.(bufferEntry)
	if entry.write.Kind != WritePut {
		return
	}
	entry.write.Reinsert = true
	b.tree.ReplaceOrInsert(entry)
}

// Get returns the buffered write for key, if any.
func (b *OperationsBuffer) Get(key []byte) (Write, bool) {
	item := b.tree.Get(bufferEntry{key: string(key)})
	if item == nil {
		return Write{}, false
	}
	return item.(bufferEntry).write, true
}

// Len returns the number of buffered keys.
func (b *OperationsBuffer) Len() int {
	return b.tree.Len()
}

// Entry pairs a buffered key with its write, used for ordered iteration.
type Entry struct {
	Key   []byte
	Write Write
}

// RangeInPrefix returns buffered entries whose key has the given prefix,
// in key order.
func (b *OperationsBuffer) RangeInPrefix(prefix []byte) []Entry {
	var out []Entry
	b.tree.AscendGreaterOrEqual(bufferEntry{key: string(prefix)}, func(item btree.Item) bool {
		entry := item.(bufferEntry)
		if !bytes.HasPrefix([]byte(entry.key), prefix) {
			return false
		}
		out = append(out, Entry{Key: []byte(entry.key), Write: entry.write})
		return true
	})
	return out
}

// All returns every buffered entry in key order, used by commit to apply
// writes and by the isolation manager to walk dependencies.
func (b *OperationsBuffer) All() []Entry {
	entries := make([]Entry, 0, b.tree.Len())
	b.tree.Ascend(func(item btree.Item) bool {
		entry := item.(bufferEntry)
		entries = append(entries, Entry{Key: []byte(entry.key), Write: entry.write})
		return true
	})
	return entries
}
