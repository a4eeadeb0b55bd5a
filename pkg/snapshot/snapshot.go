package snapshot

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/vertexdb/vertexdb/pkg/kv"
)

// versionSuffixLen is the width of the commit-sequence suffix appended to
// every committed key: key ∥ commit-sn, big-endian so that, within a key,
// larger sequence numbers sort after smaller ones.
const versionSuffixLen = 8

func versionedKey(key []byte, sn uint64) []byte {
	out := make([]byte, len(key)+versionSuffixLen)
	copy(out, key)
	binary.BigEndian.PutUint64(out[len(key):], sn)
	return out
}

func splitVersionedKey(vkey []byte) (key []byte, sn uint64) {
	n := len(vkey) - versionSuffixLen
	return vkey[:n], binary.BigEndian.Uint64(vkey[n:])
}

// LockType is the kind of lock a write snapshot holds on a key.
type LockType int

const (
	LockExclusive LockType = iota
	LockUnmodifiable
)

// LockSet is the set of locks a write snapshot has acquired.
type LockSet struct {
	locks map[string]LockType
}

// NewLockSet returns an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]LockType)}
}

// Add records a lock of the given type on key. Exclusive supersedes
// Unmodifiable if both are requested on the same key.
func (l *LockSet) Add(key []byte, kind LockType) {
	existing, ok := l.locks[string(key)]
	if ok && existing == LockExclusive {
		return
	}
	l.locks[string(key)] = kind
}

// Get returns the lock type held on key, if any.
func (l *LockSet) Get(key []byte) (LockType, bool) {
	kind, ok := l.locks[string(key)]
	return kind, ok
}

// All returns every locked key and its lock type.
func (l *LockSet) All() map[string]LockType {
	return l.locks
}

// ReadSnapshot is an immutable view of committed state as of Sequence.
type ReadSnapshot struct {
	Sequence uint64
	store    *kv.Store
}

// NewReadSnapshot opens a read snapshot at sn against store.
func NewReadSnapshot(store *kv.Store, sn uint64) *ReadSnapshot {
	return &ReadSnapshot{Sequence: sn, store: store}
}

// Get returns the value visible at the snapshot's sequence number: the
// highest committed version of key with commit-sn <= Sequence.
func (r *ReadSnapshot) Get(keyspace string, key []byte) ([]byte, bool, error) {
	ks, err := r.store.Keyspace(keyspace)
	if err != nil {
		return nil, false, err
	}
	// The newest version of key visible at Sequence is the greatest
	// versioned key <= key∥Sequence; GetPrev on one-past-that finds it
	// directly without a scan.
	target := versionedKey(key, r.Sequence)
	entry, found, err := ks.GetPrev(incrementLexicographically(target))
	if err != nil || !found {
		return nil, false, err
	}
	foundKey, sn := splitVersionedKey(entry.Key)
	if !bytes.Equal(foundKey, key) || sn > r.Sequence {
		// GetPrev may have landed on an earlier key entirely, or (rare)
		// a version newer than allowed if upperBound computation raced
		// with a concurrent commit; re-check by bounded prefix scan.
		return r.getByScan(ks, key)
	}
	if len(entry.Value) == 0 {
		return nil, false, nil // tombstone
	}
	return entry.Value, true, nil
}

// ScanPrefix iterates every committed key under prefix visible at the
// snapshot's sequence number, in key order, newest version of each key
// only, skipping tombstones.
func (r *ReadSnapshot) ScanPrefix(keyspace string, prefix []byte, fn func(MergedEntry) bool) error {
	ks, err := r.store.Keyspace(keyspace)
	if err != nil {
		return err
	}

	latest := map[string][]byte{}
	var order [][]byte
	err = ks.ScanPrefix(prefix, func(e kv.Entry) bool {
		foundKey, sn := splitVersionedKey(e.Key)
		if sn > r.Sequence {
			return true
		}
		if _, seen := latest[string(foundKey)]; !seen {
			order = append(order, append([]byte(nil), foundKey...))
		}
		latest[string(foundKey)] = e.Value
		return true
	})
	if err != nil {
		return err
	}

	for _, key := range order {
		value := latest[string(key)]
		if len(value) == 0 {
			continue
		}
		if !fn(MergedEntry{Key: key, Value: value}) {
			break
		}
	}
	return nil
}

func (r *ReadSnapshot) getByScan(ks *kv.Keyspace, key []byte) ([]byte, bool, error) {
	var (
		bestValue []byte
		bestSN    uint64
		found     bool
	)
	err := ks.ScanPrefix(key, func(e kv.Entry) bool {
		foundKey, sn := splitVersionedKey(e.Key)
		if !bytes.Equal(foundKey, key) || sn > r.Sequence {
			return true
		}
		if !found || sn > bestSN {
			bestSN = sn
			bestValue = e.Value
			found = true
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if !found || len(bestValue) == 0 {
		return nil, false, nil
	}
	return bestValue, true, nil
}

func incrementLexicographically(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return append(out, 0x00)
}

// CommitVersion writes a key's value visible from sequence number sn
// onward. An empty value encodes a tombstone (delete).
func CommitVersion(ks *kv.Keyspace, key []byte, sn uint64, value []byte) error {
	return ks.Put(versionedKey(key, sn), value)
}

// WriteSnapshot layers an OperationsBuffer and LockSet of uncommitted
// writes over a ReadSnapshot's committed view.
type WriteSnapshot struct {
	*ReadSnapshot
	OpenSequence uint64

	buffers map[string]*OperationsBuffer
	Locks   *LockSet
}

// NewWriteSnapshot opens a write snapshot at openSN.
func NewWriteSnapshot(store *kv.Store, openSN uint64) *WriteSnapshot {
	return &WriteSnapshot{
		ReadSnapshot: NewReadSnapshot(store, openSN),
		OpenSequence: openSN,
		buffers:      make(map[string]*OperationsBuffer),
		Locks:        NewLockSet(),
	}
}

// Buffer returns the operations buffer for keyspace, creating it empty on
// first use.
func (w *WriteSnapshot) Buffer(keyspace string) *OperationsBuffer {
	b, ok := w.buffers[keyspace]
	if !ok {
		b = NewOperationsBuffer()
		w.buffers[keyspace] = b
	}
	return b
}

// Buffers returns every keyspace's buffer, used by the isolation manager
// at commit time.
func (w *WriteSnapshot) Buffers() map[string]*OperationsBuffer {
	return w.buffers
}

// Get reads the merge of buffered state over committed state: a buffered
// Insert/Put hides the committed value, a buffered Delete hides it too
// (reporting absence), and an unbuffered key reads through.
func (w *WriteSnapshot) Get(keyspace string, key []byte) ([]byte, bool, error) {
	if b, ok := w.buffers[keyspace]; ok {
		if write, ok := b.Get(key); ok {
			if write.Kind == WriteDelete {
				return nil, false, nil
			}
			return write.Value, true, nil
		}
	}
	return w.ReadSnapshot.Get(keyspace, key)
}

// Discard drops every buffer and lock, used to roll back a failed write
// transaction. It touches only in-memory state and writes nothing to the
// WAL or to any keyspace.
func (w *WriteSnapshot) Discard() {
	w.buffers = make(map[string]*OperationsBuffer)
	w.Locks = NewLockSet()
}

// MergedEntry is one row of a merged range scan, tagged with whether it
// came from the buffer or from committed storage.
type MergedEntry struct {
	Key       []byte
	Value     []byte
	FromWrite bool
}

// ScanPrefix merges the buffered entries under prefix with a committed
// range iterator, in key order, skipping deleted keys and deduplicating
// by key (buffered wins on ties).
func (w *WriteSnapshot) ScanPrefix(keyspace string, prefix []byte, fn func(MergedEntry) bool) error {
	ks, err := w.store.Keyspace(keyspace)
	if err != nil {
		return err
	}

	var buffered []Entry
	if b, ok := w.buffers[keyspace]; ok {
		buffered = b.RangeInPrefix(prefix)
	}

	committed := map[string][]byte{}
	var committedKeys [][]byte
	err = ks.ScanPrefix(prefix, func(e kv.Entry) bool {
		foundKey, sn := splitVersionedKey(e.Key)
		if sn > w.Sequence {
			return true
		}
		// Versions of the same key sort together with ascending sn, so
		// later hits here simply overwrite earlier (older) ones.
		if _, seen := committed[string(foundKey)]; !seen {
			committedKeys = append(committedKeys, append([]byte(nil), foundKey...))
		}
		committed[string(foundKey)] = e.Value
		return true
	})
	if err != nil {
		return err
	}

	bufferedSet := make(map[string]Write, len(buffered))
	for _, e := range buffered {
		bufferedSet[string(e.Key)] = e.Write
	}

	emitted := make(map[string]bool, len(committedKeys)+len(buffered))

	merge := func(key []byte) bool {
		k := string(key)
		if emitted[k] {
			return true
		}
		emitted[k] = true
		if write, ok := bufferedSet[k]; ok {
			if write.Kind == WriteDelete {
				return true
			}
			return fn(MergedEntry{Key: key, Value: write.Value, FromWrite: true})
		}
		if value, ok := committed[k]; ok {
			if len(value) == 0 {
				return true
			}
			return fn(MergedEntry{Key: key, Value: value})
		}
		return true
	}

	all := make([][]byte, 0, len(committedKeys)+len(buffered))
	all = append(all, committedKeys...)
	for _, e := range buffered {
		all = append(all, e.Key)
	}
	sortKeys(all)

	for _, key := range all {
		if !merge(key) {
			break
		}
	}
	return nil
}

func sortKeys(keys [][]byte) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
}
