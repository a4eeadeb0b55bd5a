// Package kv implements the ordered key-value keyspace layer: one bbolt
// file per logical keyspace under storage/<keyspace>/, generalized from
// the teacher's single bucket-per-entity-kind database into a
// file-per-keyspace layout so each keyspace can be checkpointed and
// garbage-collected independently.
package kv

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/holiman/bloomfilter/v2"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/vertexdb/vertexdb/pkg/log"
	"github.com/vertexdb/vertexdb/pkg/metrics"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

var dataBucket = []byte("data")

// Keyspace is an ordered byte-key to byte-value store backed by one bbolt
// file. Durability comes solely from the separate WAL; the keyspace's own
// bbolt file is not relied on for crash recovery ahead of a checkpoint.
type Keyspace struct {
	name string
	path string
	db   *bolt.DB

	filter *bloomfilter.Filter

	logger zerolog.Logger
}

// Open opens or creates the keyspace file at dir/storage/<name>/data.db.
//
// withBloomFilter should be true for keyspaces whose keys share a fixed-
// width prefix (type-vertex, thing-vertex): point lookups there dominate
// and a bloom filter avoids most negative-lookup page faults.
func Open(dir, name string, withBloomFilter bool) (*Keyspace, error) {
	root := filepath.Join(dir, "storage", name, "data.db")
	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "create keyspace directory for %s", name)
	}

	db, err := bolt.Open(root, 0o600, nil)
	if err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "open keyspace %s", name)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "initialize keyspace %s", name)
	}

	ks := &Keyspace{name: name, path: root, db: db, logger: log.Component("kv")}

	if withBloomFilter {
		filter, ferr := bloomfilter.NewOptimal(1<<20, 0.01)
		if ferr == nil {
			ks.filter = filter
			_ = ks.rebuildFilter()
		}
	}

	ks.logger.Debug().Str("keyspace", name).Bool("bloom_filter", ks.filter != nil).Msg("keyspace opened")
	return ks, nil
}

// Close releases the underlying bbolt file.
func (k *Keyspace) Close() error {
	return k.db.Close()
}

// Name returns the keyspace's logical name.
func (k *Keyspace) Name() string { return k.name }

func (k *Keyspace) rebuildFilter() error {
	return k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for key, _ := c.First(); key != nil; key, _ = c.Next() {
			k.filter.Add(filterHash(key))
		}
		return nil
	})
}

func filterHash(key []byte) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range key {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// mightContain consults the bloom filter when present; always true absent
// a filter.
func (k *Keyspace) mightContain(key []byte) bool {
	if k.filter == nil {
		return true
	}
	return k.filter.Contains(filterHash(key))
}

// Put writes a single key-value pair.
func (k *Keyspace) Put(key, value []byte) error {
	err := k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Put(key, value)
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "put into keyspace %s", k.name)
	}
	if k.filter != nil {
		k.filter.Add(filterHash(key))
	}
	return nil
}

// Get reads the value for key, returning ok=false if absent.
func (k *Keyspace) Get(key []byte) (value []byte, ok bool, err error) {
	if !k.mightContain(key) {
		return nil, false, nil
	}
	err = k.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(key)
		if v == nil {
			return nil
		}
		ok = true
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, vterr.Wrap(vterr.CodeStorageIO, err, "get from keyspace %s", k.name)
	}
	return value, ok, nil
}

// Delete removes key, a no-op if absent.
func (k *Keyspace) Delete(key []byte) error {
	err := k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Delete(key)
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "delete from keyspace %s", k.name)
	}
	return nil
}

// BatchOp is one operation within a Batch call.
type BatchOp struct {
	Key    []byte
	Value  []byte // ignored when Delete is set
	Delete bool
}

// Batch applies a list of operations in a single bbolt transaction.
func (k *Keyspace) Batch(ops []BatchOp) error {
	err := k.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		for _, op := range ops {
			if op.Delete {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "batch write to keyspace %s", k.name)
	}
	if k.filter != nil {
		for _, op := range ops {
			if !op.Delete {
				k.filter.Add(filterHash(op.Key))
			}
		}
	}
	return nil
}

// Entry is one key-value pair yielded by a range scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanPrefix forward-iterates every key sharing prefix, calling fn for
// each. Iteration stops early if fn returns false.
func (k *Keyspace) ScanPrefix(prefix []byte, fn func(Entry) bool) error {
	err := k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for key, value := c.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = c.Next() {
			if !fn(Entry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)}) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "prefix scan on keyspace %s", k.name)
	}
	return nil
}

// ScanRange forward-iterates keys in [start, end), calling fn for each.
func (k *Keyspace) ScanRange(start, end []byte, fn func(Entry) bool) error {
	err := k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for key, value := c.Seek(start); key != nil && (end == nil || bytes.Compare(key, end) < 0); key, value = c.Next() {
			if !fn(Entry{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)}) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "range scan on keyspace %s", k.name)
	}
	return nil
}

// GetPrev returns the last key strictly less than key, for reverse
// lookups (e.g. finding a key's most recent committed version).
func (k *Keyspace) GetPrev(key []byte) (Entry, bool, error) {
	var (
		result Entry
		found  bool
	)
	err := k.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		k2, _ := c.Seek(key)
		if k2 == nil {
			k2, v2 := c.Last()
			if k2 != nil {
				result = Entry{Key: append([]byte(nil), k2...), Value: append([]byte(nil), v2...)}
				found = true
			}
			return nil
		}
		k2, v2 := c.Prev()
		if k2 != nil {
			result = Entry{Key: append([]byte(nil), k2...), Value: append([]byte(nil), v2...)}
			found = true
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, vterr.Wrap(vterr.CodeStorageIO, err, "get-prev on keyspace %s", k.name)
	}
	return result, found, nil
}

// Checkpoint writes a consistent copy of the keyspace file to dir.
func (k *Keyspace) Checkpoint(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "create checkpoint directory for %s", k.name)
	}
	dst := filepath.Join(dir, k.name+".db")
	f, err := os.Create(dst)
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "create checkpoint file for %s", k.name)
	}
	defer f.Close()

	err = k.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return vterr.Wrap(vterr.CodeStorageIO, err, "checkpoint keyspace %s", k.name)
	}
	return nil
}

// Size reports the on-disk size of the keyspace file and publishes it to
// the keyspace_bytes gauge.
func (k *Keyspace) Size() (int64, error) {
	info, err := os.Stat(k.path)
	if err != nil {
		return 0, vterr.Wrap(vterr.CodeStorageIO, err, "stat keyspace %s", k.name)
	}
	metrics.KeyspaceSize.WithLabelValues(k.name).Set(float64(info.Size()))
	return info.Size(), nil
}
