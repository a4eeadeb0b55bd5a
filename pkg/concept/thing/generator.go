package thing

import (
	"encoding/binary"
	"sync"

	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/kv"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

const generatorKeyspace = "thing-generator"

// ObjectIDGenerator hands out the next object id for a type, one
// monotonic counter per type, persisted immediately (outside MVCC) so
// ids are never reused even if the allocating transaction rolls back.
// This mirrors the durability log's own sequence counter: process-wide,
// atomically advancing, and durable before it is handed to a caller.
type ObjectIDGenerator struct {
	mu     sync.Mutex
	ks     *kv.Keyspace
	cached map[encoding.TypeID]uint64
}

// NewObjectIDGenerator opens the generator keyspace and loads every
// type's counter into memory.
func NewObjectIDGenerator(store *kv.Store) (*ObjectIDGenerator, error) {
	ks, err := store.Keyspace(generatorKeyspace)
	if err != nil {
		return nil, err
	}
	g := &ObjectIDGenerator{ks: ks, cached: make(map[encoding.TypeID]uint64)}
	err = ks.ScanPrefix(nil, func(e kv.Entry) bool {
		if len(e.Key) != 2 || len(e.Value) != 8 {
			return true
		}
		typeID := encoding.TypeID(binary.BigEndian.Uint16(e.Key))
		g.cached[typeID] = binary.BigEndian.Uint64(e.Value)
		return true
	})
	if err != nil {
		return nil, vterr.Wrap(vterr.CodeStorageIO, err, "load object id generator")
	}
	return g, nil
}

// Next allocates and persists the next object id for typeID.
func (g *ObjectIDGenerator) Next(typeID encoding.TypeID) (encoding.ObjectID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.cached[typeID] + 1

	key := make([]byte, 2)
	binary.BigEndian.PutUint16(key, uint16(typeID))
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, next)
	if err := g.ks.Put(key, value); err != nil {
		return 0, vterr.Wrap(vterr.CodeStorageIO, err, "persist object id generator for type %d", typeID)
	}

	g.cached[typeID] = next
	return encoding.ObjectID(next), nil
}
