package typesystem

import (
	"sort"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// labelEntry and idEntry are the btree items backing the two Cache
// indexes. btree.Less on an id/string key gives the ordered scans
// needed for kind enumeration by id (AllOfKind) and label prefix
// lookups (LabelPrefix).
type labelEntry struct {
	label string
	id    encoding.TypeID
}

func (a labelEntry) Less(than btree.Item) bool {
	return a.label < than.(labelEntry).label
}

type idEntry struct {
	id  encoding.TypeID
	typ *Type
}

func (a idEntry) Less(than btree.Item) bool {
	return a.id < than.(idEntry).id
}

// Cache is an immutable, fully-materialized view of the schema as of one
// schema commit. A schema commit builds a new Cache from scratch and
// swaps it in atomically; readers never see a partially-updated schema.
//
// Construction always re-scans every type vertex rather than patching an
// existing cache incrementally, mirroring the teacher-domain's
// full-rebuild-on-schema-commit approach: Capabilities and supertypes are
// assembled per type in one pass, then two btree indexes (by label, by
// id) are built over the result.
type Cache struct {
	byID    *btree.BTree
	byLabel *btree.BTree

	// subtypesDirect maps a type id to the ids of its direct subtypes,
	// precomputed once so transitive enumeration is a plain tree walk.
	subtypesDirect map[encoding.TypeID][]encoding.TypeID
}

// Source is the minimal read interface a schema snapshot must provide to
// build a Cache: enumerate every type vertex and its declared
// capabilities, supertype, and annotations. The isolation/schema layer
// implements this over a ReadSnapshot of the type and capability
// keyspaces.
type Source interface {
	AllTypes() ([]*Type, error)
}

// Build performs the full scan-then-index construction: read every type
// from src, compute direct-subtype adjacency, and index by id and by
// label.
func Build(src Source) (*Cache, error) {
	types, err := src.AllTypes()
	if err != nil {
		return nil, vterr.Wrap(vterr.CodeConceptRead, err, "build type cache")
	}

	c := &Cache{
		byID:           btree.New(32),
		byLabel:        btree.New(32),
		subtypesDirect: make(map[encoding.TypeID][]encoding.TypeID, len(types)),
	}

	for _, t := range types {
		c.byID.ReplaceOrInsert(idEntry{id: t.ID, typ: t})
		c.byLabel.ReplaceOrInsert(labelEntry{label: t.Label.String(), id: t.ID})
	}
	for _, t := range types {
		if t.Supertype != nil {
			c.subtypesDirect[*t.Supertype] = append(c.subtypesDirect[*t.Supertype], t.ID)
		}
	}
	for _, ids := range c.subtypesDirect {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	return c, nil
}

// Get returns the type with the given id.
func (c *Cache) Get(id encoding.TypeID) (*Type, bool) {
	item := c.byID.Get(idEntry{id: id})
	if item == nil {
		return nil, false
	}
	return item.(idEntry).typ, true
}

// GetByLabel resolves a type by its fully-scoped label.
func (c *Cache) GetByLabel(label Label) (*Type, bool) {
	item := c.byLabel.Get(labelEntry{label: label.String()})
	if item == nil {
		return nil, false
	}
	return c.Get(item.(labelEntry).id)
}

// DirectSubtypes returns the ids of id's direct subtypes, in ascending
// order.
func (c *Cache) DirectSubtypes(id encoding.TypeID) []encoding.TypeID {
	return c.subtypesDirect[id]
}

// Subtypes returns every transitive subtype of id, including id itself,
// via a breadth-first walk of the precomputed adjacency.
func (c *Cache) Subtypes(id encoding.TypeID) []encoding.TypeID {
	out := []encoding.TypeID{id}
	queue := []encoding.TypeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range c.subtypesDirect[cur] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Supertypes returns id's ancestor chain, nearest first, not including
// id itself.
func (c *Cache) Supertypes(id encoding.TypeID) ([]encoding.TypeID, bool) {
	t, ok := c.Get(id)
	if !ok {
		return nil, false
	}
	var out []encoding.TypeID
	for t.Supertype != nil {
		out = append(out, *t.Supertype)
		next, ok := c.Get(*t.Supertype)
		if !ok {
			break
		}
		t = next
	}
	return out, true
}

// CapabilitiesOf returns every capability of the given kind declared on
// id's own type record and inherited transitively from its supertypes,
// nearer declarations shadowing a farther one with the same target.
func (c *Cache) CapabilitiesOf(id encoding.TypeID, kind CapabilityKind) []Capability {
	chain := []encoding.TypeID{id}
	if supers, ok := c.Supertypes(id); ok {
		chain = append(chain, supers...)
	}

	seen := make(map[encoding.TypeID]bool)
	var out []Capability
	for _, tid := range chain {
		t, ok := c.Get(tid)
		if !ok {
			continue
		}
		for _, cap := range t.Capabilities {
			if cap.Kind != kind {
				continue
			}
			if seen[cap.Target] {
				continue
			}
			seen[cap.Target] = true
			out = append(out, cap)
		}
	}
	return out
}

// LabelPrefix returns every type whose label starts with prefix, in
// ascending label order; used for schema `match $t sub? ...`-style
// lookups that scan by name.
func (c *Cache) LabelPrefix(prefix string) []*Type {
	var out []*Type
	c.byLabel.AscendGreaterOrEqual(labelEntry{label: prefix}, func(item btree.Item) bool {
		le := item.(labelEntry)
		if len(le.label) < len(prefix) || le.label[:len(prefix)] != prefix {
			return false
		}
		if t, ok := c.Get(le.id); ok {
			out = append(out, t)
		}
		return true
	})
	return out
}

// AllOfKind returns every type of the given kind, in ascending id order;
// used to seed inference's candidate set for a variable with no narrowing
// Isa/Label/Kind constraint.
func (c *Cache) AllOfKind(kind Kind) []encoding.TypeID {
	var out []encoding.TypeID
	c.byID.Ascend(func(item btree.Item) bool {
		t := item.(idEntry).typ
		if t.Kind == kind {
			out = append(out, t.ID)
		}
		return true
	})
	return out
}

// atomicCache is the swap point a Manager uses to publish a freshly-built
// Cache to readers without blocking on their in-flight reads.
type atomicCache struct {
	v atomic.Value // holds *Cache
}

func (a *atomicCache) Load() *Cache {
	v := a.v.Load()
	if v == nil {
		return nil
	}
	return v.(*Cache)
}

func (a *atomicCache) Store(c *Cache) {
	a.v.Store(c)
}
