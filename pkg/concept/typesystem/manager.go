package typesystem

import (
	"fmt"

	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/isolation"
	"github.com/vertexdb/vertexdb/pkg/log"
	"github.com/vertexdb/vertexdb/pkg/metrics"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
	"github.com/vertexdb/vertexdb/pkg/vterr"

	"github.com/rs/zerolog"
)

const typeKeyspace = "type-vertex"

// Manager is the schema read/write surface used by the translator,
// planner, and executor. It keeps one immutable Cache built from a full
// scan of the type keyspace and swaps it for a freshly-built one after
// every schema commit, guarded throughout by the isolation manager's
// schema commit lock.
type Manager struct {
	isolation *isolation.Manager
	cache     atomicCache
	nextID    uint32 // next unassigned TypeID, advanced only while holding the schema lock
	logger    zerolog.Logger
}

// NewManager builds a Manager and performs the initial full-scan cache
// construction over ws's committed view.
func NewManager(im *isolation.Manager, ws *snapshot.WriteSnapshot) (*Manager, error) {
	m := &Manager{isolation: im, logger: log.Component("typesystem")}
	if err := m.rebuild(ws); err != nil {
		return nil, err
	}
	var maxID encoding.TypeID
	err := ws.ScanPrefix(typeKeyspace, []byte{byte(encoding.PrefixTypeVertex)}, func(e snapshot.MergedEntry) bool {
		tv, decErr := encoding.DecodeTypeVertex(e.Key)
		if decErr != nil {
			return true
		}
		if tv.TypeID > maxID {
			maxID = tv.TypeID
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	m.nextID = uint32(maxID) + 1
	return m, nil
}

// Cache returns the currently published type cache.
func (m *Manager) Cache() *Cache {
	return m.cache.Load()
}

// snapshotSource adapts a write snapshot's merged view of the type
// keyspace into typesystem.Source by decoding every stored Type record.
type snapshotSource struct {
	ws *snapshot.WriteSnapshot
}

func (s snapshotSource) AllTypes() ([]*Type, error) {
	var (
		out []*Type
		err error
	)
	scanErr := s.ws.ScanPrefix(typeKeyspace, []byte{byte(encoding.PrefixTypeVertex)}, func(e snapshot.MergedEntry) bool {
		t, decodeErr := decodeType(e.Value)
		if decodeErr != nil {
			err = decodeErr
			return false
		}
		out = append(out, t)
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return out, err
}

func (m *Manager) rebuild(ws *snapshot.WriteSnapshot) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TypeCacheRebuildDuration)

	c, err := Build(snapshotSource{ws: ws})
	if err != nil {
		return err
	}
	m.cache.Store(c)
	metrics.TypeCacheRebuildsTotal.Inc()
	m.logger.Debug().Msg("rebuilt type cache")
	return nil
}

// CreateType allocates a fresh TypeID and buffers the new type's record
// into ws's write snapshot; the caller commits ws under CommitSchema and
// then calls Rebuild to publish the resulting cache.
func (m *Manager) CreateType(ws *snapshot.WriteSnapshot, kind Kind, label Label, valueType ValueType) (*Type, error) {
	if existing, ok := m.cache.Load().GetByLabel(label); ok {
		return nil, vterr.New(vterr.CodeIllegalSchemaTransition, fmt.Sprintf("type %q already exists (id %d)", label, existing.ID))
	}
	id := encoding.TypeID(m.nextID)
	m.nextID++

	t := &Type{ID: id, Kind: kind, Label: label, ValueType: valueType}
	if err := m.putType(ws, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteType buffers the removal of id's type record, rejecting a type
// that still has direct subtypes in the published cache. The caller is
// responsible for having already verified id has no instances, per the
// schema deletion invariants.
func (m *Manager) DeleteType(ws *snapshot.WriteSnapshot, id encoding.TypeID) error {
	if len(m.cache.Load().DirectSubtypes(id)) > 0 {
		return vterr.New(vterr.CodeIllegalSchemaTransition, fmt.Sprintf("type %d has subtypes, cannot delete", id))
	}
	ws.Buffer(typeKeyspace).Delete(encoding.TypeVertex{TypeID: id}.Encode())
	return nil
}

// SetSupertype buffers a supertype assignment on id, replacing any prior
// supertype.
func (m *Manager) SetSupertype(ws *snapshot.WriteSnapshot, id encoding.TypeID, supertype *encoding.TypeID) error {
	t, ok := m.cache.Load().Get(id)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", id))
	}
	clone := *t
	clone.Supertype = supertype
	return m.putType(ws, &clone)
}

// SetValueType buffers a value-type assignment on an attribute type.
func (m *Manager) SetValueType(ws *snapshot.WriteSnapshot, id encoding.TypeID, vt ValueType) error {
	t, ok := m.cache.Load().Get(id)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", id))
	}
	if t.Kind != KindAttribute {
		return vterr.New(vterr.CodeCapabilityViolation, "value type only applies to attribute types")
	}
	clone := *t
	clone.ValueType = vt
	return m.putType(ws, &clone)
}

// SetCapability buffers adding (or replacing) an owns/plays/relates edge
// declared on source.
func (m *Manager) SetCapability(ws *snapshot.WriteSnapshot, source encoding.TypeID, cap Capability) error {
	t, ok := m.cache.Load().Get(source)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", source))
	}
	clone := *t
	clone.Capabilities = append(append([]Capability(nil), t.Capabilities...), cap)
	return m.putType(ws, &clone)
}

// UnsetCapability buffers removal of every capability of kind targeting
// target, declared directly on source.
func (m *Manager) UnsetCapability(ws *snapshot.WriteSnapshot, source encoding.TypeID, kind CapabilityKind, target encoding.TypeID) error {
	t, ok := m.cache.Load().Get(source)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", source))
	}
	clone := *t
	clone.Capabilities = nil
	for _, c := range t.Capabilities {
		if c.Kind == kind && c.Target == target {
			continue
		}
		clone.Capabilities = append(clone.Capabilities, c)
	}
	return m.putType(ws, &clone)
}

// SetAnnotation buffers adding an annotation to id's own declared set.
func (m *Manager) SetAnnotation(ws *snapshot.WriteSnapshot, id encoding.TypeID, ann Annotation) error {
	t, ok := m.cache.Load().Get(id)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", id))
	}
	clone := *t
	clone.Annotations = append(append([]Annotation(nil), t.Annotations...), ann)
	return m.putType(ws, &clone)
}

// UnsetAnnotation buffers removal of every annotation named name from
// id's own declared set.
func (m *Manager) UnsetAnnotation(ws *snapshot.WriteSnapshot, id encoding.TypeID, name string) error {
	t, ok := m.cache.Load().Get(id)
	if !ok {
		return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("type %d not found", id))
	}
	clone := *t
	clone.Annotations = nil
	for _, a := range t.Annotations {
		if a.Name == name {
			continue
		}
		clone.Annotations = append(clone.Annotations, a)
	}
	return m.putType(ws, &clone)
}

// LookupByLabel resolves a type by its fully-scoped label from the
// currently published cache.
func (m *Manager) LookupByLabel(label Label) (*Type, bool) {
	return m.cache.Load().GetByLabel(label)
}

// SubtypesTransitive enumerates every transitive subtype of id,
// including id itself.
func (m *Manager) SubtypesTransitive(id encoding.TypeID) []encoding.TypeID {
	return m.cache.Load().Subtypes(id)
}

// Rebuild re-scans the type keyspace under ws's committed view and
// publishes the resulting cache; called by the database layer
// immediately after a successful schema commit.
func (m *Manager) Rebuild(ws *snapshot.WriteSnapshot) error {
	return m.rebuild(ws)
}

func (m *Manager) putType(ws *snapshot.WriteSnapshot, t *Type) error {
	data, err := encodeType(t)
	if err != nil {
		return vterr.Wrap(vterr.CodeCapabilityViolation, err, "encode type %d", t.ID)
	}
	ws.Buffer(typeKeyspace).Put(encoding.TypeVertex{TypeID: t.ID}.Encode(), data)
	return nil
}
