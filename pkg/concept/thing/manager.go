package thing

import (
	"encoding/binary"

	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/snapshot"
)

// Reader is the read-only surface both ReadSnapshot and WriteSnapshot
// satisfy; iterators are written once against this interface and work
// the same inside read and write transactions.
type Reader interface {
	Get(keyspace string, key []byte) ([]byte, bool, error)
	ScanPrefix(keyspace string, prefix []byte, fn func(snapshot.MergedEntry) bool) error
}

// Manager creates and queries entity, relation, and attribute instances.
type Manager struct {
	generator *ObjectIDGenerator
}

// NewManager constructs a thing Manager over an already-loaded id
// generator.
func NewManager(generator *ObjectIDGenerator) *Manager {
	return &Manager{generator: generator}
}

// CreateEntity allocates a fresh entity instance of typeID and buffers
// its vertex write.
func (m *Manager) CreateEntity(ws *snapshot.WriteSnapshot, typeID encoding.TypeID) (Object, error) {
	return m.createObject(ws, encoding.PrefixEntity, typeID)
}

// CreateRelation allocates a fresh relation instance of typeID and
// buffers its vertex write.
func (m *Manager) CreateRelation(ws *snapshot.WriteSnapshot, typeID encoding.TypeID) (Object, error) {
	return m.createObject(ws, encoding.PrefixRelation, typeID)
}

func (m *Manager) createObject(ws *snapshot.WriteSnapshot, prefix encoding.Prefix, typeID encoding.TypeID) (Object, error) {
	objID, err := m.generator.Next(typeID)
	if err != nil {
		return Object{}, err
	}
	obj := Object{Vertex: encoding.ObjectVertex{Prefix: prefix, TypeID: typeID, ObjectID: objID}}
	ws.Buffer(thingKeyspace).Insert(obj.Vertex.Encode(), nil)
	return obj, nil
}

// PutAttribute returns the canonical attribute for (typeID, value),
// creating and buffering it if no attribute with that value exists yet.
// Attribute creation is idempotent: concurrent PutAttribute calls for
// the same value converge on the same AttributeID regardless of which
// one wins the commit race, since the id is derived from the value
// itself rather than allocated.
func (m *Manager) PutAttribute(ws *snapshot.WriteSnapshot, typeID encoding.TypeID, value Value) (Attribute, error) {
	id := attributeIDForValue(value)
	attr := Attribute{TypeID: typeID, ID: id, Value: value}

	vertexKey := attr.Vertex().Encode()
	if _, ok, err := ws.Get(thingKeyspace, vertexKey); err != nil {
		return Attribute{}, err
	} else if ok {
		return attr, nil
	}

	ws.Buffer(thingKeyspace).Put(vertexKey, nil)
	if needsValueTable(value) {
		ws.Buffer(valueTableKeyspace).Put(encoding.ValueKey(typeID, id), canonicalBytes(value))
	}
	return attr, nil
}

// ValueTableBytes looks up the canonical out-of-line bytes for a
// variable-length attribute value (string, struct) reached via an edge
// scan, which yields only the attribute's vertex and not its decoded
// value. Fixed-width kinds have nothing stored here; callers only need
// this for ValueString/ValueStruct attribute types.
func (m *Manager) ValueTableBytes(r Reader, typeID encoding.TypeID, id encoding.AttributeID) ([]byte, error) {
	value, _, err := r.Get(valueTableKeyspace, encoding.ValueKey(typeID, id))
	return value, err
}

// GetAttributeWithValue performs the canonical value lookup without
// creating the attribute if absent.
func (m *Manager) GetAttributeWithValue(r Reader, typeID encoding.TypeID, value Value) (Attribute, bool, error) {
	id := attributeIDForValue(value)
	attr := Attribute{TypeID: typeID, ID: id, Value: value}
	vertexKey := attr.Vertex().Encode()
	_, ok, err := r.Get(thingKeyspace, vertexKey)
	if err != nil || !ok {
		return Attribute{}, false, err
	}
	return attr, true, nil
}

// SetHas buffers an owner→attribute Has edge in both directions.
func (m *Manager) SetHas(ws *snapshot.WriteSnapshot, owner Object, attribute Attribute) {
	fwd := encoding.HasForwardKey(owner.Vertex, attribute.Vertex())
	bwd := encoding.HasBackwardKey(attribute.Vertex(), owner.Vertex)
	ws.Buffer(edgeKeyspace).Put(fwd, nil)
	ws.Buffer(edgeKeyspace).Put(bwd, nil)
}

// UnsetHas buffers removal of an owner→attribute Has edge.
func (m *Manager) UnsetHas(ws *snapshot.WriteSnapshot, owner Object, attribute Attribute) {
	fwd := encoding.HasForwardKey(owner.Vertex, attribute.Vertex())
	bwd := encoding.HasBackwardKey(attribute.Vertex(), owner.Vertex)
	ws.Buffer(edgeKeyspace).Delete(fwd)
	ws.Buffer(edgeKeyspace).Delete(bwd)
}

// SetLinks buffers a relation→(role, player) Links edge in both
// directions.
func (m *Manager) SetLinks(ws *snapshot.WriteSnapshot, relation Object, role encoding.TypeID, player Object) {
	fwd := encoding.LinksForwardKey(relation.Vertex, role, player.Vertex)
	bwd := encoding.LinksBackwardKey(player.Vertex, role, relation.Vertex)
	ws.Buffer(edgeKeyspace).Put(fwd, nil)
	ws.Buffer(edgeKeyspace).Put(bwd, nil)
}

// UnsetLinks buffers removal of a relation→(role, player) Links edge.
func (m *Manager) UnsetLinks(ws *snapshot.WriteSnapshot, relation Object, role encoding.TypeID, player Object) {
	fwd := encoding.LinksForwardKey(relation.Vertex, role, player.Vertex)
	bwd := encoding.LinksBackwardKey(player.Vertex, role, relation.Vertex)
	ws.Buffer(edgeKeyspace).Delete(fwd)
	ws.Buffer(edgeKeyspace).Delete(bwd)
}

// HasEdgeExists reports whether an owner→attribute Has edge is present,
// used to verify an already-bound (owner, attribute) pair rather than
// search for one.
func (m *Manager) HasEdgeExists(r Reader, owner Object, attribute Attribute) (bool, error) {
	_, ok, err := r.Get(edgeKeyspace, encoding.HasForwardKey(owner.Vertex, attribute.Vertex()))
	return ok, err
}

// LinksEdgeExists reports whether a relation→(role, player) Links edge is
// present, used to verify an already-bound triple rather than search for
// one.
func (m *Manager) LinksEdgeExists(r Reader, relation Object, role encoding.TypeID, player Object) (bool, error) {
	_, ok, err := r.Get(edgeKeyspace, encoding.LinksForwardKey(relation.Vertex, role, player.Vertex))
	return ok, err
}

// GetEntitiesIn iterates every entity instance of typeID.
func (m *Manager) GetEntitiesIn(r Reader, typeID encoding.TypeID, fn func(Object) bool) error {
	return m.scanObjects(r, encoding.PrefixEntity, typeID, fn)
}

// GetRelationsIn iterates every relation instance of typeID.
func (m *Manager) GetRelationsIn(r Reader, typeID encoding.TypeID, fn func(Object) bool) error {
	return m.scanObjects(r, encoding.PrefixRelation, typeID, fn)
}

// GetObjectsIn iterates every entity and relation instance of typeID,
// entities first.
func (m *Manager) GetObjectsIn(r Reader, typeID encoding.TypeID, fn func(Object) bool) error {
	keepGoing := true
	if err := m.GetEntitiesIn(r, typeID, func(o Object) bool { keepGoing = fn(o); return keepGoing }); err != nil {
		return err
	}
	if !keepGoing {
		return nil
	}
	return m.GetRelationsIn(r, typeID, fn)
}

// GetAttributesIn iterates every attribute instance of typeID.
func (m *Manager) GetAttributesIn(r Reader, typeID encoding.TypeID, fn func(Attribute, []byte) bool) error {
	prefix := encoding.PrefixTypeAndType(encoding.PrefixAttribute, typeID)
	return r.ScanPrefix(thingKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		vertex, err := encoding.DecodeObjectVertex(e.Key)
		if err != nil {
			return true
		}
		return fn(Attribute{TypeID: typeID, ID: encoding.AttributeID{ID: uint64(vertex.ObjectID)}}, e.Value)
	})
}

func (m *Manager) scanObjects(r Reader, prefix encoding.Prefix, typeID encoding.TypeID, fn func(Object) bool) error {
	key := encoding.PrefixTypeAndType(prefix, typeID)
	return r.ScanPrefix(thingKeyspace, key, func(e snapshot.MergedEntry) bool {
		vertex, err := encoding.DecodeObjectVertex(e.Key)
		if err != nil {
			return true
		}
		return fn(Object{Vertex: vertex})
	})
}

// GetHasFromOwnerTypeRangeUnordered iterates every Has edge whose owner's
// type lies in [lowType, highType], across every owner instance of those
// types, unordered with respect to owner.
func (m *Manager) GetHasFromOwnerTypeRangeUnordered(r Reader, lowType, highType encoding.TypeID, fn func(owner, attribute encoding.ObjectVertex) bool) error {
	prefix := []byte{byte(encoding.PrefixHasForward)}
	return r.ScanPrefix(edgeKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		if len(e.Key) < 1+2*encoding.ObjectVertexLength {
			return true
		}
		ownerBytes := e.Key[1 : 1+encoding.ObjectVertexLength]
		owner, err := encoding.DecodeObjectVertex(ownerBytes)
		if err != nil {
			return true
		}
		if owner.TypeID < lowType || owner.TypeID > highType {
			return true
		}
		attrBytes := e.Key[1+encoding.ObjectVertexLength : 1+2*encoding.ObjectVertexLength]
		attr, err := encoding.DecodeObjectVertex(attrBytes)
		if err != nil {
			return true
		}
		return fn(owner, attr)
	})
}

// AttributesOfOwner iterates the attributes an owner has, across every
// attribute type.
func (m *Manager) AttributesOfOwner(r Reader, owner Object, fn func(attribute encoding.ObjectVertex) bool) error {
	prefix := append([]byte{byte(encoding.PrefixHasForward)}, owner.Vertex.Encode()...)
	return r.ScanPrefix(edgeKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		if len(e.Key) < len(prefix)+encoding.ObjectVertexLength {
			return true
		}
		attr, err := encoding.DecodeObjectVertex(e.Key[len(prefix):])
		if err != nil {
			return true
		}
		return fn(attr)
	})
}

// OwnersOfAttribute iterates the owners of an attribute instance, the
// reverse of AttributesOfOwner, via the backward Has index.
func (m *Manager) OwnersOfAttribute(r Reader, attribute Attribute, fn func(owner encoding.ObjectVertex) bool) error {
	prefix := append([]byte{byte(encoding.PrefixHasBackward)}, attribute.Vertex().Encode()...)
	return r.ScanPrefix(edgeKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		if len(e.Key) < len(prefix)+encoding.ObjectVertexLength {
			return true
		}
		owner, err := encoding.DecodeObjectVertex(e.Key[len(prefix):])
		if err != nil {
			return true
		}
		return fn(owner)
	})
}

// RelationsOfPlayer iterates the (role, relation) pairs a player appears
// in, the reverse of PlayersOfRelation, via the backward Links index.
func (m *Manager) RelationsOfPlayer(r Reader, player Object, fn func(role encoding.TypeID, relation encoding.ObjectVertex) bool) error {
	prefix := append([]byte{byte(encoding.PrefixLinksBackward)}, player.Vertex.Encode()...)
	return r.ScanPrefix(edgeKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		rest := e.Key[len(prefix):]
		if len(rest) < 2+encoding.ObjectVertexLength {
			return true
		}
		role := encoding.TypeID(binary.BigEndian.Uint16(rest[:2]))
		relation, err := encoding.DecodeObjectVertex(rest[2:])
		if err != nil {
			return true
		}
		return fn(role, relation)
	})
}

// PlayersOfRelation iterates a relation's (role, player) pairs.
func (m *Manager) PlayersOfRelation(r Reader, relation Object, fn func(role encoding.TypeID, player encoding.ObjectVertex) bool) error {
	prefix := append([]byte{byte(encoding.PrefixLinksForward)}, relation.Vertex.Encode()...)
	return r.ScanPrefix(edgeKeyspace, prefix, func(e snapshot.MergedEntry) bool {
		rest := e.Key[len(prefix):]
		if len(rest) < 2+encoding.ObjectVertexLength {
			return true
		}
		role := encoding.TypeID(binary.BigEndian.Uint16(rest[:2]))
		player, err := encoding.DecodeObjectVertex(rest[2:])
		if err != nil {
			return true
		}
		return fn(role, player)
	})
}

// Delete removes an object's own vertex and cascades to every edge
// incident on it, discovered by scanning the edge entries keyed by the
// object itself so neither caller needs to know the object's neighbors
// up front. Each edge's entry in the opposite direction is removed too.
func (m *Manager) Delete(ws *snapshot.WriteSnapshot, obj Object) error {
	ws.Buffer(thingKeyspace).Delete(obj.Vertex.Encode())

	fwdHasPrefix := append([]byte{byte(encoding.PrefixHasForward)}, obj.Vertex.Encode()...)
	var toDelete [][]byte
	if err := ws.ScanPrefix(edgeKeyspace, fwdHasPrefix, func(e snapshot.MergedEntry) bool {
		toDelete = append(toDelete, append([]byte(nil), e.Key...))
		if attr, err := encoding.DecodeObjectVertex(e.Key[len(fwdHasPrefix):]); err == nil {
			toDelete = append(toDelete, encoding.HasBackwardKey(attr, obj.Vertex))
		}
		return true
	}); err != nil {
		return err
	}

	bwdHasPrefix := append([]byte{byte(encoding.PrefixHasBackward)}, obj.Vertex.Encode()...)
	if err := ws.ScanPrefix(edgeKeyspace, bwdHasPrefix, func(e snapshot.MergedEntry) bool {
		toDelete = append(toDelete, append([]byte(nil), e.Key...))
		return true
	}); err != nil {
		return err
	}

	fwdLinksPrefix := append([]byte{byte(encoding.PrefixLinksForward)}, obj.Vertex.Encode()...)
	if err := ws.ScanPrefix(edgeKeyspace, fwdLinksPrefix, func(e snapshot.MergedEntry) bool {
		toDelete = append(toDelete, append([]byte(nil), e.Key...))
		if rest := e.Key[len(fwdLinksPrefix):]; len(rest) == 2+encoding.ObjectVertexLength {
			if player, err := encoding.DecodeObjectVertex(rest[2:]); err == nil {
				toDelete = append(toDelete, encoding.LinksBackwardKey(player, encoding.TypeID(binary.BigEndian.Uint16(rest[:2])), obj.Vertex))
			}
		}
		return true
	}); err != nil {
		return err
	}

	bwdLinksPrefix := append([]byte{byte(encoding.PrefixLinksBackward)}, obj.Vertex.Encode()...)
	if err := ws.ScanPrefix(edgeKeyspace, bwdLinksPrefix, func(e snapshot.MergedEntry) bool {
		toDelete = append(toDelete, append([]byte(nil), e.Key...))
		if rest := e.Key[len(bwdLinksPrefix):]; len(rest) == 2+encoding.ObjectVertexLength {
			if relation, err := encoding.DecodeObjectVertex(rest[2:]); err == nil {
				toDelete = append(toDelete, encoding.LinksForwardKey(relation, encoding.TypeID(binary.BigEndian.Uint16(rest[:2])), obj.Vertex))
			}
		}
		return true
	}); err != nil {
		return err
	}

	buf := ws.Buffer(edgeKeyspace)
	for _, key := range toDelete {
		buf.Delete(key)
	}
	return nil
}
