package inference

import (
	"fmt"

	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// maxFixpointPasses bounds the propagation loop. Each pass only ever
// shrinks a finite number of finite sets, so it always terminates well
// before this; the cap exists purely as a defensive backstop against a
// propagation bug turning into an infinite loop.
const maxFixpointPasses = 64

// Infer builds a TypeAnnotations for block by seeding every variable's
// permissive candidate set from its declared category and any explicit
// Isa/Label/Kind constraint, then repeatedly narrowing along Has/Links/Isa
// edges until no set changes.
func Infer(block *ir.Block, cache *typesystem.Cache) (*TypeAnnotations, error) {
	ta := newTypeAnnotations()

	for v := 0; v < block.Variables.Len(); v++ {
		seedDefault(ta, block.Variables, ir.Variable(v), cache)
	}
	if err := seedExplicit(ta, block.Variables, &block.Conjunction, cache); err != nil {
		return nil, err
	}

	for pass := 0; pass < maxFixpointPasses; pass++ {
		changed, err := propagate(ta, &block.Conjunction, cache)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}
	}

	for v, set := range ta.Variables {
		if len(set) == 0 && block.Variables.Category(v) != ir.CategoryValue {
			ta.Unsatisfiable = true
			break
		}
	}

	return ta, nil
}

// seedDefault assigns v the permissive set implied by its category alone:
// every type of an appropriate kind. Value-category variables carry no
// type set.
func seedDefault(ta *TypeAnnotations, vars *ir.VariableRegistry, v ir.Variable, cache *typesystem.Cache) {
	switch vars.Category(v) {
	case ir.CategoryThing:
		ta.Variables[v] = union(
			newTypeSet(cache.AllOfKind(typesystem.KindEntity)...),
			newTypeSet(cache.AllOfKind(typesystem.KindRelation)...),
			newTypeSet(cache.AllOfKind(typesystem.KindAttribute)...),
		)
	case ir.CategoryType:
		ta.Variables[v] = union(
			newTypeSet(cache.AllOfKind(typesystem.KindEntity)...),
			newTypeSet(cache.AllOfKind(typesystem.KindRelation)...),
			newTypeSet(cache.AllOfKind(typesystem.KindAttribute)...),
			newTypeSet(cache.AllOfKind(typesystem.KindRole)...),
		)
	}
}

// seedExplicit narrows variables using constraints whose admissible set
// can be resolved directly from the schema without depending on any other
// variable's candidate set: literal type-name references, Label, and Kind
// constraints. It recurses into nested patterns so every variable
// appearing anywhere in the block gets its explicit seed applied.
func seedExplicit(ta *TypeAnnotations, vars *ir.VariableRegistry, conj *ir.Conjunction, cache *typesystem.Cache) error {
	for _, c := range conj.Constraints {
		switch c.Kind {
		case ir.ConstraintIsa, ir.ConstraintSub, ir.ConstraintOwns, ir.ConstraintPlays, ir.ConstraintRelates:
			if err := seedLiteralTypeRef(ta, vars, c.Type, cache); err != nil {
				return err
			}
		case ir.ConstraintLabel:
			t, ok := cache.GetByLabel(typesystem.Label{Name: c.Label})
			if !ok {
				return vterr.New(vterr.CodeLabelNotResolved, fmt.Sprintf("label %q does not resolve to a schema type", c.Label))
			}
			ta.Variables[c.Variable] = newTypeSet(t.ID)
		case ir.ConstraintKindOf:
			ta.Variables[c.Variable] = newTypeSet(cache.AllOfKind(typesystem.Kind(c.KindName))...)
		}
	}
	for _, nested := range conj.Nested {
		switch nested.Kind {
		case ir.PatternDisjunction:
			for bi := range nested.Branches {
				if err := seedExplicit(ta, vars, &nested.Branches[bi], cache); err != nil {
					return err
				}
			}
		case ir.PatternNegation, ir.PatternOptional:
			if nested.Child != nil {
				if err := seedExplicit(ta, vars, nested.Child, cache); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// seedLiteralTypeRef handles the common surface-syntax shortcut of naming
// a type directly (`isa person`) rather than through a bound, separately
// matched type variable: if v's declared name resolves to a schema label,
// its candidate set is pinned to that single type; otherwise it is left
// for the permissive default seed and later Label-constraint narrowing.
func seedLiteralTypeRef(ta *TypeAnnotations, vars *ir.VariableRegistry, v ir.Variable, cache *typesystem.Cache) error {
	if v < 0 {
		return nil
	}
	name := vars.Name(v)
	if t, ok := cache.GetByLabel(typesystem.Label{Name: name}); ok {
		ta.Variables[v] = newTypeSet(t.ID)
	}
	return nil
}

// propagate runs one pass of edge narrowing over conj's own constraints,
// then recurses into nested patterns, returning whether any variable's
// candidate set changed.
func propagate(ta *TypeAnnotations, conj *ir.Conjunction, cache *typesystem.Cache) (bool, error) {
	changed := false

	for _, c := range conj.Constraints {
		switch c.Kind {
		case ir.ConstraintIsa:
			if propagateIsa(ta, c, cache) {
				changed = true
			}
		case ir.ConstraintHas:
			if propagateHas(ta, c, cache) {
				changed = true
			}
		case ir.ConstraintLinks:
			if propagateLinks(ta, c, cache) {
				changed = true
			}
		}
	}

	for i := range conj.Nested {
		nested := &conj.Nested[i]
		switch nested.Kind {
		case ir.PatternDisjunction:
			// Each branch narrows from an independent copy of the current
			// sets; the outer set becomes the union of what survives in
			// each branch, per spec: disjunction has no narrowing effect
			// beyond the union of its branches.
			branchResults := make([]map[ir.Variable]TypeSet, len(nested.Branches))
			for bi := range nested.Branches {
				branchTa := &TypeAnnotations{Variables: cloneVariables(ta.Variables)}
				for pass := 0; pass < maxFixpointPasses; pass++ {
					bc, err := propagate(branchTa, &nested.Branches[bi], cache)
					if err != nil {
						return false, err
					}
					if !bc {
						break
					}
				}
				branchResults[bi] = branchTa.Variables
				ta.Edges = append(ta.Edges, branchTa.Edges...)
			}
			for v := range ta.Variables {
				var sets []TypeSet
				touched := false
				for _, br := range branchResults {
					if s, ok := br[v]; ok {
						sets = append(sets, s)
						touched = true
					}
				}
				if !touched {
					continue
				}
				merged := union(sets...)
				if ta.Variables[v].intersect(merged) {
					changed = true
				}
			}
		case ir.PatternNegation, ir.PatternOptional:
			// No narrowing effect on outer variables; run propagation on a
			// scratch copy purely so constraints inside still resolve
			// against a sane (non-empty) candidate set for diagnostics.
			if nested.Child != nil {
				scratch := &TypeAnnotations{Variables: cloneVariables(ta.Variables)}
				if _, err := propagate(scratch, nested.Child, cache); err != nil {
					return false, err
				}
			}
		}
	}

	return changed, nil
}

func cloneVariables(vars map[ir.Variable]TypeSet) map[ir.Variable]TypeSet {
	out := make(map[ir.Variable]TypeSet, len(vars))
	for v, s := range vars {
		out[v] = s.clone()
	}
	return out
}

func propagateIsa(ta *TypeAnnotations, c ir.Constraint, cache *typesystem.Cache) bool {
	typeSet := ta.Variables[c.Type]
	instanceSet := ta.Variables[c.Variable]
	if typeSet == nil || instanceSet == nil {
		return false
	}

	var admissible []encoding.TypeID
	for t := range typeSet {
		admissible = append(admissible, cache.Subtypes(t)...)
	}
	return instanceSet.intersect(newTypeSet(admissible...))
}

func propagateHas(ta *TypeAnnotations, c ir.Constraint, cache *typesystem.Cache) bool {
	ownerSet := ta.Variables[c.Variable]
	attrSet := ta.Variables[c.Attribute]
	if ownerSet == nil || attrSet == nil {
		return false
	}

	edge := newEdge(EdgeOwns, c.Variable, c.Attribute)
	for owner := range ownerSet {
		for _, attr := range ownsAdmissible(cache, owner) {
			if attrSet[attr] {
				edge.add(owner, attr)
			}
		}
	}
	ta.Edges = append(ta.Edges, edge)

	changed := false
	if ownerSet.intersect(edgeLeftKeys(edge)) {
		changed = true
	}
	if attrSet.intersect(edgeRightKeys(edge)) {
		changed = true
	}
	return changed
}

func propagateLinks(ta *TypeAnnotations, c ir.Constraint, cache *typesystem.Cache) bool {
	relationSet := ta.Variables[c.Relation]
	if relationSet == nil {
		return false
	}

	changed := false
	for _, rp := range c.RolePlayers {
		playerSet := ta.Variables[rp.Player]
		if playerSet == nil {
			continue
		}

		relatesEdge := newEdge(EdgeRelates, c.Relation, rp.Role)
		playsEdge := newEdge(EdgePlays, rp.Role, rp.Player)

		roleSet := TypeSet(nil)
		if rp.Role >= 0 {
			roleSet = ta.Variables[rp.Role]
		}

		admissibleRoles := make(TypeSet)
		for relation := range relationSet {
			for _, role := range relatesAdmissible(cache, relation) {
				if roleSet != nil && !roleSet[role] {
					continue
				}
				relatesEdge.add(relation, role)
				admissibleRoles[role] = true
			}
		}
		ta.Edges = append(ta.Edges, relatesEdge)

		admissiblePlayers := make(TypeSet)
		finalRoles := make(TypeSet)
		for player := range playerSet {
			for _, role := range playsAdmissible(cache, player) {
				if !admissibleRoles[role] {
					continue
				}
				playsEdge.add(role, player)
				admissiblePlayers[player] = true
				finalRoles[role] = true
			}
		}
		ta.Edges = append(ta.Edges, playsEdge)

		if relationSet.intersect(relatesSourceKeys(relatesEdge, finalRoles)) {
			changed = true
		}
		if playerSet.intersect(admissiblePlayers) {
			changed = true
		}
		if rp.Role >= 0 && ta.Variables[rp.Role] != nil {
			if ta.Variables[rp.Role].intersect(finalRoles) {
				changed = true
			}
		}
	}
	return changed
}

func edgeLeftKeys(e *Edge) TypeSet {
	out := make(TypeSet, len(e.LeftToRight))
	for k := range e.LeftToRight {
		out[k] = true
	}
	return out
}

func edgeRightKeys(e *Edge) TypeSet {
	out := make(TypeSet, len(e.RightToLeft))
	for k := range e.RightToLeft {
		out[k] = true
	}
	return out
}

// relatesSourceKeys returns the relation types in e whose role lands in
// finalRoles, i.e. the relation's role choice survived the player-side
// narrowing too.
func relatesSourceKeys(e *Edge, finalRoles TypeSet) TypeSet {
	out := make(TypeSet)
	for relation, roles := range e.LeftToRight {
		for role := range roles {
			if finalRoles[role] {
				out[relation] = true
				break
			}
		}
	}
	return out
}

func ownsAdmissible(cache *typesystem.Cache, owner encoding.TypeID) []encoding.TypeID {
	var out []encoding.TypeID
	for _, cap := range cache.CapabilitiesOf(owner, typesystem.CapabilityOwns) {
		out = append(out, cache.Subtypes(cap.Target)...)
	}
	return out
}

func playsAdmissible(cache *typesystem.Cache, player encoding.TypeID) []encoding.TypeID {
	var out []encoding.TypeID
	for _, cap := range cache.CapabilitiesOf(player, typesystem.CapabilityPlays) {
		out = append(out, cache.Subtypes(cap.Target)...)
	}
	return out
}

func relatesAdmissible(cache *typesystem.Cache, relation encoding.TypeID) []encoding.TypeID {
	var out []encoding.TypeID
	for _, cap := range cache.CapabilitiesOf(relation, typesystem.CapabilityRelates) {
		out = append(out, cache.Subtypes(cap.Target)...)
	}
	return out
}
