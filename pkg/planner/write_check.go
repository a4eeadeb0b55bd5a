package planner

import (
	"fmt"

	"github.com/vertexdb/vertexdb/pkg/concept/typesystem"
	"github.com/vertexdb/vertexdb/pkg/encoding"
	"github.com/vertexdb/vertexdb/pkg/inference"
	"github.com/vertexdb/vertexdb/pkg/ir"
	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// ValidateWriteStage applies the coarse write-type check described by
// spec.md §9: admissibility is tested once over the cartesian product of
// each variable's annotated candidate type set, not refined per output
// row. A write stage is rejected only when no combination in that product
// is admissible at all; a stage with any admissible combination passes,
// and the executor does not re-check admissibility against the concrete
// types it resolves per row.
func ValidateWriteStage(ws ir.WriteStage, vars *ir.VariableRegistry, ta *inference.TypeAnnotations, cache *typesystem.Cache) error {
	for _, c := range ws.Constraints {
		switch c.Kind {
		case ir.ConstraintHas:
			owners := ta.Candidates(c.Variable)
			attrs := ta.Candidates(c.Attribute)
			if !anyOwnsAdmissible(cache, owners, attrs) {
				return vterr.New(vterr.CodeCapabilityViolation, fmt.Sprintf(
					"no candidate type of $%s can own any candidate type of $%s", vars.Name(c.Variable), vars.Name(c.Attribute)))
			}
		case ir.ConstraintLinks:
			relations := ta.Candidates(c.Relation)
			for _, rp := range c.RolePlayers {
				players := ta.Candidates(rp.Player)
				if !anyRelatesPlaysAdmissible(cache, relations, players) {
					return vterr.New(vterr.CodeCapabilityViolation, fmt.Sprintf(
						"no candidate type of $%s can play a role related by any candidate type of $%s",
						vars.Name(rp.Player), vars.Name(c.Relation)))
				}
			}
		}
	}
	return nil
}

func anyOwnsAdmissible(cache *typesystem.Cache, owners, attrs inference.TypeSet) bool {
	if len(owners) == 0 || len(attrs) == 0 {
		return false
	}
	for owner := range owners {
		for _, cap := range cache.CapabilitiesOf(owner, typesystem.CapabilityOwns) {
			for _, target := range cache.Subtypes(cap.Target) {
				if attrs[target] {
					return true
				}
			}
		}
	}
	return false
}

func anyRelatesPlaysAdmissible(cache *typesystem.Cache, relations, players inference.TypeSet) bool {
	if len(relations) == 0 || len(players) == 0 {
		return false
	}
	roles := make(map[encoding.TypeID]bool)
	for relation := range relations {
		for _, cap := range cache.CapabilitiesOf(relation, typesystem.CapabilityRelates) {
			for _, target := range cache.Subtypes(cap.Target) {
				roles[target] = true
			}
		}
	}
	for player := range players {
		for _, cap := range cache.CapabilitiesOf(player, typesystem.CapabilityPlays) {
			for _, target := range cache.Subtypes(cap.Target) {
				if roles[target] {
					return true
				}
			}
		}
	}
	return false
}

// CompileWrite lowers a write stage into its straight-line instruction
// program: insert/update/delete have no search, so this is a direct
// wrap rather than a planning search.
func CompileWrite(ws ir.WriteStage) *WriteExecutable {
	return &WriteExecutable{Kind: ws.Kind, Instructions: ws.Constraints, DeleteRoles: ws.DeleteRoles}
}
