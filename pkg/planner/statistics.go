// Package planner turns an annotated IR block into an ordered sequence of
// ExecutionSteps: a cost-based variable-ordering search over the
// constraint hypergraph, followed by lowering to positional variables.
package planner

import "github.com/vertexdb/vertexdb/pkg/encoding"

// CapabilityEdge identifies one (source-type, target-type) pair a
// capability-shaped constraint (has/plays/relates) can traverse.
type CapabilityEdge struct {
	Source encoding.TypeID
	Target encoding.TypeID
}

// Statistics holds the per-type instance counts and per-capability edge
// counts the cost estimator reads; the planner never touches storage
// itself, so these are passed in. pkg/database plans every query with an
// empty Statistics, so its plans are costed from candidate-set sizes.
type Statistics struct {
	TypeInstances  map[encoding.TypeID]uint64
	CapabilityEdge map[CapabilityEdge]uint64
}

// NewStatistics returns an empty Statistics with no instance or edge
// counts recorded.
func NewStatistics() *Statistics {
	return &Statistics{
		TypeInstances:  make(map[encoding.TypeID]uint64),
		CapabilityEdge: make(map[CapabilityEdge]uint64),
	}
}

// InstanceCount returns the estimated number of instances of t, treating
// an absent entry as zero rather than unknown: a type with no recorded
// instances contributes no rows to a scan.
func (s *Statistics) InstanceCount(t encoding.TypeID) uint64 {
	return s.TypeInstances[t]
}

// EdgeCount returns the estimated number of edges from source to target
// under some capability (has/plays/relates).
func (s *Statistics) EdgeCount(source, target encoding.TypeID) uint64 {
	return s.CapabilityEdge[CapabilityEdge{Source: source, Target: target}]
}

// RecordInstance increments t's instance count by one; used while
// building Statistics from a full thing scan.
func (s *Statistics) RecordInstance(t encoding.TypeID) {
	s.TypeInstances[t]++
}

// RecordEdge increments the (source, target) edge count by one.
func (s *Statistics) RecordEdge(source, target encoding.TypeID) {
	s.CapabilityEdge[CapabilityEdge{Source: source, Target: target}]++
}
