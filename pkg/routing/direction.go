package routing

import "turnrouter/pkg/turngraph"

// direction bundles the forward/backward asymmetry of a settle step:
// which direction bit admits an edge, the argument order of penalty
// lookups, the in/out assignment of a meeting point, and which degree
// bounds the slot scans. Everything else in the step is shared.
type direction struct {
	forward bool
}

var (
	dirForward  = direction{forward: true}
	dirBackward = direction{forward: false}
)

// edgeAllowed reports whether an edge is traversable in this direction.
func (d direction) edgeAllowed(fwd, bwd bool) bool {
	if d.forward {
		return fwd
	}
	return bwd
}

// stallEdgeAllowed is the opposite direction's edgeAllowed: the stall
// test asks whether a settled neighbour could have reached us, which
// traverses the edge the other way.
func (d direction) stallEdgeAllowed(fwd, bwd bool) bool {
	if d.forward {
		return bwd
	}
	return fwd
}

// penalty looks up the turn cost at n between the state's slot o1 and
// the edge slot o2. The backward search walks maneuvers in reverse, so
// it swaps the in/out arguments.
func (d direction) penalty(g turngraph.Graph, n uint32, o1, o2 uint8) uint8 {
	if d.forward {
		return g.GetPenaltyData(n, o1, o2)
	}
	return g.GetPenaltyData(n, o2, o1)
}

// middle assembles a meeting point with in/out relative to the forward
// search regardless of which side discovered it.
func (d direction) middle(n, settled, opposite uint32) Middle {
	if d.forward {
		return Middle{Node: n, In: settled, Out: opposite}
	}
	return Middle{Node: n, In: opposite, Out: settled}
}

// settleDegree bounds the meeting-check slot scan at a settled node.
func (d direction) settleDegree(g turngraph.Graph, n uint32) uint32 {
	if d.forward {
		return g.GetOriginalOutDegree(n)
	}
	return g.GetOriginalInDegree(n)
}

// stallDegree bounds the stall-test slot scan at a relaxation target.
func (d direction) stallDegree(g turngraph.Graph, n uint32) uint32 {
	if d.forward {
		return g.GetOriginalInDegree(n)
	}
	return g.GetOriginalOutDegree(n)
}
