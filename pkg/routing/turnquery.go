package routing

import (
	"math"

	"turnrouter/pkg/binheap"
	"turnrouter/pkg/turngraph"
)

// RestrictedTurn mirrors the graph's forbidden-maneuver sentinel.
const RestrictedTurn = turngraph.RestrictedTurn

// NoDistance is returned by BidirSearch/UnidirSearch when no path exists.
const NoDistance = int32(math.MaxInt32)

// noOriginalEdge marks a seed state's missing parent.
const noOriginalEdge = ^uint32(0)

// heapData is the query's per-state payload. A state is an oriented
// original edge: the node it rests at, the slot it arrived through, and
// the parent pointers for path reconstruction.
type heapData struct {
	parentOrig   uint32 // heap key of the predecessor state, noOriginalEdge at seeds
	parentEdge   uint32 // graph edge used to reach this state
	node         uint32
	originalEdge uint8 // slot within node's original-edge block
	stalled      bool
}

type queryHeap = binheap.Heap[heapData]

// Middle is the best known meeting point of the two searches. In and
// Out are oriented-edge keys relative to the forward side.
type Middle struct {
	Node uint32
	In   uint32
	Out  uint32
}

// noMiddle is the Middle sentinel before any meeting is found.
var noMiddle = Middle{Node: ^uint32(0)}

// stallItem is a pending entry of the stall BFS queue.
type stallItem struct {
	node         uint32
	originalEdge uint8
	distance     int32
}

// Path holds a reconstructed route as graph edge chains: Up from the
// source to the meeting point (in reverse), Down from the meeting point
// to the target. Shortcut edges are not expanded here.
type Path struct {
	Up   []uint32
	Down []uint32
}

// TurnQuery answers turn-aware shortest-path queries over a CH turn
// graph. States are oriented original edges, so two heaps keyed by
// original-edge number carry the frontiers. A query instance is not
// safe for concurrent use; run one instance per goroutine over the
// shared read-only graph.
type TurnQuery struct {
	g             turngraph.Graph
	heapForward   *queryHeap
	heapBackward  *queryHeap
	stallQueue    []stallItem
	middle        Middle
	stallOnDemand bool
}

// NewTurnQuery creates a query sized to the graph's original-edge count,
// with stall-on-demand enabled.
func NewTurnQuery(g turngraph.Graph) *TurnQuery {
	return newTurnQuery(g, true)
}

// NewTurnQueryWithoutStalling creates a query that skips the
// stall-on-demand pruning. Slower, but with no stall path it serves as
// a correctness oracle.
func NewTurnQueryWithoutStalling(g turngraph.Graph) *TurnQuery {
	return newTurnQuery(g, false)
}

func newTurnQuery(g turngraph.Graph, stallOnDemand bool) *TurnQuery {
	n := g.GetNumberOfOriginalEdges()
	return &TurnQuery{
		g:             g,
		heapForward:   binheap.NewDense[heapData](n),
		heapBackward:  binheap.NewDense[heapData](n),
		middle:        noMiddle,
		stallOnDemand: stallOnDemand,
	}
}

// Clear resets both heaps and the meeting point. Call between queries.
func (q *TurnQuery) Clear() {
	q.middle = noMiddle
	q.heapForward.Clear()
	q.heapBackward.Clear()
	q.stallQueue = q.stallQueue[:0]
}

// initHeap seeds a heap with the oriented edge (node, node2): every
// non-shortcut edge realizing that traversal, in either storage
// orientation, becomes a seed state at node2.
func (q *TurnQuery) initHeap(heap *queryHeap, node, node2 uint32, dir direction) {
	for edge, edgeEnd := q.g.BeginEdges(node), q.g.EndEdges(node); edge < edgeEnd; edge++ {
		edgeData := q.g.GetEdgeData(edge)
		if !dir.edgeAllowed(edgeData.Forward, edgeData.Backward) || edgeData.Shortcut || q.g.GetTarget(edge) != node2 {
			continue
		}

		local := q.g.GetOriginalEdgeTarget(edge)
		originalEdge := q.g.GetFirstOriginalEdge(node2) + uint32(local)
		data := heapData{parentOrig: noOriginalEdge, parentEdge: edge, node: node2, originalEdge: local}
		weight := int32(edgeData.Distance)
		if !heap.WasInserted(originalEdge) {
			heap.Insert(originalEdge, weight, data)
		} else if weight < heap.GetKey(originalEdge) {
			heap.DecreaseKey(originalEdge, weight)
			heap.SetData(originalEdge, data)
		}
	}

	// Edges stored at node2 pointing back at node realize the same
	// traversal in reverse; their slot at node2 is the source slot.
	for edge, edgeEnd := q.g.BeginEdges(node2), q.g.EndEdges(node2); edge < edgeEnd; edge++ {
		edgeData := q.g.GetEdgeData(edge)
		if !dir.edgeAllowed(edgeData.Backward, edgeData.Forward) || edgeData.Shortcut || q.g.GetTarget(edge) != node {
			continue
		}

		local := q.g.GetOriginalEdgeSource(edge)
		originalEdge := q.g.GetFirstOriginalEdge(node2) + uint32(local)
		data := heapData{parentOrig: noOriginalEdge, parentEdge: edge, node: node2, originalEdge: local}
		weight := int32(edgeData.Distance)
		if !heap.WasInserted(originalEdge) {
			heap.Insert(originalEdge, weight, data)
		} else if weight < heap.GetKey(originalEdge) {
			heap.DecreaseKey(originalEdge, weight)
			heap.SetData(originalEdge, data)
		}
	}
}

// computeStep settles one oriented edge from heapSettle: checks the
// opposite frontier for a meeting, prunes via stall-on-demand, and
// relaxes outgoing edges.
func (q *TurnQuery) computeStep(heapSettle, heapOther *queryHeap, dir direction, targetDistance *int32) uint32 {
	g := q.g
	originalEdge := heapSettle.DeleteMin()
	distance := heapSettle.GetKey(originalEdge)
	// Copy: inserts below may grow the heap's backing storage.
	data := heapSettle.GetData(originalEdge)

	if q.stallOnDemand && data.stalled {
		return originalEdge
	}

	// Meeting check against every opposite-frontier slot at this node.
	{
		deg := dir.settleDegree(g, data.node)
		firstOriginal := g.GetFirstOriginalEdge(data.node)
		for out := uint32(0); out < deg; out++ {
			orig := firstOriginal + out
			if !heapOther.WasInserted(orig) || heapOther.GetData(orig).stalled {
				continue
			}
			penalty := dir.penalty(g, data.node, data.originalEdge, uint8(out))
			if penalty == RestrictedTurn {
				continue
			}
			newDistance := heapOther.GetKey(orig) + int32(penalty) + distance
			if newDistance < *targetDistance {
				q.middle = dir.middle(data.node, originalEdge, orig)
				*targetDistance = newDistance
			}
		}
	}

	// Settled beyond the best known meeting: nothing left on this side
	// can improve the result.
	if distance > *targetDistance {
		heapSettle.DeleteAll()
		return originalEdge
	}

	for edge, edgeEnd := g.BeginEdges(data.node), g.EndEdges(data.node); edge < edgeEnd; edge++ {
		edgeData := g.GetEdgeData(edge)
		to := g.GetTarget(edge)
		firstOriginalTo := g.GetFirstOriginalEdge(to)
		localTo := g.GetOriginalEdgeTarget(edge)

		if q.stallOnDemand && dir.stallEdgeAllowed(edgeData.Forward, edgeData.Backward) {
			// Does some already-discovered slot at `to` reach this node
			// strictly cheaper through this edge?
			shorterDistance := int32(math.MaxInt32)
			deg := dir.stallDegree(g, to)
			for in := uint32(0); in < deg; in++ {
				orig := firstOriginalTo + in
				if !heapSettle.WasInserted(orig) {
					continue
				}
				penalty := dir.penalty(g, to, uint8(in), localTo)
				if penalty == RestrictedTurn {
					continue
				}
				if cand := heapSettle.GetKey(orig) + int32(penalty) + int32(edgeData.Distance); cand < shorterDistance {
					shorterDistance = cand
				}
			}
			if shorterDistance < distance {
				// Proven sub-optimal: record the cheaper bound, mark
				// stalled, propagate by BFS, and stop relaxing.
				heapSettle.SetRemovedKey(originalEdge, shorterDistance)
				stalledData := heapSettle.GetData(originalEdge)
				stalledData.stalled = true
				heapSettle.SetData(originalEdge, stalledData)

				q.stallQueue = append(q.stallQueue, stallItem{node: data.node, originalEdge: data.originalEdge, distance: shorterDistance})
				q.stallBFS(heapSettle, dir)
				break
			}
		}

		if dir.edgeAllowed(edgeData.Forward, edgeData.Backward) {
			penalty := dir.penalty(g, data.node, data.originalEdge, g.GetOriginalEdgeSource(edge))
			if penalty == RestrictedTurn {
				continue
			}

			orig := firstOriginalTo + uint32(localTo)
			toDistance := distance + int32(penalty) + int32(edgeData.Distance)
			toData := heapData{parentOrig: originalEdge, parentEdge: edge, node: to, originalEdge: localTo}

			if !heapSettle.WasInserted(orig) {
				heapSettle.Insert(orig, toDistance, toData)
			} else if toDistance <= heapSettle.GetKey(orig) {
				// <= on purpose: an equal-cost update refreshes the
				// parent pointers and revives a stalled state.
				if heapSettle.WasRemoved(orig) {
					heapSettle.SetRemovedKey(orig, toDistance)
				} else {
					heapSettle.DecreaseKey(orig, toDistance)
				}
				heapSettle.SetData(orig, toData)
			}
		}
	}
	return originalEdge
}

// stallBFS drains the stall queue, marking every state whose discovered
// distance is beaten through an already-stalled predecessor. Removed
// states get their key overwritten in place; live ones a DecreaseKey.
func (q *TurnQuery) stallBFS(heap *queryHeap, dir direction) {
	g := q.g
	for len(q.stallQueue) > 0 {
		item := q.stallQueue[0]
		q.stallQueue = q.stallQueue[1:]

		for edge, edgeEnd := g.BeginEdges(item.node), g.EndEdges(item.node); edge < edgeEnd; edge++ {
			edgeData := g.GetEdgeData(edge)
			if !dir.edgeAllowed(edgeData.Forward, edgeData.Backward) {
				continue
			}
			to := g.GetTarget(edge)
			orig := g.GetFirstOriginalEdge(to) + uint32(q.g.GetOriginalEdgeTarget(edge))
			if !heap.WasInserted(orig) {
				continue
			}
			if heap.GetData(orig).stalled {
				continue
			}
			penalty := dir.penalty(g, item.node, item.originalEdge, g.GetOriginalEdgeSource(edge))
			if penalty == RestrictedTurn {
				continue
			}

			toDistance := item.distance + int32(penalty) + int32(edgeData.Distance)
			if toDistance >= heap.GetKey(orig) {
				continue
			}
			if heap.WasRemoved(orig) {
				heap.SetRemovedKey(orig, toDistance)
			} else {
				heap.DecreaseKey(orig, toDistance)
			}
			stalled := heap.GetData(orig)
			stalled.stalled = true
			heap.SetData(orig, stalled)
			q.stallQueue = append(q.stallQueue, stallItem{node: to, originalEdge: g.GetOriginalEdgeTarget(edge), distance: toDistance})
		}
	}
}

// BidirSearch returns the minimum cost of a path that enters source2
// through the edge (source, source2) and leaves target2 through the
// edge (target2, target), or NoDistance if no such path exists.
// Call Clear before reusing the query.
func (q *TurnQuery) BidirSearch(source, source2, target, target2 uint32) int32 {
	q.checkNode(source)
	q.checkNode(source2)
	q.checkNode(target)
	q.checkNode(target2)

	q.initHeap(q.heapForward, source, source2, dirForward)
	q.initHeap(q.heapBackward, target, target2, dirBackward)

	targetDistance := NoDistance
	if q.heapForward.Size() == 0 || q.heapBackward.Size() == 0 {
		return targetDistance
	}
	if source == target2 && source2 == target {
		// Both heaps hold the same single-edge path; its cost is on top.
		return q.heapForward.MinKey()
	}

	for q.heapForward.Size()+q.heapBackward.Size() > 0 {
		if q.heapForward.Size() > 0 {
			q.computeStep(q.heapForward, q.heapBackward, dirForward, &targetDistance)
		}
		if q.heapBackward.Size() > 0 {
			q.computeStep(q.heapBackward, q.heapForward, dirBackward, &targetDistance)
		}
	}

	return targetDistance
}

// UnidirSearch runs the forward search to exhaustion against the seeded
// backward frontier. Same result as BidirSearch; kept as the reference
// the bidirectional variant is tested against.
func (q *TurnQuery) UnidirSearch(source, source2, target, target2 uint32) int32 {
	q.checkNode(source)
	q.checkNode(source2)
	q.checkNode(target)
	q.checkNode(target2)

	q.initHeap(q.heapForward, source, source2, dirForward)
	q.initHeap(q.heapBackward, target, target2, dirBackward)

	targetDistance := NoDistance
	if q.heapForward.Size() == 0 || q.heapBackward.Size() == 0 {
		return targetDistance
	}
	if source == target2 && source2 == target {
		return q.heapForward.MinKey()
	}

	for q.heapForward.Size() > 0 {
		q.computeStep(q.heapForward, q.heapBackward, dirForward, &targetDistance)
	}

	return targetDistance
}

// GetPath reconstructs the up/down edge chains of the last successful
// search. Precondition: the search returned a finite distance.
func (q *TurnQuery) GetPath(path *Path) {
	if q.middle.Node == noMiddle.Node {
		panic("routing: GetPath without a successful search")
	}

	for orig := q.middle.In; orig != noOriginalEdge; {
		data := q.heapForward.GetData(orig)
		path.Up = append(path.Up, data.parentEdge)
		orig = data.parentOrig
	}
	for orig := q.middle.Out; orig != noOriginalEdge; {
		data := q.heapBackward.GetData(orig)
		path.Down = append(path.Down, data.parentEdge)
		orig = data.parentOrig
	}
}

func (q *TurnQuery) checkNode(n uint32) {
	if n >= q.g.GetNumberOfNodes() {
		panic("routing: node id out of range")
	}
}
