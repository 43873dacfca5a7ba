package turngraph

import (
	"log"

	"github.com/paulmach/osm"

	osmparser "turnrouter/pkg/osm"
)

// BuildFromParse creates a TurnGraph from parsed OSM data: remaps node
// ids to a compact range, converts turn restrictions to penalty-table
// entries, and keeps only the largest connected component.
//
// Every road segment is stored at both endpoints (the second copy with
// swapped direction bits), so each search direction can reach every
// traversable edge from the node it settles at. A physical edge then
// owns two slots per endpoint; restriction entries are replicated
// across both aliases.
func BuildFromParse(result *osmparser.ParseResult) (*TurnGraph, error) {
	if len(result.Edges) == 0 {
		return Build(BuildInput{})
	}

	// Collect all unique node IDs and build a compact mapping.
	nodeSet := make(map[osm.NodeID]uint32)
	var nodeIDs []osm.NodeID

	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}

	// Two stored edges per segment: parsed segment i becomes builder
	// edges 2i (as parsed) and 2i+1 (reversed storage).
	edges := make([]RawEdge, 0, 2*len(result.Edges))
	for i := range result.Edges {
		e := &result.Edges[i]
		from := addNode(e.FromNodeID)
		to := addNode(e.ToNodeID)
		edges = append(edges, RawEdge{
			From:     from,
			To:       to,
			Distance: e.Distance,
			ID:       uint32(i),
			Forward:  e.Forward,
			Backward: e.Backward,
			Child1:   -1,
			Child2:   -1,
		}, RawEdge{
			From:     to,
			To:       from,
			Distance: e.Distance,
			ID:       uint32(i),
			Forward:  e.Backward,
			Backward: e.Forward,
			Child1:   -1,
			Child2:   -1,
		})
	}

	// Incidence indexes over parsed segments for restriction resolution.
	type wayNode struct {
		way  osm.WayID
		node osm.NodeID
	}
	incident := make(map[wayNode][]int)
	byNode := make(map[osm.NodeID][]int)
	for i := range result.Edges {
		e := &result.Edges[i]
		incident[wayNode{e.WayID, e.FromNodeID}] = append(incident[wayNode{e.WayID, e.FromNodeID}], i)
		if e.ToNodeID != e.FromNodeID {
			incident[wayNode{e.WayID, e.ToNodeID}] = append(incident[wayNode{e.WayID, e.ToNodeID}], i)
			byNode[e.ToNodeID] = append(byNode[e.ToNodeID], i)
		}
		byNode[e.FromNodeID] = append(byNode[e.FromNodeID], i)
	}

	var penalties []PenaltyEntry
	restrict := func(via uint32, fromSeg, toSeg int) {
		// Both stored copies of each segment alias the same maneuver.
		for _, fe := range [2]int{2 * fromSeg, 2*fromSeg + 1} {
			for _, te := range [2]int{2 * toSeg, 2*toSeg + 1} {
				penalties = append(penalties, RestrictTurn(via, fe, te))
			}
		}
	}

	var skippedRestrictions int
	for _, r := range result.Restrictions {
		via, ok := nodeSet[r.ViaNode]
		if !ok {
			skippedRestrictions++
			continue
		}
		fromSeg := findOriented(result.Edges, incident[wayNode{r.FromWay, r.ViaNode}], r.ViaNode, true)
		toSeg := findOriented(result.Edges, incident[wayNode{r.ToWay, r.ViaNode}], r.ViaNode, false)
		if fromSeg < 0 || toSeg < 0 {
			skippedRestrictions++
			continue
		}

		if !r.Only {
			restrict(via, fromSeg, toSeg)
			continue
		}
		// only_*: forbid every departure from via except the named one.
		for _, x := range byNode[r.ViaNode] {
			if x == toSeg || !leavesVia(&result.Edges[x], r.ViaNode) {
				continue
			}
			restrict(via, fromSeg, x)
		}
	}
	if skippedRestrictions > 0 {
		log.Printf("Skipped %d unresolvable turn restrictions", skippedRestrictions)
	}

	nodeLat := make([]float64, len(nodeIDs))
	nodeLon := make([]float64, len(nodeIDs))
	for id, idx := range nodeSet {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return Build(BuildInput{
		NumNodes:             uint32(len(nodeIDs)),
		Edges:                edges,
		Penalties:            penalties,
		NodeLat:              nodeLat,
		NodeLon:              nodeLon,
		KeepLargestComponent: true,
	})
}

// findOriented picks the first candidate segment traversable toward
// (toward=true) or away from (toward=false) the via node.
func findOriented(edges []osmparser.RawEdge, cands []int, via osm.NodeID, toward bool) int {
	for _, i := range cands {
		e := &edges[i]
		if toward {
			if (e.ToNodeID == via && e.Forward) || (e.FromNodeID == via && e.Backward) {
				return i
			}
		} else if leavesVia(e, via) {
			return i
		}
	}
	return -1
}

// leavesVia reports whether the segment can be traversed away from via.
func leavesVia(e *osmparser.RawEdge, via osm.NodeID) bool {
	return (e.FromNodeID == via && e.Forward) || (e.ToNodeID == via && e.Backward)
}
