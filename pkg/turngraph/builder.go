package turngraph

import "fmt"

// maxSlots bounds a node's original-edge block so locals fit in a byte.
const maxSlots = 255

// RawEdge is a builder input edge. Shortcut edges name their two
// constituents by position in the input slice; Child1's source node and
// Child2's target node must match the shortcut's own endpoints.
type RawEdge struct {
	From     uint32
	To       uint32
	Distance uint32
	ID       uint32
	Forward  bool
	Backward bool
	Shortcut bool
	Child1   int32 // input index of the first constituent, -1 for original edges
	Child2   int32 // input index of the second constituent, -1 for original edges
}

// PenaltyEntry assigns a turn penalty at Node for the maneuver arriving
// along edge FromEdge and departing along edge ToEdge (input indices).
// Both edges must be original edges incident to Node.
type PenaltyEntry struct {
	Node     uint32
	FromEdge int
	ToEdge   int
	Value    uint8
}

// RestrictTurn builds a PenaltyEntry forbidding the maneuver.
func RestrictTurn(node uint32, fromEdge, toEdge int) PenaltyEntry {
	return PenaltyEntry{Node: node, FromEdge: fromEdge, ToEdge: toEdge, Value: RestrictedTurn}
}

// BuildInput is the full input to Build.
type BuildInput struct {
	NumNodes  uint32
	Edges     []RawEdge
	Penalties []PenaltyEntry

	// Optional coordinates, len NumNodes each when present.
	NodeLat []float64
	NodeLon []float64

	// KeepLargestComponent drops everything outside the largest weakly
	// connected component and compacts node ids.
	KeepLargestComponent bool
}

// Build assembles a TurnGraph: assigns original-edge slots, lays out
// per-node penalty tables, and packs edges into CSR order.
func Build(in BuildInput) (*TurnGraph, error) {
	numNodes := in.NumNodes
	edges := in.Edges
	penalties := in.Penalties
	nodeLat := in.NodeLat
	nodeLon := in.NodeLon

	for i := range edges {
		e := &edges[i]
		if e.From >= numNodes || e.To >= numNodes {
			return nil, fmt.Errorf("edge %d: endpoint out of range (%d→%d, %d nodes)", i, e.From, e.To, numNodes)
		}
		if e.Distance == 0 {
			return nil, fmt.Errorf("edge %d: zero distance", i)
		}
		if !e.Forward && !e.Backward {
			return nil, fmt.Errorf("edge %d: no traversable direction", i)
		}
		if e.Shortcut && (e.Child1 < 0 || e.Child2 < 0 ||
			int(e.Child1) >= len(edges) || int(e.Child2) >= len(edges)) {
			return nil, fmt.Errorf("edge %d: shortcut children out of range", i)
		}
	}

	for pi, p := range penalties {
		if p.FromEdge < 0 || p.FromEdge >= len(edges) || p.ToEdge < 0 || p.ToEdge >= len(edges) {
			return nil, fmt.Errorf("penalty %d: edge index out of range", pi)
		}
	}

	if in.KeepLargestComponent {
		var err error
		numNodes, edges, penalties, nodeLat, nodeLon, err = pruneToLargestComponent(numNodes, edges, penalties, nodeLat, nodeLon)
		if err != nil {
			return nil, err
		}
	}

	// Assign original-edge slots in input order: each original edge takes
	// one slot at its source node and one at its target node. The slot
	// serves both traversal directions of the edge.
	slots := make([]uint32, numNodes)
	srcLocal := make([]uint8, len(edges))
	tgtLocal := make([]uint8, len(edges))
	for i := range edges {
		if edges[i].Shortcut {
			continue
		}
		from, to := edges[i].From, edges[i].To
		if slots[from] >= maxSlots || slots[to] >= maxSlots {
			return nil, fmt.Errorf("edge %d: original-edge block overflow at node %d", i, from)
		}
		srcLocal[i] = uint8(slots[from])
		slots[from]++
		tgtLocal[i] = uint8(slots[to])
		slots[to]++
	}

	// Shortcut slots come from the outermost constituents.
	for i := range edges {
		if !edges[i].Shortcut {
			continue
		}
		c1, err := resolveLeaf(edges, i, true)
		if err != nil {
			return nil, err
		}
		c2, err := resolveLeaf(edges, i, false)
		if err != nil {
			return nil, err
		}
		if edges[c1].From != edges[i].From || edges[c2].To != edges[i].To {
			return nil, fmt.Errorf("edge %d: shortcut endpoints disagree with constituents", i)
		}
		srcLocal[i] = srcLocal[c1]
		tgtLocal[i] = tgtLocal[c2]
	}

	// Slot block bases.
	firstOriginal := make([]uint32, numNodes+1)
	for n := uint32(0); n < numNodes; n++ {
		firstOriginal[n+1] = firstOriginal[n] + slots[n]
	}

	// Penalty tables, deg×deg per node, default zero.
	penaltyFirst := make([]uint32, numNodes+1)
	for n := uint32(0); n < numNodes; n++ {
		penaltyFirst[n+1] = penaltyFirst[n] + slots[n]*slots[n]
	}
	penaltyData := make([]uint8, penaltyFirst[numNodes])

	for pi, p := range penalties {
		if p.Node >= numNodes {
			return nil, fmt.Errorf("penalty %d: node %d out of range", pi, p.Node)
		}
		in, err := localAt(edges, srcLocal, tgtLocal, p.FromEdge, p.Node, true)
		if err != nil {
			return nil, fmt.Errorf("penalty %d: %w", pi, err)
		}
		out, err := localAt(edges, srcLocal, tgtLocal, p.ToEdge, p.Node, false)
		if err != nil {
			return nil, fmt.Errorf("penalty %d: %w", pi, err)
		}
		deg := slots[p.Node]
		penaltyData[penaltyFirst[p.Node]+uint32(in)*deg+uint32(out)] = p.Value
	}

	// CSR layout: stable counting sort by source node.
	numEdges := uint32(len(edges))
	firstOut := make([]uint32, numNodes+1)
	for i := range edges {
		firstOut[edges[i].From+1]++
	}
	for n := uint32(1); n <= numNodes; n++ {
		firstOut[n] += firstOut[n-1]
	}

	g := &TurnGraph{
		NumNodes:        numNodes,
		NumEdges:        numEdges,
		FirstOut:        firstOut,
		From:            make([]uint32, numEdges),
		Head:            make([]uint32, numEdges),
		EdgeDistance:    make([]uint32, numEdges),
		EdgeID:          make([]uint32, numEdges),
		EdgeFlags:       make([]uint8, numEdges),
		EdgeSourceLocal: make([]uint8, numEdges),
		EdgeTargetLocal: make([]uint8, numEdges),
		ShortcutChild1:  make([]int32, numEdges),
		ShortcutChild2:  make([]int32, numEdges),
		FirstOriginal:   firstOriginal,
		PenaltyFirst:    penaltyFirst,
		Penalties:       penaltyData,
		NodeLat:         nodeLat,
		NodeLon:         nodeLon,
	}

	// Place edges and record input index → CSR index for child rewrites.
	csrIndex := make([]uint32, numEdges)
	next := make([]uint32, numNodes)
	copy(next, firstOut[:numNodes])
	for i := range edges {
		e := &edges[i]
		pos := next[e.From]
		next[e.From]++
		csrIndex[i] = pos

		g.From[pos] = e.From
		g.Head[pos] = e.To
		g.EdgeDistance[pos] = e.Distance
		g.EdgeID[pos] = e.ID
		g.EdgeSourceLocal[pos] = srcLocal[i]
		g.EdgeTargetLocal[pos] = tgtLocal[i]

		var flags uint8
		if e.Forward {
			flags |= flagForward
		}
		if e.Backward {
			flags |= flagBackward
		}
		if e.Shortcut {
			flags |= flagShortcut
		}
		g.EdgeFlags[pos] = flags
		g.ShortcutChild1[pos] = -1
		g.ShortcutChild2[pos] = -1
	}
	for i := range edges {
		if edges[i].Shortcut {
			pos := csrIndex[i]
			g.ShortcutChild1[pos] = int32(csrIndex[edges[i].Child1])
			g.ShortcutChild2[pos] = int32(csrIndex[edges[i].Child2])
		}
	}

	return g, nil
}

// resolveLeaf follows a shortcut's constituent chain down to the
// original edge at its source (first=true) or target (first=false) end.
func resolveLeaf(edges []RawEdge, idx int, first bool) (int, error) {
	seen := 0
	for edges[idx].Shortcut {
		if first {
			idx = int(edges[idx].Child1)
		} else {
			idx = int(edges[idx].Child2)
		}
		seen++
		if seen > len(edges) {
			return 0, fmt.Errorf("edge %d: shortcut constituent cycle", idx)
		}
	}
	return idx, nil
}

// localAt resolves an edge's slot at node. An edge stored outgoing from
// node contributes its source slot, an edge stored incoming its target
// slot; this holds for both roles since slots are direction-agnostic.
func localAt(edges []RawEdge, srcLocal, tgtLocal []uint8, idx int, node uint32, incoming bool) (uint8, error) {
	if idx < 0 || idx >= len(edges) {
		return 0, fmt.Errorf("edge index %d out of range", idx)
	}
	if edges[idx].Shortcut {
		return 0, fmt.Errorf("edge %d is a shortcut, penalties apply to original edges", idx)
	}
	// For incoming resolution prefer the target slot, for outgoing the
	// source slot; a self-loop carries both.
	if incoming {
		if edges[idx].To == node {
			return tgtLocal[idx], nil
		}
		if edges[idx].From == node {
			return srcLocal[idx], nil
		}
	} else {
		if edges[idx].From == node {
			return srcLocal[idx], nil
		}
		if edges[idx].To == node {
			return tgtLocal[idx], nil
		}
	}
	return 0, fmt.Errorf("edge %d is not incident to node %d", idx, node)
}

// pruneToLargestComponent drops all nodes outside the largest weakly
// connected component and compacts the remaining ids.
func pruneToLargestComponent(numNodes uint32, edges []RawEdge, penalties []PenaltyEntry, nodeLat, nodeLon []float64) (uint32, []RawEdge, []PenaltyEntry, []float64, []float64, error) {
	keep, size := largestComponent(numNodes, edges)
	if size == numNodes {
		return numNodes, edges, penalties, nodeLat, nodeLon, nil
	}

	remap := make([]uint32, numNodes)
	var compact uint32
	for n := uint32(0); n < numNodes; n++ {
		if keep[n] {
			remap[n] = compact
			compact++
		}
	}

	var newLat, newLon []float64
	if nodeLat != nil {
		newLat = make([]float64, 0, compact)
		newLon = make([]float64, 0, compact)
		for n := uint32(0); n < numNodes; n++ {
			if keep[n] {
				newLat = append(newLat, nodeLat[n])
				newLon = append(newLon, nodeLon[n])
			}
		}
	}

	edgeRemap := make([]int, len(edges))
	newEdges := make([]RawEdge, 0, len(edges))
	for i := range edges {
		if !keep[edges[i].From] || !keep[edges[i].To] {
			edgeRemap[i] = -1
			continue
		}
		e := edges[i]
		e.From = remap[e.From]
		e.To = remap[e.To]
		edgeRemap[i] = len(newEdges)
		newEdges = append(newEdges, e)
	}
	for i := range newEdges {
		if !newEdges[i].Shortcut {
			continue
		}
		c1 := edgeRemap[newEdges[i].Child1]
		c2 := edgeRemap[newEdges[i].Child2]
		if c1 < 0 || c2 < 0 {
			return 0, nil, nil, nil, nil, fmt.Errorf("shortcut survived pruning but its constituents did not")
		}
		newEdges[i].Child1 = int32(c1)
		newEdges[i].Child2 = int32(c2)
	}

	newPenalties := make([]PenaltyEntry, 0, len(penalties))
	for _, p := range penalties {
		if p.Node >= numNodes || !keep[p.Node] {
			continue
		}
		fe, te := edgeRemap[p.FromEdge], edgeRemap[p.ToEdge]
		if fe < 0 || te < 0 {
			continue
		}
		p.Node = remap[p.Node]
		p.FromEdge = fe
		p.ToEdge = te
		newPenalties = append(newPenalties, p)
	}

	return compact, newEdges, newPenalties, newLat, newLon, nil
}
