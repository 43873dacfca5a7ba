package routing

import (
	"math/rand"
	"testing"

	"turnrouter/pkg/turngraph"
)

// buildGraph assembles a TurnGraph or fails the test.
func buildGraph(t *testing.T, numNodes uint32, edges []turngraph.RawEdge, penalties []turngraph.PenaltyEntry) *turngraph.TurnGraph {
	t.Helper()
	g, err := turngraph.Build(turngraph.BuildInput{
		NumNodes:  numNodes,
		Edges:     edges,
		Penalties: penalties,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// fwd is a one-way forward edge.
func fwd(from, to, dist uint32) turngraph.RawEdge {
	return turngraph.RawEdge{From: from, To: to, Distance: dist, Forward: true, Child1: -1, Child2: -1}
}

// findEdge locates the CSR index of the stored edge from→to.
func findEdge(t *testing.T, g *turngraph.TurnGraph, from, to uint32) uint32 {
	t.Helper()
	for e := g.BeginEdges(from); e < g.EndEdges(from); e++ {
		if g.GetTarget(e) == to {
			return e
		}
	}
	t.Fatalf("no stored edge %d→%d", from, to)
	return 0
}

// pathCost walks an unpacked edge sequence from startNode, summing edge
// distances and the turn penalty at every intermediate node.
func pathCost(t *testing.T, g *turngraph.TurnGraph, edges []uint32, startNode uint32) int32 {
	t.Helper()
	var total int32
	cur := startNode
	prevIn := uint8(0)
	for i, e := range edges {
		var out, in uint8
		var next uint32
		switch cur {
		case g.GetSource(e):
			out = g.GetOriginalEdgeSource(e)
			in = g.GetOriginalEdgeTarget(e)
			next = g.GetTarget(e)
		case g.GetTarget(e):
			out = g.GetOriginalEdgeTarget(e)
			in = g.GetOriginalEdgeSource(e)
			next = g.GetSource(e)
		default:
			t.Fatalf("edge %d not incident to walk node %d", e, cur)
		}
		if i > 0 {
			p := g.GetPenaltyData(cur, prevIn, out)
			if p == RestrictedTurn {
				t.Fatalf("path uses restricted turn at node %d", cur)
			}
			total += int32(p)
		}
		total += int32(g.GetEdgeData(e).Distance)
		prevIn = in
		cur = next
	}
	return total
}

// diamondEdges builds the four-node diamond: e0: 0→1 (10), e1: 1→2
// (20), e2: 0→3 (12), e3: 3→2 (25), all one-way forward.
func diamondEdges() []turngraph.RawEdge {
	return []turngraph.RawEdge{
		fwd(0, 1, 10), // e0
		fwd(1, 2, 20), // e1
		fwd(0, 3, 12), // e2
		fwd(3, 2, 25), // e3
	}
}

func TestDiamondScenarioA(t *testing.T) {
	g := buildGraph(t, 4, diamondEdges(), nil)
	q := NewTurnQuery(g)

	if got := q.BidirSearch(0, 1, 2, 1); got != 30 {
		t.Fatalf("BidirSearch=%d want 30", got)
	}

	var path Path
	q.GetPath(&path)
	edges := UnpackPath(g, &path)
	e0 := findEdge(t, g, 0, 1)
	e1 := findEdge(t, g, 1, 2)
	if len(edges) != 2 || edges[0] != e0 || edges[1] != e1 {
		t.Fatalf("path edges = %v, want [%d %d]", edges, e0, e1)
	}
	if cost := pathCost(t, g, edges, 0); cost != 30 {
		t.Fatalf("path cost = %d, want 30", cost)
	}

	q.Clear()
	if got := q.UnidirSearch(0, 1, 2, 1); got != 30 {
		t.Fatalf("UnidirSearch=%d want 30", got)
	}
}

func TestDiamondScenarioBTurnCost(t *testing.T) {
	penalties := []turngraph.PenaltyEntry{
		{Node: 1, FromEdge: 0, ToEdge: 1, Value: 5},
	}
	g := buildGraph(t, 4, diamondEdges(), penalties)
	q := NewTurnQuery(g)

	if got := q.BidirSearch(0, 1, 2, 1); got != 35 {
		t.Fatalf("BidirSearch=%d want 35", got)
	}
	var path Path
	q.GetPath(&path)
	if cost := pathCost(t, g, UnpackPath(g, &path), 0); cost != 35 {
		t.Fatalf("path cost = %d, want 35", cost)
	}

	q.Clear()
	if got := q.UnidirSearch(0, 1, 2, 1); got != 35 {
		t.Fatalf("UnidirSearch=%d want 35", got)
	}
}

func TestDiamondScenarioCRestrictedTurn(t *testing.T) {
	penalties := []turngraph.PenaltyEntry{
		turngraph.RestrictTurn(1, 0, 1),
	}
	g := buildGraph(t, 4, diamondEdges(), penalties)
	q := NewTurnQuery(g)

	// The only way to finish through edge 1→2 needs the forbidden turn.
	if got := q.BidirSearch(0, 1, 2, 1); got != NoDistance {
		t.Fatalf("BidirSearch via restricted turn = %d, want NoDistance", got)
	}

	// Finishing through 3→2 routes around the restriction.
	q.Clear()
	if got := q.BidirSearch(0, 3, 2, 3); got != 37 {
		t.Fatalf("BidirSearch around restriction = %d, want 37", got)
	}
	var path Path
	q.GetPath(&path)
	edges := UnpackPath(g, &path)
	e2 := findEdge(t, g, 0, 3)
	e3 := findEdge(t, g, 3, 2)
	if len(edges) != 2 || edges[0] != e2 || edges[1] != e3 {
		t.Fatalf("path edges = %v, want [%d %d]", edges, e2, e3)
	}

	q.Clear()
	if got := q.UnidirSearch(0, 3, 2, 3); got != 37 {
		t.Fatalf("UnidirSearch=%d want 37", got)
	}
}

func TestDiamondScenarioDRemovedEdge(t *testing.T) {
	edges := diamondEdges()[:3] // drop e3: 3→2
	penalties := []turngraph.PenaltyEntry{
		{Node: 1, FromEdge: 0, ToEdge: 1, Value: 5},
	}
	g := buildGraph(t, 4, edges, penalties)
	q := NewTurnQuery(g)

	// The detour target edge no longer exists.
	if got := q.BidirSearch(0, 3, 2, 3); got != NoDistance {
		t.Fatalf("BidirSearch without 3→2 = %d, want NoDistance", got)
	}
	q.Clear()
	if got := q.BidirSearch(0, 1, 2, 1); got != 35 {
		t.Fatalf("BidirSearch=%d want 35", got)
	}
}

func TestTrivialIdentity(t *testing.T) {
	g := buildGraph(t, 4, diamondEdges(), nil)
	q := NewTurnQuery(g)

	// Source pair equals reversed target pair: the single oriented edge
	// is the whole path.
	if got := q.BidirSearch(0, 1, 1, 0); got != 10 {
		t.Fatalf("BidirSearch=%d want 10", got)
	}
}

func TestAllPathsRestricted(t *testing.T) {
	// Entry and exit legs around the diamond so one query covers both
	// inner routes.
	edges := append(diamondEdges(),
		fwd(4, 0, 1), // entry
		fwd(2, 5, 1), // exit
	)
	penalties := []turngraph.PenaltyEntry{
		turngraph.RestrictTurn(1, 0, 1),
		turngraph.RestrictTurn(3, 2, 3),
	}
	g := buildGraph(t, 6, edges, penalties)
	q := NewTurnQuery(g)

	if got := q.BidirSearch(4, 0, 5, 2); got != NoDistance {
		t.Fatalf("BidirSearch=%d want NoDistance", got)
	}
	q.Clear()
	if got := q.UnidirSearch(4, 0, 5, 2); got != NoDistance {
		t.Fatalf("UnidirSearch=%d want NoDistance", got)
	}
}

func TestDiamondMinOfAlternatives(t *testing.T) {
	edges := append(diamondEdges(),
		fwd(4, 0, 1), // entry
		fwd(2, 5, 1), // exit
	)

	cases := []struct {
		name      string
		penalties []turngraph.PenaltyEntry
		want      int32
	}{
		{"free", nil, 32},                                                                        // 1 + 10 + 20 + 1
		{"priced turn", []turngraph.PenaltyEntry{{Node: 1, FromEdge: 0, ToEdge: 1, Value: 5}}, 37}, // detour still pricier
		{"restricted turn", []turngraph.PenaltyEntry{turngraph.RestrictTurn(1, 0, 1)}, 39},         // 1 + 12 + 25 + 1
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := buildGraph(t, 6, edges, tc.penalties)
			q := NewTurnQuery(g)

			if got := q.BidirSearch(4, 0, 5, 2); got != tc.want {
				t.Fatalf("BidirSearch=%d want %d", got, tc.want)
			}
			var path Path
			q.GetPath(&path)
			if cost := pathCost(t, g, UnpackPath(g, &path), 4); cost != tc.want {
				t.Fatalf("path cost = %d, want %d", cost, tc.want)
			}

			q.Clear()
			if got := q.UnidirSearch(4, 0, 5, 2); got != tc.want {
				t.Fatalf("UnidirSearch=%d want %d", got, tc.want)
			}
		})
	}
}

func TestStallOnDemandPrunesSettledState(t *testing.T) {
	// The direct edge 0→1 is far longer than going up through 2 and
	// down the backward-bit edge 2→1, so the settled direct state can
	// be proven sub-optimal. The turn 2→1 then 1→5 is forbidden, which
	// keeps the cheap arrival from reaching the exit itself: the result
	// still uses the direct edge, and the direct state stalls only
	// after contributing its meeting.
	edges := []turngraph.RawEdge{
		fwd(4, 0, 1),   // entry
		fwd(0, 1, 100), // direct
		fwd(0, 2, 10),  // up
		{From: 1, To: 2, Distance: 5, Backward: true, Child1: -1, Child2: -1}, // physical 2→1
		fwd(1, 5, 1), // exit
	}
	penalties := []turngraph.PenaltyEntry{
		turngraph.RestrictTurn(1, 3, 4), // arrive via 2→1, leave via 1→5
	}
	g := buildGraph(t, 6, edges, penalties)

	q := NewTurnQuery(g)
	got := q.BidirSearch(4, 0, 5, 1)
	if got != 102 { // 1 + 100 + 1
		t.Fatalf("BidirSearch=%d want 102", got)
	}

	// The settled state for the direct edge must have been stalled.
	direct := findEdge(t, g, 0, 1)
	key := g.GetFirstOriginalEdge(1) + uint32(g.GetOriginalEdgeTarget(direct))
	if !q.heapForward.WasInserted(key) {
		t.Fatal("direct-edge state never discovered")
	}
	if !q.heapForward.GetData(key).stalled {
		t.Fatal("direct-edge state was not stalled")
	}

	// The stall-free query agrees on the distance.
	oracle := NewTurnQueryWithoutStalling(g)
	if got := oracle.BidirSearch(4, 0, 5, 1); got != 102 {
		t.Fatalf("stall-free BidirSearch=%d want 102", got)
	}
}

func TestShortcutRelaxationAndUnpack(t *testing.T) {
	edges := []turngraph.RawEdge{
		fwd(3, 0, 1),  // entry
		fwd(0, 1, 10), // e1
		fwd(1, 2, 20), // e2
		{From: 0, To: 2, Distance: 30, Forward: true, Shortcut: true, Child1: 1, Child2: 2},
		fwd(2, 4, 1), // exit
	}
	g := buildGraph(t, 5, edges, nil)
	q := NewTurnQuery(g)

	if got := q.BidirSearch(3, 0, 4, 2); got != 32 {
		t.Fatalf("BidirSearch=%d want 32", got)
	}
	var path Path
	q.GetPath(&path)
	unpacked := UnpackPath(g, &path)

	want := []uint32{
		findEdge(t, g, 3, 0),
		findEdge(t, g, 0, 1),
		findEdge(t, g, 1, 2),
		findEdge(t, g, 2, 4),
	}
	if len(unpacked) != len(want) {
		t.Fatalf("unpacked = %v, want %v", unpacked, want)
	}
	for i := range want {
		if unpacked[i] != want[i] {
			t.Fatalf("unpacked = %v, want %v", unpacked, want)
		}
	}
	if cost := pathCost(t, g, unpacked, 3); cost != 32 {
		t.Fatalf("path cost = %d, want 32", cost)
	}
}

func TestUnpackNestedShortcut(t *testing.T) {
	// shortcut 0→3 = (shortcut 0→2 = (0→1, 1→2)), 2→3
	edges := []turngraph.RawEdge{
		fwd(0, 1, 10),
		fwd(1, 2, 20),
		fwd(2, 3, 30),
		{From: 0, To: 2, Distance: 30, Forward: true, Shortcut: true, Child1: 0, Child2: 1},
		{From: 0, To: 3, Distance: 60, Forward: true, Shortcut: true, Child1: 3, Child2: 2},
	}
	g := buildGraph(t, 4, edges, nil)

	top := findEdge(t, g, 0, 3)
	got := UnpackPath(g, &Path{Up: []uint32{top}})
	want := []uint32{
		findEdge(t, g, 0, 1),
		findEdge(t, g, 1, 2),
		findEdge(t, g, 2, 3),
	}
	if len(got) != len(want) {
		t.Fatalf("unpacked = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unpacked = %v, want %v", got, want)
		}
	}
}

// segment is a physical road used by the randomized tests; it is stored
// at both endpoints the way BuildFromParse lays graphs out.
type segment struct {
	u, v     uint32
	dist     uint32
	fwd, bwd bool
}

// buildClosed builds a graph with every segment stored at both
// endpoints and penalty values replicated across slot aliases.
func buildClosed(t *testing.T, numNodes uint32, segs []segment, penalties []segPenalty) *turngraph.TurnGraph {
	t.Helper()
	edges := make([]turngraph.RawEdge, 0, 2*len(segs))
	for _, s := range segs {
		edges = append(edges,
			turngraph.RawEdge{From: s.u, To: s.v, Distance: s.dist, Forward: s.fwd, Backward: s.bwd, Child1: -1, Child2: -1},
			turngraph.RawEdge{From: s.v, To: s.u, Distance: s.dist, Forward: s.bwd, Backward: s.fwd, Child1: -1, Child2: -1},
		)
	}
	var entries []turngraph.PenaltyEntry
	for _, p := range penalties {
		for _, fe := range [2]int{2 * p.fromSeg, 2*p.fromSeg + 1} {
			for _, te := range [2]int{2 * p.toSeg, 2*p.toSeg + 1} {
				entries = append(entries, turngraph.PenaltyEntry{Node: p.node, FromEdge: fe, ToEdge: te, Value: p.value})
			}
		}
	}
	return buildGraph(t, numNodes, edges, entries)
}

type segPenalty struct {
	node    uint32
	fromSeg int
	toSeg   int
	value   uint8
}

// randomSegments generates a connected-ish random road network.
func randomSegments(rng *rand.Rand, numNodes uint32, numSegs int) []segment {
	segs := make([]segment, 0, numSegs)
	// Spanning chain keeps most queries answerable.
	for n := uint32(1); n < numNodes; n++ {
		segs = append(segs, segment{u: n - 1, v: n, dist: 1 + uint32(rng.Intn(50)), fwd: true, bwd: true})
	}
	for len(segs) < numSegs {
		u := uint32(rng.Intn(int(numNodes)))
		v := uint32(rng.Intn(int(numNodes)))
		if u == v {
			continue
		}
		s := segment{u: u, v: v, dist: 1 + uint32(rng.Intn(50))}
		switch rng.Intn(4) {
		case 0:
			s.fwd = true
		case 1:
			s.bwd = true
		default:
			s.fwd, s.bwd = true, true
		}
		segs = append(segs, s)
	}
	return segs
}

// randomSeed picks an oriented traversal of a random segment.
func randomSeed(rng *rand.Rand, segs []segment) (uint32, uint32) {
	for {
		s := segs[rng.Intn(len(segs))]
		switch {
		case s.fwd && (!s.bwd || rng.Intn(2) == 0):
			return s.u, s.v
		case s.bwd:
			return s.v, s.u
		}
	}
}

// TestBidirMatchesUnidirPenaltyFree cross-checks the bidirectional
// search, with and without stalling, against the unidirectional
// reference on penalty-free random graphs.
func TestBidirMatchesUnidirPenaltyFree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		numNodes := uint32(6 + rng.Intn(8))
		segs := randomSegments(rng, numNodes, int(numNodes)*2)
		g := buildClosed(t, numNodes, segs, nil)

		stalling := NewTurnQuery(g)
		plain := NewTurnQueryWithoutStalling(g)

		for query := 0; query < 25; query++ {
			su, sv := randomSeed(rng, segs)
			tu, tv := randomSeed(rng, segs)

			plain.Clear()
			want := plain.UnidirSearch(su, sv, tv, tu)

			plain.Clear()
			if got := plain.BidirSearch(su, sv, tv, tu); got != want {
				t.Fatalf("trial %d query %d (%d,%d,%d,%d): bidir=%d unidir=%d", trial, query, su, sv, tv, tu, got, want)
			}
			stalling.Clear()
			if got := stalling.BidirSearch(su, sv, tv, tu); got != want {
				t.Fatalf("trial %d query %d (%d,%d,%d,%d): stalling bidir=%d unidir=%d", trial, query, su, sv, tv, tu, got, want)
			}
			stalling.Clear()
			if got := stalling.UnidirSearch(su, sv, tv, tu); got != want {
				t.Fatalf("trial %d query %d (%d,%d,%d,%d): stalling unidir=%d unidir=%d", trial, query, su, sv, tv, tu, got, want)
			}
		}
	}
}

// TestBidirMatchesUnidirWithPenalties cross-checks the stall-free
// searches on random graphs with additive and restricted turns, and
// verifies path-cost closure on every finite result.
func TestBidirMatchesUnidirWithPenalties(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 20; trial++ {
		numNodes := uint32(6 + rng.Intn(8))
		segs := randomSegments(rng, numNodes, int(numNodes)*2)

		// Random turn penalties between segment pairs sharing a node.
		var penalties []segPenalty
		values := []uint8{0, 2, 7, turngraph.RestrictedTurn}
		for k := 0; k < len(segs); k++ {
			a := rng.Intn(len(segs))
			b := rng.Intn(len(segs))
			if a == b {
				continue
			}
			node, ok := sharedNode(segs[a], segs[b])
			if !ok {
				continue
			}
			penalties = append(penalties, segPenalty{node: node, fromSeg: a, toSeg: b, value: values[rng.Intn(len(values))]})
		}

		g := buildClosed(t, numNodes, segs, penalties)
		q := NewTurnQueryWithoutStalling(g)

		for query := 0; query < 25; query++ {
			su, sv := randomSeed(rng, segs)
			tu, tv := randomSeed(rng, segs)

			q.Clear()
			want := q.UnidirSearch(su, sv, tv, tu)

			q.Clear()
			got := q.BidirSearch(su, sv, tv, tu)
			if got != want {
				t.Fatalf("trial %d query %d (%d,%d,%d,%d): bidir=%d unidir=%d", trial, query, su, sv, tv, tu, got, want)
			}

			if got != NoDistance {
				var path Path
				q.GetPath(&path)
				if cost := pathCost(t, g, UnpackPath(g, &path), su); cost != got {
					t.Fatalf("trial %d query %d: path cost %d != distance %d", trial, query, cost, got)
				}
			}
		}
	}
}

func sharedNode(a, b segment) (uint32, bool) {
	switch {
	case a.u == b.u || a.u == b.v:
		return a.u, true
	case a.v == b.u || a.v == b.v:
		return a.v, true
	}
	return 0, false
}

func TestClearResetsBetweenQueries(t *testing.T) {
	g := buildGraph(t, 4, diamondEdges(), nil)
	q := NewTurnQuery(g)

	for i := 0; i < 3; i++ {
		q.Clear()
		if got := q.BidirSearch(0, 1, 2, 1); got != 30 {
			t.Fatalf("run %d: BidirSearch=%d want 30", i, got)
		}
	}
}

func TestNoSeedableEdges(t *testing.T) {
	g := buildGraph(t, 4, diamondEdges(), nil)
	q := NewTurnQuery(g)

	// 2→0 is not an edge; the forward heap stays empty.
	if got := q.BidirSearch(2, 0, 2, 1); got != NoDistance {
		t.Fatalf("BidirSearch=%d want NoDistance", got)
	}
}
