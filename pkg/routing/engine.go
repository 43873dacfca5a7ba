package routing

import (
	"context"
	"errors"
	"sync"

	"turnrouter/pkg/turngraph"
)

// ErrNoRoute is returned when no route exists between the two points.
var ErrNoRoute = errors.New("no route found")

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Geometry            []LatLng
}

// Router is the interface for route queries.
type Router interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
}

// Engine implements Router over a turn graph. Concurrent requests each
// borrow their own TurnQuery from a pool; the graph itself is shared
// read-only.
type Engine struct {
	g       *turngraph.TurnGraph
	snapper *Snapper
	queries sync.Pool
}

// NewEngine creates a routing engine. The graph must carry node
// coordinates for snapping.
func NewEngine(g *turngraph.TurnGraph) *Engine {
	return &Engine{
		g:       g,
		snapper: NewSnapper(g),
		queries: sync.Pool{
			New: func() any { return NewTurnQuery(g) },
		},
	}
}

// Route computes the cheapest turn-respecting path between two points.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	startSnap, err := e.snapper.Snap(start.Lat, start.Lng)
	if err != nil {
		return nil, err
	}
	endSnap, err := e.snapper.Snap(end.Lat, end.Lng)
	if err != nil {
		return nil, err
	}

	// The search itself runs to completion; cancellation is honoured at
	// query granularity.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := e.queries.Get().(*TurnQuery)
	defer e.queries.Put(q)

	// The path starts at the seed's source and ends at the target, so
	// each snap's nearer endpoint anchors its oriented edge. If the
	// preferred orientations are not traversable, fall back to the
	// remaining combinations.
	sNear, sFar := orientSnap(startSnap)
	eNear, eFar := orientSnap(endSnap)

	distance := NoDistance
	source := sNear
	for _, c := range [4][4]uint32{
		{sNear, sFar, eNear, eFar},
		{sNear, sFar, eFar, eNear},
		{sFar, sNear, eNear, eFar},
		{sFar, sNear, eFar, eNear},
	} {
		q.Clear()
		if distance = q.BidirSearch(c[0], c[1], c[2], c[3]); distance != NoDistance {
			source = c[0]
			break
		}
	}
	if distance == NoDistance {
		return nil, ErrNoRoute
	}

	var path Path
	q.GetPath(&path)
	edges := UnpackPath(e.g, &path)

	return &RouteResult{
		TotalDistanceMeters: float64(distance) / 1000.0,
		Geometry:            e.buildGeometry(source, edges),
	}, nil
}

// orientSnap orders a snapped edge's endpoints by proximity to the
// query point.
func orientSnap(snap SnapResult) (near, far uint32) {
	if snap.Ratio <= 0.5 {
		return snap.NodeU, snap.NodeV
	}
	return snap.NodeV, snap.NodeU
}

// buildGeometry converts an edge sequence into coordinates, following
// each edge from whichever endpoint the walk is at (backward-search
// edges may be stored against the travel direction).
func (e *Engine) buildGeometry(startNode uint32, edges []uint32) []LatLng {
	g := e.g
	if g.NodeLat == nil {
		return nil
	}

	geom := make([]LatLng, 0, len(edges)+1)
	cur := startNode
	geom = append(geom, LatLng{Lat: g.NodeLat[cur], Lng: g.NodeLon[cur]})

	for _, edge := range edges {
		next := g.Head[edge]
		if next == cur {
			next = g.From[edge]
		}
		geom = append(geom, LatLng{Lat: g.NodeLat[next], Lng: g.NodeLon[next]})
		cur = next
	}
	return geom
}

// Stats reports graph dimensions for the service surface.
func (e *Engine) Stats() (numNodes, numEdges, numOriginalEdges uint32) {
	return e.g.NumNodes, e.g.NumEdges, e.g.GetNumberOfOriginalEdges()
}
