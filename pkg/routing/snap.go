package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"turnrouter/pkg/geo"
	"turnrouter/pkg/turngraph"
)

const maxSnapDistMeters = 500.0

// searchPadDegrees pads the query box around a point. 0.005° ≈ 550 m
// at the equator, just over the snap cutoff.
const searchPadDegrees = 0.005

// ErrPointTooFar is returned when the query point is too far from any road.
var ErrPointTooFar = errors.New("point too far from road")

// SnapResult represents a point snapped to a road edge, oriented from
// NodeU to NodeV in storage order.
type SnapResult struct {
	Edge  uint32  // CSR edge index
	NodeU uint32  // source node of the edge
	NodeV uint32  // target node of the edge
	Ratio float64 // 0.0 = at NodeU, 1.0 = at NodeV
	Dist  float64 // meters from query point to snapped point
}

// Snapper finds the nearest road edge to a coordinate using an R-tree
// over edge bounding boxes. Shortcut edges are not indexed.
type Snapper struct {
	tree rtree.RTreeG[uint32]
	g    *turngraph.TurnGraph
}

// NewSnapper indexes the graph's original edges. The graph must carry
// node coordinates.
func NewSnapper(g *turngraph.TurnGraph) *Snapper {
	s := &Snapper{g: g}
	for e := uint32(0); e < g.NumEdges; e++ {
		if g.GetEdgeData(e).Shortcut {
			continue
		}
		u, v := g.From[e], g.Head[e]
		minLon := math.Min(g.NodeLon[u], g.NodeLon[v])
		maxLon := math.Max(g.NodeLon[u], g.NodeLon[v])
		minLat := math.Min(g.NodeLat[u], g.NodeLat[v])
		maxLat := math.Max(g.NodeLat[u], g.NodeLat[v])
		s.tree.Insert([2]float64{minLon, minLat}, [2]float64{maxLon, maxLat}, e)
	}
	return s
}

// Snap finds the nearest edge to the given lat/lng.
func (s *Snapper) Snap(lat, lng float64) (SnapResult, error) {
	bestDist := math.Inf(1)
	var best SnapResult

	s.tree.Search(
		[2]float64{lng - searchPadDegrees, lat - searchPadDegrees},
		[2]float64{lng + searchPadDegrees, lat + searchPadDegrees},
		func(_, _ [2]float64, e uint32) bool {
			u, v := s.g.From[e], s.g.Head[e]
			dist, ratio := geo.PointToSegmentDist(
				lat, lng,
				s.g.NodeLat[u], s.g.NodeLon[u],
				s.g.NodeLat[v], s.g.NodeLon[v],
			)
			if dist < bestDist {
				bestDist = dist
				best = SnapResult{Edge: e, NodeU: u, NodeV: v, Ratio: ratio, Dist: dist}
			}
			return true
		})

	if bestDist > maxSnapDistMeters {
		return SnapResult{}, ErrPointTooFar
	}
	return best, nil
}
