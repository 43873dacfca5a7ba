package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"turnrouter/pkg/geo"
)

// RawEdge represents a road segment parsed from OSM data. Direction
// flags follow the way's oneway tagging; the stored orientation is the
// way's node order.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	WayID      osm.WayID
	Distance   uint32 // millimeters
	Forward    bool
	Backward   bool
}

// Restriction is a turn restriction at a via node. Only describes the
// only_* family (every maneuver except the named one is forbidden).
type Restriction struct {
	FromWay osm.WayID
	ToWay   osm.WayID
	ViaNode osm.NodeID
	Only    bool
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges        []RawEdge
	Restrictions []Restriction
	NodeLat      map[osm.NodeID]float64
	NodeLon      map[osm.NodeID]float64
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and
// oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward = true
	backward = true

	hw := tags.Find("highway")
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent — skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// parseRestriction extracts a via-node turn restriction from a
// relation, or returns false if the relation is not one we honour.
func parseRestriction(r *osm.Relation) (Restriction, bool) {
	if r.Tags.Find("type") != "restriction" {
		return Restriction{}, false
	}

	value := r.Tags.Find("restriction")
	if value == "" {
		value = r.Tags.Find("restriction:motorcar")
	}
	var only bool
	switch {
	case strings.HasPrefix(value, "no_"):
		only = false
	case strings.HasPrefix(value, "only_"):
		only = true
	default:
		return Restriction{}, false
	}

	var res Restriction
	res.Only = only
	var haveFrom, haveTo, haveVia bool
	for _, m := range r.Members {
		switch {
		case m.Type == osm.TypeWay && m.Role == "from":
			res.FromWay = osm.WayID(m.Ref)
			haveFrom = true
		case m.Type == osm.TypeWay && m.Role == "to":
			res.ToWay = osm.WayID(m.Ref)
			haveTo = true
		case m.Type == osm.TypeNode && m.Role == "via":
			res.ViaNode = osm.NodeID(m.Ref)
			haveVia = true
		case m.Type == osm.TypeWay && m.Role == "via":
			// Via-way restrictions span multiple junctions; not handled.
			return Restriction{}, false
		}
	}
	if !haveFrom || !haveTo || !haveVia {
		return Restriction{}, false
	}
	return res, true
}

// wayInfo holds parsed way data collected during pass 1.
type wayInfo struct {
	ID       osm.WayID
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter edges to this bounding box
}

// Parse reads an OSM PBF file and returns directed road segments plus
// turn restrictions for car routing. The reader is consumed three
// times (ways, relations, nodes), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}

		if !isCarAccessible(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		ways = append(ways, wayInfo{
			ID:       w.ID,
			NodeIDs:  nodeIDs,
			Forward:  fwd,
			Backward: bwd,
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: scan relations for turn restrictions.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	var restrictions []Restriction
	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipWays = true

	for scanner.Scan() {
		r, ok := scanner.Object().(*osm.Relation)
		if !ok {
			continue
		}
		if res, ok := parseRestriction(r); ok {
			restrictions = append(restrictions, res)
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (relations): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d turn restrictions", len(restrictions))

	// Pass 3: scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 3: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 3 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 3 complete: %d node coordinates collected", len(nodeLat))

	// Build edges from ways.
	var edges []RawEdge
	var skippedEdges, bboxFiltered int

	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			fromLon := nodeLon[fromID]
			toLat, toOk := nodeLat[toID]
			toLon := nodeLon[toID]
			if !fromOk || !toOk {
				skippedEdges++
				continue
			}
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				bboxFiltered++
				continue
			}

			meters := geo.Haversine(fromLat, fromLon, toLat, toLon)
			mm := uint32(math.Round(meters * 1000))
			if mm == 0 {
				mm = 1 // duplicate coordinates still need a positive weight
			}

			edges = append(edges, RawEdge{
				FromNodeID: fromID,
				ToNodeID:   toID,
				WayID:      w.ID,
				Distance:   mm,
				Forward:    w.Forward,
				Backward:   w.Backward,
			})
		}
	}

	if skippedEdges > 0 {
		log.Printf("Skipped %d edges with missing node coordinates", skippedEdges)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d edges outside bounding box", bboxFiltered)
	}

	return &ParseResult{
		Edges:        edges,
		Restrictions: restrictions,
		NodeLat:      nodeLat,
		NodeLon:      nodeLon,
	}, nil
}
