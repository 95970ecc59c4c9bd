package pbf

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// segment is a resolved way: node ids paired with their coordinates.
type segment struct {
	ids    []osm.NodeID
	points []orb.Point
}

func (s segment) first() osm.NodeID { return s.ids[0] }
func (s segment) last() osm.NodeID  { return s.ids[len(s.ids)-1] }

func (s segment) closed() bool {
	return len(s.ids) >= 4 && s.first() == s.last()
}

func (s segment) reversed() segment {
	out := segment{ids: make([]osm.NodeID, len(s.ids)), points: make([]orb.Point, len(s.points))}
	for i := range s.ids {
		out.ids[len(s.ids)-1-i] = s.ids[i]
		out.points[len(s.points)-1-i] = s.points[i]
	}
	return out
}

var errOpenRing = errors.New("ring does not close")

// assembleRings joins way segments end to end into closed rings.
func assembleRings(segments []segment) ([]orb.Ring, error) {
	pending := make([]segment, 0, len(segments))
	for _, s := range segments {
		if len(s.ids) >= 2 {
			pending = append(pending, s)
		}
	}

	var rings []orb.Ring
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		for !current.closed() {
			next := -1
			for i, candidate := range pending {
				switch current.last() {
				case candidate.first():
					next = i
				case candidate.last():
					next = i
					pending[i] = candidate.reversed()
				}
				if next >= 0 {
					break
				}
			}
			if next < 0 {
				return nil, fmt.Errorf("%w at node %d", errOpenRing, current.last())
			}
			joined := pending[next]
			current = segment{
				ids:    append(append([]osm.NodeID{}, current.ids...), joined.ids[1:]...),
				points: append(append([]orb.Point{}, current.points...), joined.points[1:]...),
			}
			pending = append(pending[:next], pending[next+1:]...)
		}
		rings = append(rings, orb.Ring(current.points))
	}
	return rings, nil
}

// buildArea turns outer and inner member ways into a Polygon, or a
// MultiPolygon when there is more than one outer ring. Inner rings outside
// every outer ring are dropped.
func buildArea(outer, inner []segment) (orb.Geometry, error) {
	outerRings, err := assembleRings(outer)
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeometryEngine, "assemble outer rings", err)
	}
	if len(outerRings) == 0 {
		return nil, domain.WrapError(domain.ErrGeometryEngine, "assemble outer rings", errors.New("no outer ring"))
	}
	innerRings, err := assembleRings(inner)
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeometryEngine, "assemble inner rings", err)
	}

	polygons := make(orb.MultiPolygon, len(outerRings))
	for i, ring := range outerRings {
		polygons[i] = orb.Polygon{ring}
	}
	for _, hole := range innerRings {
		for i := range polygons {
			if planar.RingContains(polygons[i][0], hole[0]) {
				polygons[i] = append(polygons[i], hole)
				break
			}
		}
	}
	if len(polygons) == 1 {
		return polygons[0], nil
	}
	return polygons, nil
}

// validateFilter checks a spatial filter is an areal geometry made of closed rings.
func validateFilter(filter orb.Geometry) error {
	var polygons orb.MultiPolygon
	switch g := filter.(type) {
	case orb.Polygon:
		polygons = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		polygons = g
	default:
		return domain.WrapError(domain.ErrGeometryEngine, "validate filter", fmt.Errorf("filter must be areal, got %T", filter))
	}
	if len(polygons) == 0 {
		return domain.WrapError(domain.ErrGeometryEngine, "validate filter", errors.New("empty filter"))
	}
	for _, polygon := range polygons {
		if len(polygon) == 0 {
			return domain.WrapError(domain.ErrGeometryEngine, "validate filter", errors.New("polygon without rings"))
		}
		for _, ring := range polygon {
			if len(ring) < 4 || !ring.Closed() {
				return domain.WrapError(domain.ErrGeometryEngine, "validate filter", errors.New("ring is not closed"))
			}
		}
	}
	return nil
}

// contains reports whether point lies inside an areal filter. A nil filter contains everything.
func contains(filter orb.Geometry, point orb.Point) bool {
	switch g := filter.(type) {
	case nil:
		return true
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, point)
	default:
		return false
	}
}

func centroid(g orb.Geometry) orb.Point {
	switch g := g.(type) {
	case nil:
		return orb.Point{}
	case orb.Polygon, orb.MultiPolygon:
		c, _ := planar.CentroidArea(g)
		return c
	case orb.LineString:
		if len(g) == 0 {
			return orb.Point{}
		}
		return g[len(g)/2]
	default:
		return g.Bound().Center()
	}
}

func errMissingMember(ref int64) error {
	return fmt.Errorf("member way %d is missing or incomplete", ref)
}
