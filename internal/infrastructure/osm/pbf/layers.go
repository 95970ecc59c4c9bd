package pbf

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// layer is the unfiltered content of one feature kind, with the point used
// to test each record against a spatial filter.
type layer struct {
	records   []domain.FeatureRecord
	centroids []orb.Point
}

func (l *layer) add(rec domain.FeatureRecord) {
	l.records = append(l.records, rec)
	l.centroids = append(l.centroids, centroid(rec.Geometry))
}

type catalogue struct {
	boundaries []domain.Boundary
	centroids  []orb.Point
}

// tagKey is the OSM key whose value becomes a record's tag.
func tagKey(kind domain.FeatureKind) string {
	switch kind {
	case domain.KindBuildings:
		return "building"
	case domain.KindNetwork:
		return "highway"
	default:
		return string(kind)
	}
}

func isClosedWay(w *osm.Way) bool {
	n := len(w.Nodes)
	return n >= 4 && w.Nodes[0].ID == w.Nodes[n-1].ID
}

func (o *Opener) loadNetwork(ctx context.Context, path, mode string) (*layer, error) {
	keep, err := networkPredicate(mode)
	if err != nil {
		return nil, err
	}
	g, err := o.gather(ctx, path, query{
		label: "network " + mode,
		way:   func(w *osm.Way) bool { return keep(w.Tags) },
	})
	if err != nil {
		return nil, err
	}

	out := &layer{}
	for _, id := range g.standalone {
		s, ok := g.segment(id)
		if !ok || len(s.points) < 2 {
			continue
		}
		way := g.ways[id]
		line := orb.LineString(s.points)
		out.add(domain.FeatureRecord{
			OSMType:  "way",
			OSMID:    int64(id),
			Kind:     domain.KindNetwork,
			Tag:      way.Tags.Find("highway"),
			Name:     way.Tags.Find("name"),
			LengthM:  geo.Length(line),
			Geometry: line,
		})
	}
	return out, nil
}

func (o *Opener) loadAreas(ctx context.Context, path string, kind domain.FeatureKind) (*layer, error) {
	key := tagKey(kind)
	g, err := o.gather(ctx, path, query{
		label: string(kind),
		relation: func(r *osm.Relation) bool {
			return r.Tags.Find("type") == "multipolygon" && r.Tags.Find(key) != ""
		},
		way: func(w *osm.Way) bool {
			return isClosedWay(w) && w.Tags.Find(key) != ""
		},
	})
	if err != nil {
		return nil, err
	}
	return areaLayer(g, kind), nil
}

// areaLayer builds area records from assembled relations and closed standalone ways.
func areaLayer(g *gathered, kind domain.FeatureKind) *layer {
	key := tagKey(kind)
	out := &layer{}
	// outer ways tagged like their relation (old-style tagging) are already
	// covered by the relation's record
	covered := map[osm.WayID]string{}
	for _, rel := range g.relations {
		area, err := relationArea(g, rel)
		if err != nil {
			slog.Debug("relation_skipped", "relation", int64(rel.ID), "kind", string(kind), "error", err)
			continue
		}
		out.add(areaRecord(kind, "relation", int64(rel.ID), rel.Tags, key, area))
		for _, m := range rel.Members {
			if m.Type == osm.TypeWay && m.Role != "inner" {
				covered[osm.WayID(m.Ref)] = rel.Tags.Find(key)
			}
		}
	}
	for _, id := range g.standalone {
		if tag, ok := covered[id]; ok && tag == g.ways[id].Tags.Find(key) {
			continue
		}
		s, ok := g.segment(id)
		if !ok || !s.closed() {
			continue
		}
		out.add(areaRecord(kind, "way", int64(id), g.ways[id].Tags, key, orb.Polygon{orb.Ring(s.points)}))
	}
	return out
}

func areaRecord(kind domain.FeatureKind, osmType string, id int64, tags osm.Tags, key string, area orb.Geometry) domain.FeatureRecord {
	return domain.FeatureRecord{
		OSMType:  osmType,
		OSMID:    id,
		Kind:     kind,
		Tag:      tags.Find(key),
		Name:     tags.Find("name"),
		AreaM2:   geo.Area(area),
		Geometry: area,
	}
}

func (o *Opener) loadBoundaries(ctx context.Context, path string) (*catalogue, error) {
	isBoundary := func(tags osm.Tags) bool {
		return tags.Find("boundary") == "administrative" && tags.Find("name") != ""
	}
	g, err := o.gather(ctx, path, query{
		label: "boundaries",
		relation: func(r *osm.Relation) bool {
			t := r.Tags.Find("type")
			return (t == "boundary" || t == "multipolygon") && isBoundary(r.Tags)
		},
		way: func(w *osm.Way) bool { return isClosedWay(w) && isBoundary(w.Tags) },
	})
	if err != nil {
		return nil, err
	}

	out := &catalogue{}
	add := func(b domain.Boundary) {
		out.boundaries = append(out.boundaries, b)
		if b.Geometry != nil {
			out.centroids = append(out.centroids, centroid(b.Geometry))
		} else {
			out.centroids = append(out.centroids, orb.Point{})
		}
	}
	for _, rel := range g.relations {
		b := domain.Boundary{
			Name:       rel.Tags.Find("name"),
			OSMID:      int64(rel.ID),
			AdminLevel: rel.Tags.Find("admin_level"),
		}
		area, err := relationArea(g, rel)
		if err != nil {
			// kept without geometry so resolving it reports a geometry failure
			slog.Debug("boundary_unassembled", "relation", int64(rel.ID), "name", b.Name, "error", err)
		} else {
			b.Geometry = area
		}
		add(b)
	}
	for _, id := range g.standalone {
		s, ok := g.segment(id)
		if !ok || !s.closed() {
			continue
		}
		way := g.ways[id]
		add(domain.Boundary{
			Name:       way.Tags.Find("name"),
			OSMID:      int64(id),
			AdminLevel: way.Tags.Find("admin_level"),
			Geometry:   orb.Polygon{orb.Ring(s.points)},
		})
	}
	return out, nil
}

// relationArea assembles a multipolygon or boundary relation from its member ways.
func relationArea(g *gathered, rel *osm.Relation) (orb.Geometry, error) {
	var outer, inner []segment
	for _, m := range rel.Members {
		if m.Type != osm.TypeWay {
			continue
		}
		s, ok := g.segment(osm.WayID(m.Ref))
		if !ok {
			return nil, domain.WrapError(domain.ErrGeometryEngine, "resolve member way", errMissingMember(m.Ref))
		}
		switch m.Role {
		case "inner":
			inner = append(inner, s)
		case "outer", "":
			outer = append(outer, s)
		}
	}
	return buildArea(outer, inner)
}
