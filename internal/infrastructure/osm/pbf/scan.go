package pbf

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// Progress receives scan progress in bytes of the source file.
type Progress interface {
	Start(label string, total int64) ProgressBar
}

type ProgressBar interface {
	SetCurrent(n int64)
	Finish()
}

type noProgress struct{}

func (noProgress) Start(string, int64) ProgressBar { return noProgress{} }
func (noProgress) SetCurrent(int64)                {}
func (noProgress) Finish()                         {}

// query selects the relations and standalone ways a gather pass collects.
// Both predicates run on decoder goroutines and must not mutate shared state.
type query struct {
	label    string
	relation func(*osm.Relation) bool
	way      func(*osm.Way) bool
}

// gathered holds the objects matched by a query with their node coordinates resolved.
type gathered struct {
	relations  []*osm.Relation
	ways       map[osm.WayID]*osm.Way
	standalone []osm.WayID
	nodes      map[osm.NodeID]orb.Point
}

// segment resolves a way's coordinates; ok is false when a node is missing from the extract.
func (g *gathered) segment(id osm.WayID) (segment, bool) {
	way, found := g.ways[id]
	if !found {
		return segment{}, false
	}
	s := segment{ids: make([]osm.NodeID, 0, len(way.Nodes)), points: make([]orb.Point, 0, len(way.Nodes))}
	for _, wn := range way.Nodes {
		p, ok := g.nodes[wn.ID]
		if !ok {
			return segment{}, false
		}
		s.ids = append(s.ids, wn.ID)
		s.points = append(s.points, p)
	}
	return s, true
}

// gather runs up to three passes over path: relations, then ways (members of
// the matched relations plus standalone matches), then the nodes of those ways.
func (o *Opener) gather(ctx context.Context, path string, q query) (*gathered, error) {
	g := &gathered{ways: map[osm.WayID]*osm.Way{}, nodes: map[osm.NodeID]orb.Point{}}

	memberWays := map[osm.WayID]struct{}{}
	if q.relation != nil {
		err := o.scan(ctx, path, q.label+" relations", func(s *osmpbf.Scanner) {
			s.SkipNodes = true
			s.SkipWays = true
			s.FilterRelation = q.relation
		}, func(obj osm.Object) {
			rel, ok := obj.(*osm.Relation)
			if !ok {
				return
			}
			g.relations = append(g.relations, rel)
			for _, m := range rel.Members {
				if m.Type == osm.TypeWay {
					memberWays[osm.WayID(m.Ref)] = struct{}{}
				}
			}
		})
		if err != nil {
			return nil, err
		}
	}

	err := o.scan(ctx, path, q.label+" ways", func(s *osmpbf.Scanner) {
		s.SkipNodes = true
		s.SkipRelations = true
		s.FilterWay = func(w *osm.Way) bool {
			if _, ok := memberWays[w.ID]; ok {
				return true
			}
			return q.way != nil && q.way(w)
		}
	}, func(obj osm.Object) {
		way, ok := obj.(*osm.Way)
		if !ok {
			return
		}
		g.ways[way.ID] = way
		if q.way != nil && q.way(way) {
			g.standalone = append(g.standalone, way.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	needed := map[osm.NodeID]struct{}{}
	for _, way := range g.ways {
		for _, wn := range way.Nodes {
			needed[wn.ID] = struct{}{}
		}
	}
	if len(needed) == 0 {
		return g, nil
	}
	err = o.scan(ctx, path, q.label+" nodes", func(s *osmpbf.Scanner) {
		s.SkipWays = true
		s.SkipRelations = true
		s.FilterNode = func(n *osm.Node) bool {
			_, ok := needed[n.ID]
			return ok
		}
	}, func(obj osm.Object) {
		if node, ok := obj.(*osm.Node); ok {
			g.nodes[node.ID] = node.Point()
		}
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (o *Opener) scan(
	ctx context.Context,
	path, label string,
	configure func(*osmpbf.Scanner),
	visit func(osm.Object),
) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var size int64
	if stat, err := file.Stat(); err == nil {
		size = stat.Size()
	}

	scanner := osmpbf.New(ctx, file, o.procs)
	defer scanner.Close()
	configure(scanner)

	bar := o.progress.Start(label, size)
	for scanner.Scan() {
		bar.SetCurrent(scanner.FullyScannedBytes())
		visit(scanner.Object())
	}
	bar.Finish()

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.WrapError(domain.ErrSourceData, "scan "+label, fmt.Errorf("%s: %w", path, err))
	}
	return nil
}
