package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

type scopedResult struct {
	table   *domain.FeatureTable
	err     error
	openErr error
}

type extractFake struct {
	path       string
	filter     orb.Geometry
	boundaries []domain.Boundary
	listErr    error
	result     scopedResult
	closed     *int
	mu         *sync.Mutex
}

func (f *extractFake) Path() string         { return f.path }
func (f *extractFake) Filter() orb.Geometry { return f.filter }

func (f *extractFake) ListBoundaries(context.Context) ([]domain.Boundary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.boundaries, nil
}

func (f *extractFake) Features(_ context.Context, kind domain.FeatureKind, mode string) (*domain.FeatureTable, error) {
	if f.result.err != nil {
		return nil, f.result.err
	}
	if f.result.table == nil {
		return domain.NewFeatureTable(kind, mode), nil
	}
	return f.result.table, nil
}

func (f *extractFake) Close() error {
	if f.closed != nil {
		f.mu.Lock()
		*f.closed++
		f.mu.Unlock()
	}
	return nil
}

type openerFake struct {
	mu      sync.Mutex
	results map[orb.Bound]scopedResult
	opened  []string
	closed  int
}

func newOpenerFake() *openerFake {
	return &openerFake{results: map[orb.Bound]scopedResult{}}
}

func (o *openerFake) Open(_ context.Context, path string, filter orb.Geometry) (ports.Extract, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if filter == nil {
		return nil, errors.New("fake opener expects a filter")
	}
	res, ok := o.results[filter.Bound()]
	if !ok {
		return nil, errors.New("fake opener: unexpected filter")
	}
	if res.openErr != nil {
		return nil, res.openErr
	}
	o.opened = append(o.opened, path)
	return &extractFake{path: path, filter: filter, result: res, closed: &o.closed, mu: &o.mu}, nil
}

func buildingsTable(tags ...string) *domain.FeatureTable {
	table := domain.NewFeatureTable(domain.KindBuildings, "")
	for i, tag := range tags {
		table.Records = append(table.Records, domain.FeatureRecord{
			OSMType: "way", OSMID: int64(i + 1), Kind: domain.KindBuildings, Tag: tag,
		})
	}
	return table
}

// parentWith registers one square boundary per name, each mapped to its scoped result.
func parentWith(opener *openerFake, names []string, results []scopedResult) *extractFake {
	parent := &extractFake{path: "/data/region.osm.pbf"}
	for i, name := range names {
		geom := square(float64(i*2), 0)
		parent.boundaries = append(parent.boundaries, domain.Boundary{Name: name, OSMID: int64(100 + i), Geometry: geom})
		opener.results[geom.Bound()] = results[i]
	}
	return parent
}
