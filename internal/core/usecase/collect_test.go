package usecase

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

type observerFake struct {
	mu       sync.Mutex
	outcomes map[BoundaryOutcome]int
}

func (o *observerFake) ObserveBoundary(_ domain.FeatureKind, outcome BoundaryOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[BoundaryOutcome]int{}
	}
	o.outcomes[outcome]++
}

func geometryErr() error {
	return domain.WrapError(domain.ErrGeometryEngine, "filter", errors.New("self-intersection"))
}

func TestCollectFeaturesSkipsGeometryFailure(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"Area1", "Area2", "Area3"}
	parent := parentWith(opener, names, []scopedResult{
		{table: buildingsTable("house", "shed")},
		{err: geometryErr()},
		{table: buildingsTable("church")},
	})
	observer := &observerFake{}
	collector := NewFeatureCollector(NewBoundaryResolver(opener), observer)

	res, err := collector.CollectFeatures(context.Background(), parent, names, CollectOptions{})
	if err != nil {
		t.Fatalf("CollectFeatures() error = %v", err)
	}

	if res.Table.Kind != domain.KindBuildings {
		t.Fatalf("expected buildings by default, got %s", res.Table.Kind)
	}
	var aois []string
	for _, rec := range res.Table.Records {
		aois = append(aois, rec.AOIName)
	}
	if !reflect.DeepEqual(aois, []string{"Area1", "Area1", "Area3"}) {
		t.Fatalf("unexpected row order/AOIs %v", aois)
	}
	if !reflect.DeepEqual(res.Ledger.GeometryFailures, []string{"Area2"}) {
		t.Fatalf("expected Area2 geometry failure, got %v", res.Ledger.GeometryFailures)
	}
	if len(res.Ledger.EmptyFailures) != 0 {
		t.Fatalf("expected no empty failures, got %v", res.Ledger.EmptyFailures)
	}
	if opener.closed != 3 {
		t.Fatalf("expected every scoped extract closed, got %d", opener.closed)
	}
	if observer.outcomes[OutcomeSuccess] != 2 || observer.outcomes[OutcomeGeometryFailure] != 1 {
		t.Fatalf("unexpected observed outcomes %v", observer.outcomes)
	}
}

func TestCollectFeaturesRecordsEmptyResults(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"Moor", "Town", "Sea"}
	parent := parentWith(opener, names, []scopedResult{
		{err: domain.WrapError(domain.ErrEmptyResult, "extract", errors.New("no buildings"))},
		{table: buildingsTable("house")},
		{},
	})

	res, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, names, CollectOptions{})
	if err != nil {
		t.Fatalf("CollectFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(res.Ledger.EmptyFailures, []string{"Moor", "Sea"}) {
		t.Fatalf("unexpected empty failures %v", res.Ledger.EmptyFailures)
	}
	if !reflect.DeepEqual(res.Succeeded(), []string{"Town"}) {
		t.Fatalf("unexpected successes %v", res.Succeeded())
	}
}

func TestCollectFeaturesUnsupportedGeometryIsAGeometryFailure(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"Good", "Odd"}
	parent := parentWith(opener, names, []scopedResult{{table: buildingsTable("house")}, {}})
	parent.boundaries[1].Geometry = nil

	res, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, names, CollectOptions{})
	if err != nil {
		t.Fatalf("CollectFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(res.Ledger.GeometryFailures, []string{"Odd"}) {
		t.Fatalf("unexpected geometry failures %v", res.Ledger.GeometryFailures)
	}
}

func TestCollectFeaturesAbortsOnOtherErrors(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"A", "B", "C"}
	ioErr := errors.New("disk on fire")
	parent := parentWith(opener, names, []scopedResult{
		{table: buildingsTable("house")},
		{openErr: ioErr},
		{table: buildingsTable("house")},
	})

	_, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, names, CollectOptions{})
	if !errors.Is(err, ioErr) {
		t.Fatalf("expected batch to abort with %v, got %v", ioErr, err)
	}
}

func TestCollectFeaturesAbortsOnUnknownBoundary(t *testing.T) {
	opener := newOpenerFake()
	parent := parentWith(opener, []string{"A"}, []scopedResult{{table: buildingsTable("house")}})

	_, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, []string{"A", "Missing"}, CollectOptions{})
	if !domain.IsKind(err, domain.ErrBoundaryNotFound) {
		t.Fatalf("expected ErrBoundaryNotFound, got %v", err)
	}
}

func TestCollectFeaturesPartitionIsTotal(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"England", "A", "B", "C", "D", "United Kingdom"}
	parent := parentWith(opener, names, []scopedResult{
		{table: buildingsTable("x")},
		{table: buildingsTable("house")},
		{err: geometryErr()},
		{},
		{table: buildingsTable("shop", "house")},
		{table: buildingsTable("x")},
	})
	denylist, err := CompileDenylist([]string{"england", "united kingdom"})
	if err != nil {
		t.Fatalf("CompileDenylist() error = %v", err)
	}

	for _, workers := range []int{1, 3} {
		res, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
			CollectFeatures(context.Background(), parent, names, CollectOptions{Denylist: denylist, Workers: workers})
		if err != nil {
			t.Fatalf("workers=%d: CollectFeatures() error = %v", workers, err)
		}

		if !reflect.DeepEqual(res.Names, []string{"A", "B", "C", "D"}) {
			t.Fatalf("workers=%d: unexpected cleaned names %v", workers, res.Names)
		}
		seen := map[string]int{}
		for _, group := range [][]string{res.Succeeded(), res.Ledger.GeometryFailures, res.Ledger.EmptyFailures} {
			for _, name := range group {
				seen[name]++
			}
		}
		var union []string
		for name, n := range seen {
			if n != 1 {
				t.Fatalf("workers=%d: %s appears in %d partitions", workers, name, n)
			}
			union = append(union, name)
		}
		sort.Strings(union)
		if !reflect.DeepEqual(union, res.Names) {
			t.Fatalf("workers=%d: partition union %v != input %v", workers, union, res.Names)
		}
		if !reflect.DeepEqual(res.Succeeded(), []string{"A", "D"}) {
			t.Fatalf("workers=%d: expected input order kept, got %v", workers, res.Succeeded())
		}
	}
}

func TestCollectFeaturesSkipCleanKeepsAllNames(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"England", "Leeds"}
	parent := parentWith(opener, names, []scopedResult{{table: buildingsTable("a")}, {table: buildingsTable("b")}})
	denylist, _ := CompileDenylist([]string{"england"})

	res, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, names, CollectOptions{Denylist: denylist, SkipClean: true})
	if err != nil {
		t.Fatalf("CollectFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(res.Succeeded(), names) {
		t.Fatalf("expected both names processed, got %v", res.Succeeded())
	}
}

func TestCollectFeaturesAllFailedReturnsEmptyTable(t *testing.T) {
	opener := newOpenerFake()
	names := []string{"A", "B"}
	parent := parentWith(opener, names, []scopedResult{{err: geometryErr()}, {}})

	res, err := NewFeatureCollector(NewBoundaryResolver(opener), nil).
		CollectFeatures(context.Background(), parent, names, CollectOptions{Kind: domain.KindLanduse})
	if err != nil {
		t.Fatalf("CollectFeatures() error = %v", err)
	}
	if res.Table == nil || res.Table.Len() != 0 || res.Table.Kind != domain.KindLanduse {
		t.Fatalf("expected empty landuse table, got %+v", res.Table)
	}
	if res.Ledger.Len() != 2 {
		t.Fatalf("expected both names in the ledger, got %+v", res.Ledger)
	}
}
