package pbf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

// Opener opens .osm.pbf extracts. Decoded layers are cached per source file
// while any extract of that file is open, so boundary-scoped children share
// the parent's scans and only apply their own spatial filter.
type Opener struct {
	procs    int
	progress Progress

	mu         sync.Mutex
	refs       map[string]int
	layers     map[string]*layer
	catalogues map[string]*catalogue
	loads      singleflight.Group
}

// NewOpener returns an opener decoding with procs goroutines (GOMAXPROCS when <= 0).
// progress may be nil.
func NewOpener(procs int, progress Progress) *Opener {
	if procs <= 0 {
		procs = runtime.GOMAXPROCS(0)
	}
	if progress == nil {
		progress = noProgress{}
	}
	return &Opener{
		procs:      procs,
		progress:   progress,
		refs:       map[string]int{},
		layers:     map[string]*layer{},
		catalogues: map[string]*catalogue{},
	}
}

func (o *Opener) Open(_ context.Context, path string, filter orb.Geometry) (ports.Extract, error) {
	if filter != nil {
		if err := validateFilter(filter); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "open extract", fmt.Errorf("%s does not exist", path))
		}
		return nil, fmt.Errorf("stat extract %s: %w", path, err)
	}

	o.mu.Lock()
	o.refs[path]++
	o.mu.Unlock()
	return &Extract{opener: o, path: path, filter: filter}, nil
}

func (o *Opener) release(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refs[path]--
	if o.refs[path] > 0 {
		return
	}
	delete(o.refs, path)
	prefix := path + "\x00"
	for key := range o.layers {
		if strings.HasPrefix(key, prefix) {
			delete(o.layers, key)
		}
	}
	delete(o.catalogues, path)
}

func (o *Opener) layer(ctx context.Context, path string, kind domain.FeatureKind, mode string) (*layer, error) {
	key := path + "\x00" + string(kind) + "\x00" + mode
	return cachedLoad(o, o.layers, path, key, func() (*layer, error) {
		if kind == domain.KindNetwork {
			return o.loadNetwork(ctx, path, mode)
		}
		return o.loadAreas(ctx, path, kind)
	})
}

func (o *Opener) catalogue(ctx context.Context, path string) (*catalogue, error) {
	return cachedLoad(o, o.catalogues, path, path, func() (*catalogue, error) {
		return o.loadBoundaries(ctx, path)
	})
}

// cachedLoad deduplicates concurrent loads of key and keeps the result while path is open.
func cachedLoad[T any](o *Opener, cache map[string]T, path, key string, load func() (T, error)) (T, error) {
	o.mu.Lock()
	if v, ok := cache[key]; ok {
		o.mu.Unlock()
		return v, nil
	}
	o.mu.Unlock()

	v, err, _ := o.loads.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		if o.refs[path] > 0 {
			cache[key] = loaded
		}
		o.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Extract is a view of one source file, optionally limited to a polygon filter.
type Extract struct {
	opener    *Opener
	path      string
	filter    orb.Geometry
	closeOnce sync.Once
}

func (e *Extract) Path() string         { return e.path }
func (e *Extract) Filter() orb.Geometry { return e.filter }

// ListBoundaries returns the administrative boundaries whose centroid lies within the filter.
func (e *Extract) ListBoundaries(ctx context.Context) ([]domain.Boundary, error) {
	cat, err := e.opener.catalogue(ctx, e.path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Boundary, 0, len(cat.boundaries))
	for i, b := range cat.boundaries {
		if e.filter != nil && (b.Geometry == nil || !contains(e.filter, cat.centroids[i])) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Features returns the records of one kind whose centroid lies within the filter.
func (e *Extract) Features(ctx context.Context, kind domain.FeatureKind, networkMode string) (*domain.FeatureTable, error) {
	switch kind {
	case domain.KindNetwork:
		if _, err := networkPredicate(networkMode); err != nil {
			return nil, err
		}
		networkMode = normalizeMode(networkMode)
	case domain.KindLanduse, domain.KindNatural, domain.KindBuildings:
		networkMode = ""
	default:
		return nil, domain.WrapError(domain.ErrArgumentType, "extract features", fmt.Errorf("unknown kind %q", kind))
	}

	l, err := e.opener.layer(ctx, e.path, kind, networkMode)
	if err != nil {
		return nil, err
	}
	return e.filterLayer(l, kind, networkMode)
}

func (e *Extract) filterLayer(l *layer, kind domain.FeatureKind, networkMode string) (*domain.FeatureTable, error) {
	table := domain.NewFeatureTable(kind, networkMode)
	for i, rec := range l.records {
		if contains(e.filter, l.centroids[i]) {
			table.Records = append(table.Records, rec)
		}
	}
	if table.Len() == 0 {
		return nil, domain.WrapError(domain.ErrEmptyResult, "extract "+string(kind), fmt.Errorf("no %s features in %s", kind, e.path))
	}
	return table, nil
}

func (e *Extract) Close() error {
	e.closeOnce.Do(func() { e.opener.release(e.path) })
	return nil
}
