package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

type BoundaryOutcome string

const (
	OutcomeSuccess         BoundaryOutcome = "success"
	OutcomeGeometryFailure BoundaryOutcome = "geometry_failure"
	OutcomeEmptyFailure    BoundaryOutcome = "empty_failure"
)

// CollectObserver is notified once per processed boundary.
type CollectObserver interface {
	ObserveBoundary(kind domain.FeatureKind, outcome BoundaryOutcome)
}

type CollectOptions struct {
	// Kind defaults to buildings.
	Kind        domain.FeatureKind
	NetworkMode string
	// SkipClean disables denylist filtering of the input names.
	SkipClean bool
	Denylist  *regexp.Regexp
	// Workers > 1 processes boundaries concurrently; output order is unchanged.
	Workers int
}

type CollectResult struct {
	Table  *domain.FeatureTable
	Ledger domain.FailureLedger
	// Names is the input after cleaning.
	Names []string
}

// Succeeded lists AOI names that contributed rows, in input order.
func (r CollectResult) Succeeded() []string {
	return r.Table.AOINames()
}

type FeatureCollector struct {
	resolver *BoundaryResolver
	observer CollectObserver
}

func NewFeatureCollector(resolver *BoundaryResolver, observer CollectObserver) *FeatureCollector {
	return &FeatureCollector{resolver: resolver, observer: observer}
}

type boundaryOutcome struct {
	name    string
	outcome BoundaryOutcome
	table   *domain.FeatureTable
}

// CollectFeatures extracts one feature kind per boundary name and folds the
// per-boundary outcomes into a unified table plus a failure ledger. Geometry
// and empty-result failures are recorded and skipped; anything else aborts.
func (c *FeatureCollector) CollectFeatures(
	ctx context.Context,
	parent ports.Extract,
	names []string,
	opts CollectOptions,
) (CollectResult, error) {
	if parent == nil {
		return CollectResult{}, domain.WrapError(domain.ErrArgumentType, "collect features", fmt.Errorf("parent extract is nil"))
	}
	kind := opts.Kind
	if kind == "" {
		kind = domain.KindBuildings
	}
	if !opts.SkipClean {
		names = CleanAOINames(names, opts.Denylist)
	}

	outcomes, err := c.runAll(ctx, parent, names, kind, opts)
	if err != nil {
		return CollectResult{}, err
	}

	result := CollectResult{
		Ledger: domain.FailureLedger{GeometryFailures: []string{}, EmptyFailures: []string{}},
		Names:  names,
	}
	tables := make([]*domain.FeatureTable, 0, len(outcomes))
	for _, o := range outcomes {
		switch o.outcome {
		case OutcomeSuccess:
			tables = append(tables, o.table)
		case OutcomeGeometryFailure:
			result.Ledger.GeometryFailures = append(result.Ledger.GeometryFailures, o.name)
		case OutcomeEmptyFailure:
			result.Ledger.EmptyFailures = append(result.Ledger.EmptyFailures, o.name)
		}
	}

	table, err := domain.ConcatTables(kind, opts.NetworkMode, tables...)
	if err != nil {
		return CollectResult{}, fmt.Errorf("concat aoi tables: %w", err)
	}
	result.Table = table
	return result, nil
}

func (c *FeatureCollector) runAll(
	ctx context.Context,
	parent ports.Extract,
	names []string,
	kind domain.FeatureKind,
	opts CollectOptions,
) ([]boundaryOutcome, error) {
	outcomes := make([]boundaryOutcome, len(names))

	if opts.Workers <= 1 {
		for i, name := range names {
			o, err := c.collectOne(ctx, parent, name, kind, opts.NetworkMode)
			if err != nil {
				return nil, err
			}
			outcomes[i] = o
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			o, err := c.collectOne(gctx, parent, name, kind, opts.NetworkMode)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (c *FeatureCollector) collectOne(
	ctx context.Context,
	parent ports.Extract,
	name string,
	kind domain.FeatureKind,
	networkMode string,
) (boundaryOutcome, error) {
	if err := ctx.Err(); err != nil {
		return boundaryOutcome{}, err
	}

	table, err := c.extractBoundary(ctx, parent, name, kind, networkMode)
	if err != nil {
		outcome, recoverable := failureOutcome(err)
		if !recoverable {
			return boundaryOutcome{}, fmt.Errorf("collect %s for %q: %w", kind, name, err)
		}
		slog.Info("boundary_skipped", "aoi", name, "kind", string(kind), "outcome", string(outcome), "error", err)
		c.observe(kind, outcome)
		return boundaryOutcome{name: name, outcome: outcome}, nil
	}
	if table.Len() == 0 {
		slog.Info("boundary_skipped", "aoi", name, "kind", string(kind), "outcome", string(OutcomeEmptyFailure))
		c.observe(kind, OutcomeEmptyFailure)
		return boundaryOutcome{name: name, outcome: OutcomeEmptyFailure}, nil
	}

	c.observe(kind, OutcomeSuccess)
	return boundaryOutcome{name: name, outcome: OutcomeSuccess, table: table.WithAOIName(name)}, nil
}

func (c *FeatureCollector) extractBoundary(
	ctx context.Context,
	parent ports.Extract,
	name string,
	kind domain.FeatureKind,
	networkMode string,
) (*domain.FeatureTable, error) {
	child, err := c.resolver.Resolve(ctx, parent, ExactNamePattern(name))
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := child.Close(); closeErr != nil {
			slog.Warn("extract_close_failed", "aoi", name, "error", closeErr)
		}
	}()

	table, err := child.Features(ctx, kind, networkMode)
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, domain.WrapError(domain.ErrEmptyResult, "extract "+string(kind), fmt.Errorf("no table for %q", name))
	}
	return table, nil
}

func failureOutcome(err error) (BoundaryOutcome, bool) {
	switch {
	case domain.IsKind(err, domain.ErrGeometryEngine), domain.IsKind(err, domain.ErrUnsupportedGeometry):
		return OutcomeGeometryFailure, true
	case domain.IsKind(err, domain.ErrEmptyResult):
		return OutcomeEmptyFailure, true
	default:
		return "", false
	}
}

func (c *FeatureCollector) observe(kind domain.FeatureKind, outcome BoundaryOutcome) {
	if c.observer != nil {
		c.observer.ObserveBoundary(kind, outcome)
	}
}
