package ports

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// ExtractOpener opens a source extract, optionally scoped to a polygon filter.
type ExtractOpener interface {
	Open(ctx context.Context, path string, filter orb.Geometry) (Extract, error)
}

// Extract is a (possibly spatially filtered) view over one .osm.pbf source.
type Extract interface {
	Path() string
	Filter() orb.Geometry
	ListBoundaries(ctx context.Context) ([]domain.Boundary, error)
	Features(ctx context.Context, kind domain.FeatureKind, networkMode string) (*domain.FeatureTable, error)
	Close() error
}

// DatasetStore persists feature tables under dataset file names.
type DatasetStore interface {
	SaveTable(ctx context.Context, ds domain.Dataset, table *domain.FeatureTable) error
	LoadTable(ctx context.Context, name string) (*domain.FeatureTable, error)
	List(ctx context.Context, pattern string) ([]string, error)
	// Delete removes a stored file by name; a missing file is not an error.
	Delete(ctx context.Context, name string) error
}

// SummaryExporter writes per-layer summary sheets for one area.
type SummaryExporter interface {
	ExportSummaries(ctx context.Context, ds domain.Dataset, sheets map[string][]domain.SummaryRow) error
}

// RunRecorder keeps a queryable record of city runs and their outputs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *domain.CityRun) error
	SaveFeatures(ctx context.Context, runID string, ds domain.Dataset, table *domain.FeatureTable) error
	SaveSummary(ctx context.Context, runID string, ds domain.Dataset, rows []domain.SummaryRow) error
}

// JobQueue publishes/consumes city build requests.
type JobQueue interface {
	PublishCityRequested(ctx context.Context, job domain.CityJob) error
	SubscribeCityRequested(ctx context.Context, handler func(context.Context, domain.CityJob) error) error
}
