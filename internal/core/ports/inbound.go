package ports

import (
	"context"
	"time"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// CityBuilder is the inbound contract for building every dataset of one configured city.
type CityBuilder interface {
	BuildByName(ctx context.Context, runID, city string, vintage time.Time) (*domain.CityRun, error)
}

// DatasetReader is the dashboard read model over persisted datasets.
type DatasetReader interface {
	List(ctx context.Context, area, kind string) ([]domain.Dataset, error)
	Summary(ctx context.Context, name, column string) ([]domain.SummaryRow, error)
	NetworkLength(ctx context.Context, name string) ([]domain.LengthRow, error)
}

// TagClassifierService classifies raw tag values with a named taxonomy.
type TagClassifierService interface {
	ClassifyValues(taxonomy string, values []string) ([]string, error)
	Names() []string
}

// CityJobPublisher enqueues city builds for the worker.
type CityJobPublisher interface {
	Enqueue(ctx context.Context, city string, vintage time.Time) (domain.CityJob, error)
}

// RunReader exposes recorded city runs.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.CityRun, error)
	ListRuns(ctx context.Context, city string, limit int) ([]domain.CityRun, error)
}
