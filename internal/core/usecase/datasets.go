package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

// DatasetService is the read side the dashboard loads datasets through.
type DatasetService struct {
	store ports.DatasetStore
}

func NewDatasetService(store ports.DatasetStore) *DatasetService {
	return &DatasetService{store: store}
}

// List returns the persisted datasets for area (all areas when empty),
// optionally restricted to one layer, ordered by area, layer and newest vintage first.
func (s *DatasetService) List(ctx context.Context, area, kind string) ([]domain.Dataset, error) {
	names, err := s.store.List(ctx, domain.GlobPattern(area))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	out := make([]domain.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := domain.ParseDatasetName(name)
		if err != nil {
			slog.Debug("dataset_name_skipped", "name", name, "error", err)
			continue
		}
		if kind != "" && ds.Kind != kind {
			continue
		}
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AreaSlug != out[j].AreaSlug {
			return out[i].AreaSlug < out[j].AreaSlug
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Vintage.After(out[j].Vintage)
	})
	return out, nil
}

// Latest returns the newest dataset of one layer for area.
func (s *DatasetService) Latest(ctx context.Context, area, kind string) (domain.Dataset, error) {
	datasets, err := s.List(ctx, area, kind)
	if err != nil {
		return domain.Dataset{}, err
	}
	if len(datasets) == 0 {
		return domain.Dataset{}, domain.WrapError(domain.ErrNotFound, "latest dataset", fmt.Errorf("no %s dataset for %q", kind, area))
	}
	return datasets[0], nil
}

// Summary loads one dataset file and summarises it by column (category when empty).
func (s *DatasetService) Summary(ctx context.Context, name, column string) ([]domain.SummaryRow, error) {
	if strings.TrimSpace(column) == "" {
		column = domain.ColumnCategory
	}
	table, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return Summarize(table, column)
}

// NetworkLength totals the edge length of a network dataset per AOI.
func (s *DatasetService) NetworkLength(ctx context.Context, name string) ([]domain.LengthRow, error) {
	table, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return SummarizeNetworkLength(table)
}

func (s *DatasetService) load(ctx context.Context, name string) (*domain.FeatureTable, error) {
	ds, err := domain.ParseDatasetName(name)
	if err != nil {
		return nil, err
	}
	if ds.IsSummary() || ds.Ext != domain.DatasetExt {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load dataset", fmt.Errorf("%q is not a feature dataset", name))
	}
	table, err := s.store.LoadTable(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", name, err)
	}
	return table, nil
}
