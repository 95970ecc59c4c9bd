package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

const extractSuffix = ".osm.pbf"

// CityTarget is one city to build from a local extract.
type CityTarget struct {
	Name    string
	Extract string
	// AOI splits the polygon layers by the extract's boundary catalogue.
	AOI        bool
	Boundaries []string
}

type BuildCityOptions struct {
	NetworkModes []string
	Denylist     *regexp.Regexp
	// Taxonomies is keyed by feature kind; kinds without one keep their raw tag as category.
	Taxonomies map[string]domain.Taxonomy
	Workers    int
}

// RunObserver receives per-city outcomes.
type RunObserver interface {
	ObserveCityRun(status domain.RunStatus, duration time.Duration)
	ObserveFeatures(kind domain.FeatureKind, count int)
}

type BuildCityUseCase struct {
	opener    ports.ExtractOpener
	collector *FeatureCollector
	store     ports.DatasetStore
	exporter  ports.SummaryExporter
	recorder  ports.RunRecorder
	observer  RunObserver
	cities    []CityTarget
	opts      BuildCityOptions
	now       func() time.Time
}

// NewBuildCityUseCase wires the builder. exporter, recorder and observer may be nil.
func NewBuildCityUseCase(
	opener ports.ExtractOpener,
	collector *FeatureCollector,
	store ports.DatasetStore,
	exporter ports.SummaryExporter,
	recorder ports.RunRecorder,
	observer RunObserver,
	cities []CityTarget,
	opts BuildCityOptions,
) *BuildCityUseCase {
	return &BuildCityUseCase{
		opener:    opener,
		collector: collector,
		store:     store,
		exporter:  exporter,
		recorder:  recorder,
		observer:  observer,
		cities:    cities,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// layerOutput is one dataset held in memory until every layer of the city succeeded.
type layerOutput struct {
	dataset   domain.Dataset
	table     *domain.FeatureTable
	summary   []domain.SummaryRow
	sheetName string
}

// Cities returns the configured targets in configuration order.
func (uc *BuildCityUseCase) Cities() []CityTarget {
	return append([]CityTarget(nil), uc.cities...)
}

func (uc *BuildCityUseCase) City(name string) (CityTarget, error) {
	for _, city := range uc.cities {
		if strings.EqualFold(city.Name, name) {
			return city, nil
		}
	}
	return CityTarget{}, domain.WrapError(domain.ErrNotFound, "lookup city", fmt.Errorf("city %q is not configured", name))
}

func (uc *BuildCityUseCase) BuildByName(ctx context.Context, runID, name string, vintage time.Time) (*domain.CityRun, error) {
	city, err := uc.City(name)
	if err != nil {
		return nil, err
	}
	return uc.Build(ctx, runID, city, vintage)
}

// RunAll builds every configured city in order. Cities whose source data is
// unreadable are dropped and reported; any other failure stops the batch.
func (uc *BuildCityUseCase) RunAll(ctx context.Context, vintage time.Time) ([]*domain.CityRun, error) {
	runs := make([]*domain.CityRun, 0, len(uc.cities))
	for _, city := range uc.cities {
		run, err := uc.Build(ctx, "", city, vintage)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			if domain.IsKind(err, domain.ErrSourceData) {
				continue
			}
			return runs, err
		}
	}
	return runs, nil
}

// Build extracts, classifies and summarises every layer of one city, then
// persists all of them. Nothing is left on disk unless the whole city succeeded.
func (uc *BuildCityUseCase) Build(ctx context.Context, runID string, city CityTarget, vintage time.Time) (*domain.CityRun, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	if vintage.IsZero() {
		vintage = uc.now()
	}
	started := uc.now()
	run := &domain.CityRun{
		RunID:     runID,
		City:      city.Name,
		Status:    domain.RunStatusRunning,
		Vintage:   vintage.UTC().Truncate(24 * time.Hour),
		Datasets:  []string{},
		Ledgers:   map[string]domain.FailureLedger{},
		StartedAt: started,
	}
	uc.recordRun(ctx, run)

	outputs, err := uc.extractLayers(ctx, city, run)
	if err == nil {
		err = uc.persist(ctx, run, city, outputs)
	}
	return uc.finish(ctx, run, err)
}

func (uc *BuildCityUseCase) finish(ctx context.Context, run *domain.CityRun, err error) (*domain.CityRun, error) {
	run.FinishedAt = uc.now()
	switch {
	case err == nil:
		run.Status = domain.RunStatusSucceeded
		slog.Info("city_built", "run_id", run.RunID, "city", run.City, "datasets", len(run.Datasets), "duration", run.FinishedAt.Sub(run.StartedAt))
	case domain.IsKind(err, domain.ErrSourceData):
		run.Status = domain.RunStatusDropped
		run.Datasets = []string{}
		run.Error = err.Error()
		slog.Warn("city_dropped", "run_id", run.RunID, "city", run.City, "error", err)
	default:
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		slog.Error("city_failed", "run_id", run.RunID, "city", run.City, "error", err)
	}
	if uc.observer != nil {
		uc.observer.ObserveCityRun(run.Status, run.FinishedAt.Sub(run.StartedAt))
	}
	uc.recordRun(ctx, run)
	return run, err
}

func (uc *BuildCityUseCase) extractLayers(ctx context.Context, city CityTarget, run *domain.CityRun) ([]layerOutput, error) {
	if err := validateExtractPath(city.Extract); err != nil {
		return nil, err
	}
	parent, err := uc.opener.Open(ctx, city.Extract, nil)
	if err != nil {
		return nil, fmt.Errorf("open extract %s: %w", city.Extract, err)
	}
	defer func() {
		if closeErr := parent.Close(); closeErr != nil {
			slog.Warn("extract_close_failed", "path", city.Extract, "error", closeErr)
		}
	}()

	var outputs []layerOutput
	for _, mode := range uc.opts.NetworkModes {
		out, ok, err := uc.networkLayer(ctx, parent, city, run, mode)
		if err != nil {
			return nil, err
		}
		if ok {
			outputs = append(outputs, out)
		}
	}

	var aoiNames []string
	if city.AOI {
		aoiNames, err = uc.aoiNames(ctx, parent, city)
		if err != nil {
			return nil, err
		}
	}

	kinds := []domain.FeatureKind{domain.KindLanduse, domain.KindNatural}
	if city.AOI {
		kinds = append(kinds, domain.KindBuildings)
	}
	for _, kind := range kinds {
		out, ok, err := uc.polygonLayer(ctx, parent, city, run, kind, aoiNames)
		if err != nil {
			return nil, err
		}
		if ok {
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}

func (uc *BuildCityUseCase) networkLayer(
	ctx context.Context,
	parent ports.Extract,
	city CityTarget,
	run *domain.CityRun,
	mode string,
) (layerOutput, bool, error) {
	table, err := parent.Features(ctx, domain.KindNetwork, mode)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmptyResult) {
			slog.Info("layer_empty", "city", city.Name, "kind", string(domain.KindNetwork), "mode", mode)
			return layerOutput{}, false, nil
		}
		return layerOutput{}, false, fmt.Errorf("extract %s network: %w", mode, err)
	}
	if table.Len() == 0 {
		return layerOutput{}, false, nil
	}
	table = table.WithAOIName(city.Name)
	return layerOutput{
		dataset: domain.NewDataset(city.Name, domain.KindNetwork, mode, run.Vintage),
		table:   table,
	}, true, nil
}

func (uc *BuildCityUseCase) polygonLayer(
	ctx context.Context,
	parent ports.Extract,
	city CityTarget,
	run *domain.CityRun,
	kind domain.FeatureKind,
	aoiNames []string,
) (layerOutput, bool, error) {
	ds := domain.NewDataset(city.Name, kind, "", run.Vintage)

	var table *domain.FeatureTable
	if city.AOI {
		result, err := uc.collector.CollectFeatures(ctx, parent, aoiNames, CollectOptions{
			Kind:      kind,
			SkipClean: true,
			Workers:   uc.opts.Workers,
		})
		if err != nil {
			return layerOutput{}, false, err
		}
		run.Ledgers[ds.Kind] = result.Ledger
		table = result.Table
	} else {
		whole, err := parent.Features(ctx, kind, "")
		if err != nil {
			if domain.IsKind(err, domain.ErrEmptyResult) {
				slog.Info("layer_empty", "city", city.Name, "kind", string(kind))
				return layerOutput{}, false, nil
			}
			return layerOutput{}, false, fmt.Errorf("extract %s: %w", kind, err)
		}
		table = whole.WithAOIName(city.Name)
	}
	if table.Len() == 0 {
		slog.Info("layer_empty", "city", city.Name, "kind", string(kind))
		return layerOutput{}, false, nil
	}

	summaryColumn := domain.ColumnTag
	if taxonomy, ok := uc.opts.Taxonomies[string(kind)]; ok {
		reclassified, err := ReclassifyTable(table, taxonomy, domain.ColumnTag)
		if err != nil {
			return layerOutput{}, false, fmt.Errorf("reclassify %s: %w", kind, err)
		}
		table = reclassified
		summaryColumn = domain.ColumnCategory
	}
	summary, err := Summarize(table, summaryColumn)
	if err != nil {
		return layerOutput{}, false, fmt.Errorf("summarize %s: %w", kind, err)
	}
	return layerOutput{dataset: ds, table: table, summary: summary, sheetName: string(kind)}, true, nil
}

// aoiNames lists the boundaries to split polygon layers by, denylist applied.
func (uc *BuildCityUseCase) aoiNames(ctx context.Context, parent ports.Extract, city CityTarget) ([]string, error) {
	names := city.Boundaries
	if len(names) == 0 {
		boundaries, err := parent.ListBoundaries(ctx)
		if err != nil {
			return nil, fmt.Errorf("list boundaries: %w", err)
		}
		names = BoundaryNames(boundaries)
	}
	return CleanAOINames(names, uc.opts.Denylist), nil
}

// persist writes every layer, the summary workbook and the run records. A
// failure part way removes the files already written so a failed city leaves
// no partial output.
func (uc *BuildCityUseCase) persist(ctx context.Context, run *domain.CityRun, city CityTarget, outputs []layerOutput) error {
	if err := uc.writeOutputs(ctx, run, city, outputs); err != nil {
		uc.rollback(ctx, run)
		return err
	}
	return nil
}

func (uc *BuildCityUseCase) writeOutputs(ctx context.Context, run *domain.CityRun, city CityTarget, outputs []layerOutput) error {
	sheets := make(map[string][]domain.SummaryRow)
	for _, out := range outputs {
		if err := uc.store.SaveTable(ctx, out.dataset, out.table); err != nil {
			return fmt.Errorf("save dataset %s: %w", out.dataset.FileName(), err)
		}
		run.Datasets = append(run.Datasets, out.dataset.FileName())
		if out.sheetName != "" {
			sheets[out.sheetName] = out.summary
		}
	}

	summaryDS := domain.NewSummaryDataset(city.Name, run.Vintage)
	if uc.exporter != nil && len(sheets) > 0 {
		if err := uc.exporter.ExportSummaries(ctx, summaryDS, sheets); err != nil {
			return fmt.Errorf("export summaries: %w", err)
		}
		run.Datasets = append(run.Datasets, summaryDS.FileName())
	}

	if uc.recorder != nil {
		for _, out := range outputs {
			if err := uc.recorder.SaveFeatures(ctx, run.RunID, out.dataset, out.table); err != nil {
				return fmt.Errorf("record features %s: %w", out.dataset.FileName(), err)
			}
			if len(out.summary) == 0 {
				continue
			}
			if err := uc.recorder.SaveSummary(ctx, run.RunID, out.dataset, out.summary); err != nil {
				return fmt.Errorf("record summary %s: %w", out.dataset.FileName(), err)
			}
		}
	}

	if uc.observer != nil {
		for _, out := range outputs {
			uc.observer.ObserveFeatures(out.table.Kind, out.table.Len())
		}
	}
	return nil
}

// rollback deletes the files listed on run, newest first, and clears the list.
func (uc *BuildCityUseCase) rollback(ctx context.Context, run *domain.CityRun) {
	// cleanup must run even when the build was cancelled
	ctx = context.WithoutCancel(ctx)
	for i := len(run.Datasets) - 1; i >= 0; i-- {
		name := run.Datasets[i]
		if err := uc.store.Delete(ctx, name); err != nil {
			slog.Warn("dataset_rollback_failed", "run_id", run.RunID, "dataset", name, "error", err)
		}
	}
	run.Datasets = []string{}
}

func (uc *BuildCityUseCase) recordRun(ctx context.Context, run *domain.CityRun) {
	if uc.recorder == nil {
		return
	}
	if err := uc.recorder.SaveRun(ctx, run); err != nil {
		slog.Warn("run_record_failed", "run_id", run.RunID, "status", string(run.Status), "error", err)
	}
}

func validateExtractPath(path string) error {
	if !strings.HasSuffix(strings.ToLower(path), extractSuffix) {
		return domain.WrapError(domain.ErrInvalidInput, "validate extract", fmt.Errorf("%q is not a %s file", path, extractSuffix))
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.WrapError(domain.ErrNotFound, "validate extract", fmt.Errorf("extract %q does not exist", path))
		}
		return fmt.Errorf("stat extract %s: %w", path, err)
	}
	return nil
}
