package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/city-osm-features/internal/config"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
	"github.com/kirillkom/city-osm-features/internal/core/usecase"
	rediscache "github.com/kirillkom/city-osm-features/internal/infrastructure/cache/redis"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/osm/pbf"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/queue/nats"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/resilience"
	"github.com/kirillkom/city-osm-features/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/city-osm-features/internal/observability/metrics"
)

// Options selects the optional infrastructure a binary needs.
type Options struct {
	// Service labels metrics.
	Service string
	// Progress receives pbf scan progress; nil disables it.
	Progress pbf.Progress
	// WithQueue connects to NATS for publishing or consuming city jobs.
	WithQueue bool
}

type App struct {
	Config   config.Config
	Pipeline *config.Pipeline

	Opener     ports.ExtractOpener
	Builder    *usecase.BuildCityUseCase
	Datasets   *usecase.DatasetService
	Taxonomies *usecase.TaxonomyService
	Metrics    *metrics.PipelineMetrics

	// Queue, EnqueueUC and ProcessUC are set when Options.WithQueue is true.
	Queue     ports.JobQueue
	EnqueueUC *usecase.EnqueueCityUseCase
	ProcessUC *usecase.ProcessCityJobUseCase

	// Runs is nil when POSTGRES_DSN is empty.
	Runs ports.RunReader

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	if err := app.init(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context, opts Options) error {
	cfg := app.Config
	pipeline, err := config.ReadPipeline(cfg.PipelineConfigPath)
	if err != nil {
		return err
	}
	app.Pipeline = pipeline

	taxonomies, err := pipeline.CompileTaxonomies()
	if err != nil {
		return fmt.Errorf("compile taxonomies: %w", err)
	}
	denylist, err := usecase.CompileDenylist(pipeline.AOI.Denylist)
	if err != nil {
		return fmt.Errorf("compile aoi denylist: %w", err)
	}

	storage, err := localfs.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init dataset storage: %w", err)
	}
	store := localfs.NewDatasetStore(storage)

	var opener ports.ExtractOpener = pbf.NewOpener(cfg.ScanProcs, opts.Progress)
	if cfg.RedisURL != "" {
		client, err := rediscache.OpenClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("init boundary cache: %w", err)
		}
		app.onClose(func() { _ = client.Close() })
		opener = rediscache.NewCachingOpener(opener, client, time.Duration(cfg.BoundaryCacheTTLMinutes)*time.Minute)
	}
	app.Opener = opener

	app.Metrics = metrics.NewPipelineMetrics(opts.Service)
	executor := resilience.NewExecutor(resilienceConfig(cfg)).WithObserver(app.Metrics)

	var recorder ports.RunRecorder
	if cfg.PostgresDSN != "" {
		repo, db, err := openRunRepository(ctx, cfg.PostgresDSN, executor)
		if err != nil {
			return err
		}
		app.onClose(func() { _ = db.Close() })
		recorder = repo
		app.Runs = repo
	}

	app.Taxonomies = usecase.NewTaxonomyService(taxonomies)
	app.Datasets = usecase.NewDatasetService(store)

	collector := usecase.NewFeatureCollector(usecase.NewBoundaryResolver(opener), app.Metrics)
	app.Builder = usecase.NewBuildCityUseCase(
		opener,
		collector,
		store,
		xlsx.NewExporter(storage),
		recorder,
		app.Metrics,
		CityTargets(pipeline),
		usecase.BuildCityOptions{
			NetworkModes: pipeline.Network.Modes,
			Denylist:     denylist,
			Taxonomies:   taxonomies,
			Workers:      cfg.CollectWorkers,
		},
	)

	if opts.WithQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		app.onClose(queue.Close)
		app.Queue = queue
		app.EnqueueUC = usecase.NewEnqueueCityUseCase(app.Builder, queue, recorder)
		app.ProcessUC = usecase.NewProcessCityJobUseCase(app.Builder)
	}

	slog.Info("bootstrap_ready",
		"cities", len(pipeline.Cities),
		"network_modes", pipeline.Network.Modes,
		"taxonomies", app.Taxonomies.Names(),
		"boundary_cache", cfg.RedisURL != "",
		"run_store", cfg.PostgresDSN != "",
		"queue", opts.WithQueue,
	)
	return nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	rc.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSec) * time.Second
	return rc
}

func openRunRepository(ctx context.Context, dsn string, executor *resilience.Executor) (*postgres.RunRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return postgres.NewRunRepository(db, executor), db, nil
}

// CityTargets converts configured cities into build targets.
func CityTargets(p *config.Pipeline) []usecase.CityTarget {
	targets := make([]usecase.CityTarget, 0, len(p.Cities))
	for _, city := range p.Cities {
		targets = append(targets, usecase.CityTarget{
			Name:       city.Name,
			Extract:    city.Extract,
			AOI:        city.AOI,
			Boundaries: append([]string(nil), city.Boundaries...),
		})
	}
	return targets
}

func (app *App) onClose(fn func()) {
	app.closeFns = append(app.closeFns, fn)
}

// Close releases connections in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closeFns) - 1; i >= 0; i-- {
		app.closeFns[i]()
	}
	app.closeFns = nil
}
