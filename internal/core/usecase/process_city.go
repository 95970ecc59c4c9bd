package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

// ProcessCityJobUseCase turns one queued CityJob into a city build.
type ProcessCityJobUseCase struct {
	builder ports.CityBuilder
}

func NewProcessCityJobUseCase(builder ports.CityBuilder) *ProcessCityJobUseCase {
	return &ProcessCityJobUseCase{builder: builder}
}

// Handle builds the requested city. Jobs that can never succeed (unknown
// city, malformed vintage, unreadable extract) are acknowledged so the queue
// does not redeliver them; the returned error means "retry later".
func (uc *ProcessCityJobUseCase) Handle(ctx context.Context, job domain.CityJob) error {
	var vintage time.Time
	if job.Vintage != "" {
		parsed, err := time.Parse(domain.VintageLayout, job.Vintage)
		if err != nil {
			slog.Error("job_rejected", "run_id", job.RunID, "city", job.City, "error", err)
			return nil
		}
		vintage = parsed
	}

	run, err := uc.builder.BuildByName(ctx, job.RunID, job.City, vintage)
	if err != nil {
		if isPermanent(err) {
			slog.Warn("job_dropped", "run_id", job.RunID, "city", job.City, "error", err)
			return nil
		}
		return fmt.Errorf("build city %q: %w", job.City, err)
	}
	slog.Info("job_done", "run_id", run.RunID, "city", run.City, "status", string(run.Status), "datasets", len(run.Datasets))
	return nil
}

func isPermanent(err error) bool {
	return domain.IsKind(err, domain.ErrSourceData) ||
		domain.IsKind(err, domain.ErrNotFound) ||
		domain.IsKind(err, domain.ErrInvalidInput)
}
