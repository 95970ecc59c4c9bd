package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

// CityLookup resolves a configured city by name.
type CityLookup interface {
	City(name string) (CityTarget, error)
}

type EnqueueCityUseCase struct {
	cities   CityLookup
	queue    ports.JobQueue
	recorder ports.RunRecorder
	now      func() time.Time
}

// NewEnqueueCityUseCase wires the publisher. recorder may be nil.
func NewEnqueueCityUseCase(cities CityLookup, queue ports.JobQueue, recorder ports.RunRecorder) *EnqueueCityUseCase {
	return &EnqueueCityUseCase{
		cities:   cities,
		queue:    queue,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue publishes a build request for a configured city. A zero vintage
// lets the worker stamp the datasets with its own build date.
func (uc *EnqueueCityUseCase) Enqueue(ctx context.Context, city string, vintage time.Time) (domain.CityJob, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return domain.CityJob{}, domain.WrapError(domain.ErrInvalidInput, "enqueue city", fmt.Errorf("city name is required"))
	}
	target, err := uc.cities.City(city)
	if err != nil {
		return domain.CityJob{}, err
	}

	job := domain.CityJob{
		RunID:       uuid.NewString(),
		City:        target.Name,
		RequestedAt: uc.now(),
	}
	if !vintage.IsZero() {
		job.Vintage = vintage.UTC().Format(domain.VintageLayout)
	}

	if uc.recorder != nil {
		run := &domain.CityRun{
			RunID:     job.RunID,
			City:      job.City,
			Status:    domain.RunStatusQueued,
			Datasets:  []string{},
			StartedAt: job.RequestedAt,
		}
		if err := uc.recorder.SaveRun(ctx, run); err != nil {
			return domain.CityJob{}, fmt.Errorf("record queued run: %w", err)
		}
	}

	if err := uc.queue.PublishCityRequested(ctx, job); err != nil {
		return domain.CityJob{}, fmt.Errorf("publish city request: %w", err)
	}
	return job, nil
}
