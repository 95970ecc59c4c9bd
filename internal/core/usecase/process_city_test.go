package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

type builderFake struct {
	err     error
	runID   string
	city    string
	vintage time.Time
}

func (b *builderFake) BuildByName(_ context.Context, runID, city string, vintage time.Time) (*domain.CityRun, error) {
	b.runID, b.city, b.vintage = runID, city, vintage
	if b.err != nil {
		return &domain.CityRun{RunID: runID, City: city, Status: domain.RunStatusFailed}, b.err
	}
	return &domain.CityRun{RunID: runID, City: city, Status: domain.RunStatusSucceeded}, nil
}

func TestProcessCityJobPassesVintage(t *testing.T) {
	builder := &builderFake{}
	uc := NewProcessCityJobUseCase(builder)

	err := uc.Handle(context.Background(), domain.CityJob{RunID: "r1", City: "Leeds", Vintage: "2024-03-01"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if builder.runID != "r1" || builder.city != "Leeds" || !builder.vintage.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected build call %+v", builder)
	}
}

func TestProcessCityJobAcksPermanentFailures(t *testing.T) {
	cases := []error{
		domain.WrapError(domain.ErrSourceData, "decode", errors.New("truncated")),
		domain.WrapError(domain.ErrNotFound, "lookup city", errors.New("Atlantis")),
	}
	for _, buildErr := range cases {
		uc := NewProcessCityJobUseCase(&builderFake{err: buildErr})
		if err := uc.Handle(context.Background(), domain.CityJob{RunID: "r", City: "X"}); err != nil {
			t.Fatalf("expected ack for %v, got %v", buildErr, err)
		}
	}

	builder := &builderFake{}
	if err := NewProcessCityJobUseCase(builder).Handle(context.Background(), domain.CityJob{City: "X", Vintage: "March"}); err != nil {
		t.Fatalf("expected malformed vintage to be acknowledged, got %v", err)
	}
	if builder.city != "" {
		t.Fatalf("malformed job must not be built")
	}
}

func TestProcessCityJobRetriesTransientFailures(t *testing.T) {
	buildErr := errors.New("disk full")
	uc := NewProcessCityJobUseCase(&builderFake{err: buildErr})
	if err := uc.Handle(context.Background(), domain.CityJob{RunID: "r", City: "X"}); !errors.Is(err, buildErr) {
		t.Fatalf("expected build error, got %v", err)
	}
}
