package xlsx

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

type saverFake struct {
	key  string
	body []byte
}

func (s *saverFake) Save(_ context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.key, s.body = key, body
	return nil
}

func TestExportSummariesWritesSheetPerLayer(t *testing.T) {
	saver := &saverFake{}
	exporter := NewExporter(saver)
	ds := domain.NewSummaryDataset("Leeds", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	err := exporter.ExportSummaries(context.Background(), ds, map[string][]domain.SummaryRow{
		"natural": {{AOIName: "Leeds", Category: "water", Count: 1, AOITotal: 1, CategoryPercent: 100}},
		"landuse": {
			{AOIName: "X", Category: "commerce", Count: 3, AOITotal: 4, CategoryPercent: 75},
			{AOIName: "X", Category: "industry", Count: 1, AOITotal: 4, CategoryPercent: 25},
		},
	})
	if err != nil {
		t.Fatalf("ExportSummaries() error = %v", err)
	}
	if saver.key != "leeds-summary-2024-03-01.xlsx" {
		t.Fatalf("unexpected file name %q", saver.key)
	}

	book, err := excelize.OpenReader(bytes.NewReader(saver.body))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer book.Close()

	if got := book.GetSheetList(); !reflect.DeepEqual(got, []string{"landuse", "natural"}) {
		t.Fatalf("unexpected sheets %v", got)
	}
	rows, err := book.GetRows("landuse")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	want := [][]string{
		{"aoinm", "category", "count", "aoi_total", "category_percent"},
		{"X", "commerce", "3", "4", "75"},
		{"X", "industry", "1", "4", "25"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows %v", rows)
	}
}
