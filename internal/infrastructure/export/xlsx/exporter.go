package xlsx

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// Saver stores a finished workbook under a file name.
type Saver interface {
	Save(ctx context.Context, key string, data io.Reader) error
}

// Exporter writes one workbook per area with a sheet per summarised layer.
type Exporter struct {
	saver Saver
}

func NewExporter(saver Saver) *Exporter {
	return &Exporter{saver: saver}
}

var header = []any{"aoinm", "category", "count", "aoi_total", "category_percent"}

func (e *Exporter) ExportSummaries(ctx context.Context, ds domain.Dataset, sheets map[string][]domain.SummaryRow) error {
	book, err := Workbook(sheets)
	if err != nil {
		return err
	}
	defer book.Close()

	buf, err := book.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}
	if err := e.saver.Save(ctx, ds.FileName(), buf); err != nil {
		return fmt.Errorf("save workbook %s: %w", ds.FileName(), err)
	}
	return nil
}

// Workbook lays the sheets out in name order, header row first.
func Workbook(sheets map[string][]domain.SummaryRow) (*excelize.File, error) {
	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	sort.Strings(names)

	book := excelize.NewFile()
	const defaultSheet = "Sheet1"
	for _, name := range names {
		if _, err := book.NewSheet(name); err != nil {
			book.Close()
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := book.SetSheetRow(name, "A1", &header); err != nil {
			book.Close()
			return nil, fmt.Errorf("write header %s: %w", name, err)
		}
		for i, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				book.Close()
				return nil, err
			}
			values := []any{row.AOIName, row.Category, row.Count, row.AOITotal, row.CategoryPercent}
			if err := book.SetSheetRow(name, cell, &values); err != nil {
				book.Close()
				return nil, fmt.Errorf("write row %s: %w", name, err)
			}
		}
	}
	if len(names) > 0 {
		if err := book.DeleteSheet(defaultSheet); err != nil {
			book.Close()
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
		if idx, err := book.GetSheetIndex(names[0]); err == nil {
			book.SetActiveSheet(idx)
		}
	}
	return book, nil
}
