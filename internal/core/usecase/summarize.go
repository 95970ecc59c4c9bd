package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// Summarize counts records per (aoinm, categoryColumn) and derives each
// category's share of its AOI. Percentages are rounded half away from zero
// to two decimals. Rows are ordered by AOI name, then category.
func Summarize(table *domain.FeatureTable, categoryColumn string) ([]domain.SummaryRow, error) {
	if table == nil {
		return nil, domain.WrapError(domain.ErrArgumentType, "summarize", fmt.Errorf("nil table"))
	}
	if _, ok := (domain.FeatureRecord{}).Column(categoryColumn); !ok {
		return nil, domain.WrapError(domain.ErrArgumentType, "summarize", fmt.Errorf("unknown column %q", categoryColumn))
	}

	type groupKey struct{ aoi, category string }
	counts := make(map[groupKey]int)
	totals := make(map[string]int)
	for _, rec := range table.Records {
		category, _ := rec.Column(categoryColumn)
		counts[groupKey{rec.AOIName, category}]++
		totals[rec.AOIName]++
	}

	rows := make([]domain.SummaryRow, 0, len(counts))
	for key, count := range counts {
		total := totals[key.aoi]
		rows = append(rows, domain.SummaryRow{
			AOIName:         key.aoi,
			Category:        key.category,
			Count:           count,
			AOITotal:        total,
			CategoryPercent: domain.RoundHalfAwayFromZero(float64(count)/float64(total)*100, 2),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AOIName != rows[j].AOIName {
			return rows[i].AOIName < rows[j].AOIName
		}
		return rows[i].Category < rows[j].Category
	})
	return rows, nil
}

// SummarizeNetworkLength totals edge length per AOI, with kilometres rounded
// half away from zero.
func SummarizeNetworkLength(table *domain.FeatureTable) ([]domain.LengthRow, error) {
	if table == nil {
		return nil, domain.WrapError(domain.ErrArgumentType, "summarize network length", fmt.Errorf("nil table"))
	}
	if table.Kind != domain.KindNetwork {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "summarize network length", fmt.Errorf("table kind %q", table.Kind))
	}

	totals := make(map[string]float64)
	for _, rec := range table.Records {
		totals[rec.AOIName] += rec.LengthM
	}
	rows := make([]domain.LengthRow, 0, len(totals))
	for aoi, meters := range totals {
		rows = append(rows, domain.LengthRow{
			AOIName: aoi,
			LengthM: domain.RoundHalfAwayFromZero(meters, 2),
			LengthK: int(domain.RoundHalfAwayFromZero(meters/1000, 0)),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AOIName < rows[j].AOIName })
	return rows, nil
}
