package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// ReclassifyTable derives Category for every record from sourceColumn.
// The input table is left untouched.
func ReclassifyTable(table *domain.FeatureTable, taxonomy domain.Taxonomy, sourceColumn string) (*domain.FeatureTable, error) {
	if table == nil {
		return nil, domain.WrapError(domain.ErrArgumentType, "reclassify table", fmt.Errorf("nil table"))
	}
	if len(taxonomy.Rules) == 0 {
		return nil, domain.WrapError(domain.ErrArgumentType, "reclassify table", fmt.Errorf("taxonomy %q has no rules", taxonomy.Name))
	}

	out := &domain.FeatureTable{
		Kind:        table.Kind,
		NetworkMode: table.NetworkMode,
		Records:     make([]domain.FeatureRecord, len(table.Records)),
	}
	for i, rec := range table.Records {
		raw, ok := rec.Column(sourceColumn)
		if !ok {
			return nil, domain.WrapError(domain.ErrArgumentType, "reclassify table", fmt.Errorf("unknown column %q", sourceColumn))
		}
		rec.Category = taxonomy.Classify(raw)
		out.Records[i] = rec
	}
	return out, nil
}

type TaxonomyService struct {
	taxonomies map[string]domain.Taxonomy
}

func NewTaxonomyService(taxonomies map[string]domain.Taxonomy) *TaxonomyService {
	return &TaxonomyService{taxonomies: taxonomies}
}

func (s *TaxonomyService) Taxonomy(name string) (domain.Taxonomy, error) {
	taxonomy, ok := s.taxonomies[name]
	if !ok {
		return domain.Taxonomy{}, domain.WrapError(domain.ErrNotFound, "lookup taxonomy", fmt.Errorf("taxonomy %q is not configured", name))
	}
	return taxonomy, nil
}

func (s *TaxonomyService) Names() []string {
	names := make([]string, 0, len(s.taxonomies))
	for name := range s.taxonomies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *TaxonomyService) ClassifyValues(name string, values []string) ([]string, error) {
	taxonomy, err := s.Taxonomy(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = taxonomy.Classify(v)
	}
	return out, nil
}
