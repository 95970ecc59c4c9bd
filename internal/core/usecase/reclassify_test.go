package usecase

import (
	"testing"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

func landuseTaxonomy(t *testing.T) domain.Taxonomy {
	t.Helper()
	taxonomy, err := domain.CompileTaxonomy(domain.TaxonomySpec{
		Name: "landuse",
		Categories: []domain.CategorySpec{
			{Category: "agriculture", Keywords: []string{"farm", "forest"}},
			{Category: "commerce", Keywords: []string{"retail"}},
		},
	})
	if err != nil {
		t.Fatalf("CompileTaxonomy() error = %v", err)
	}
	return taxonomy
}

func TestReclassifyTableKeepsSourceColumn(t *testing.T) {
	src := domain.NewFeatureTable(domain.KindLanduse, "")
	src.Records = []domain.FeatureRecord{
		{Kind: domain.KindLanduse, Tag: "forest"},
		{Kind: domain.KindLanduse, Tag: "retail"},
		{Kind: domain.KindLanduse, Tag: "quarry"},
		{Kind: domain.KindLanduse, Tag: ""},
	}

	out, err := ReclassifyTable(src, landuseTaxonomy(t), domain.ColumnTag)
	if err != nil {
		t.Fatalf("ReclassifyTable() error = %v", err)
	}
	want := []string{"agriculture", "commerce", "quarry", ""}
	for i, rec := range out.Records {
		if rec.Category != want[i] {
			t.Fatalf("record %d: category %q, want %q", i, rec.Category, want[i])
		}
		if rec.Tag != src.Records[i].Tag {
			t.Fatalf("record %d: source tag changed to %q", i, rec.Tag)
		}
		if src.Records[i].Category != "" {
			t.Fatalf("input table mutated at %d", i)
		}
	}
}

func TestReclassifyTableRejectsUnknownColumn(t *testing.T) {
	src := domain.NewFeatureTable(domain.KindLanduse, "")
	src.Records = []domain.FeatureRecord{{Kind: domain.KindLanduse, Tag: "forest"}}
	if _, err := ReclassifyTable(src, landuseTaxonomy(t), "colour"); !domain.IsKind(err, domain.ErrArgumentType) {
		t.Fatalf("expected ErrArgumentType, got %v", err)
	}
}

func TestTaxonomyServiceClassifyValues(t *testing.T) {
	svc := NewTaxonomyService(map[string]domain.Taxonomy{"landuse": landuseTaxonomy(t)})

	got, err := svc.ClassifyValues("landuse", []string{"farmyard", "retail", "x"})
	if err != nil {
		t.Fatalf("ClassifyValues() error = %v", err)
	}
	if got[0] != "agriculture" || got[1] != "commerce" || got[2] != "x" {
		t.Fatalf("unexpected categories %v", got)
	}
	if _, err := svc.ClassifyValues("buildings", nil); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
