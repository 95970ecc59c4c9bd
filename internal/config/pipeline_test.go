package config

import (
	"strings"
	"testing"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

func defaultTaxonomies(t *testing.T) map[string]domain.Taxonomy {
	t.Helper()
	taxonomies, err := DefaultPipeline().CompileTaxonomies()
	if err != nil {
		t.Fatalf("CompileTaxonomies() error = %v", err)
	}
	return taxonomies
}

func TestDefaultTaxonomiesKeepPriorityOrder(t *testing.T) {
	taxonomies := defaultTaxonomies(t)

	landuse := strings.Join(taxonomies["landuse"].Labels(), ",")
	if landuse != "transport,agriculture,recreation,commerce,industry,amenities,development" {
		t.Fatalf("unexpected landuse order: %s", landuse)
	}
	natural := strings.Join(taxonomies["natural"].Labels(), ",")
	if natural != "rock,water,green" {
		t.Fatalf("unexpected natural order: %s", natural)
	}
}

func TestDefaultLanduseTaxonomy(t *testing.T) {
	landuse := defaultTaxonomies(t)["landuse"]

	cases := map[string]string{
		"forest":            "agriculture",
		"retail_park":       "commerce",
		"park":              "recreation",
		"farm_shop":         "agriculture",
		"Retail":            "commerce",
		"railway":           "transport",
		"sports_centre":     "recreation",
		"industrial":        "industry",
		"cemetery":          "amenities",
		"residential":       "development",
		"recreation_ground": "recreation",
		"flowerbed":         "flowerbed",
		"":                  "",
	}
	for raw, want := range cases {
		if got := landuse.Classify(raw); got != want {
			t.Errorf("Classify(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestDefaultNaturalTaxonomy(t *testing.T) {
	natural := defaultTaxonomies(t)["natural"]

	cases := map[string]string{
		"bare_rock": "rock",
		"water":     "water",
		"wetland":   "water",
		"wood":      "green",
		"grassland": "green",
		"tree_row":  "green",
		"sand":      "rock",
		"peninsula": "peninsula",
	}
	for raw, want := range cases {
		if got := natural.Classify(raw); got != want {
			t.Errorf("Classify(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestParsePipelineOverridesTaxonomyAndDenylist(t *testing.T) {
	src := `
cities:
  - name: Newcastle
    extract: data/newcastle.osm.pbf
    aoi: true
network:
  modes: [driving, walking]
aoi:
  denylist: [england]
taxonomies:
  - name: natural
    categories:
      - category: wet
        keywords: [water, wetland]
`
	p, err := ParsePipeline(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParsePipeline() error = %v", err)
	}
	if len(p.AOI.Denylist) != 1 || p.AOI.Denylist[0] != "england" {
		t.Fatalf("expected denylist override, got %v", p.AOI.Denylist)
	}
	if len(p.Network.Modes) != 2 {
		t.Fatalf("expected two modes, got %v", p.Network.Modes)
	}
	city, err := p.City("newcastle")
	if err != nil || !city.AOI {
		t.Fatalf("expected case-insensitive city lookup, got %+v, %v", city, err)
	}

	taxonomies, err := p.CompileTaxonomies()
	if err != nil {
		t.Fatalf("CompileTaxonomies() error = %v", err)
	}
	if got := taxonomies["natural"].Classify("wetland"); got != "wet" {
		t.Fatalf("expected overridden natural taxonomy, got %q", got)
	}
	if got := taxonomies["landuse"].Classify("forest"); got != "agriculture" {
		t.Fatalf("expected default landuse taxonomy kept, got %q", got)
	}
}

func TestParsePipelineRejectsDuplicateCities(t *testing.T) {
	src := `
cities:
  - {name: Leeds, extract: a.osm.pbf}
  - {name: leeds, extract: b.osm.pbf}
`
	_, err := ParsePipeline(strings.NewReader(src))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParsePipelineEmptyInputUsesDefaults(t *testing.T) {
	p, err := ParsePipeline(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParsePipeline() error = %v", err)
	}
	if len(p.Network.Modes) != 1 || p.Network.Modes[0] != "driving" {
		t.Fatalf("expected default driving mode, got %v", p.Network.Modes)
	}
	if _, err := p.City("nowhere"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
