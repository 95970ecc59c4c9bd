package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

//go:embed taxonomies.yaml
var defaultTaxonomiesYAML []byte

// City is one configured extraction target.
type City struct {
	Name    string `yaml:"name"`
	Extract string `yaml:"extract"`
	// AOI splits the landuse/natural/buildings layers by the extract's boundaries.
	AOI bool `yaml:"aoi"`
	// Boundaries restricts AOI collection to these names; empty means every catalogue boundary.
	Boundaries []string `yaml:"boundaries,omitempty"`
}

type NetworkConfig struct {
	Modes []string `yaml:"modes"`
}

type AOIConfig struct {
	// Denylist holds case-insensitive prefix fragments for boundaries too coarse to be an AOI.
	Denylist []string `yaml:"denylist"`
}

type Pipeline struct {
	Cities     []City                `yaml:"cities"`
	Network    NetworkConfig         `yaml:"network"`
	AOI        AOIConfig             `yaml:"aoi"`
	Taxonomies []domain.TaxonomySpec `yaml:"taxonomies,omitempty"`
}

func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Network: NetworkConfig{Modes: []string{"driving"}},
		AOI: AOIConfig{Denylist: []string{
			"united kingdom", "great britain", "england", "scotland", "wales", "northern ireland",
			"north east", "north west", "yorkshire and the humber", "east midlands", "west midlands",
			"east of england", "south east", "south west", "greater london",
		}},
	}
}

func ReadPipeline(filename string) (*Pipeline, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open pipeline config: %w", err)
	}
	defer fp.Close()
	return ParsePipeline(fp)
}

// ParsePipeline decodes a pipeline file on top of DefaultPipeline and validates it.
func ParsePipeline(in io.Reader) (*Pipeline, error) {
	p := DefaultPipeline()
	if err := yaml.NewDecoder(in).Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode pipeline config", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) validate() error {
	seen := map[string]struct{}{}
	for i, city := range p.Cities {
		name := strings.TrimSpace(city.Name)
		if name == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate pipeline config", fmt.Errorf("city #%d has no name", i+1))
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return domain.WrapError(domain.ErrInvalidInput, "validate pipeline config", fmt.Errorf("duplicate city %q", name))
		}
		seen[key] = struct{}{}
		if strings.TrimSpace(city.Extract) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate pipeline config", fmt.Errorf("city %q has no extract path", name))
		}
	}
	if len(p.Network.Modes) == 0 {
		p.Network.Modes = []string{"driving"}
	}
	return nil
}

// City looks a configured city up case-insensitively.
func (p *Pipeline) City(name string) (City, error) {
	for _, city := range p.Cities {
		if strings.EqualFold(city.Name, name) {
			return city, nil
		}
	}
	return City{}, domain.WrapError(domain.ErrNotFound, "lookup city", fmt.Errorf("city %q is not configured", name))
}

// TaxonomySpecs returns the embedded defaults with same-named file entries replacing them.
func (p *Pipeline) TaxonomySpecs() ([]domain.TaxonomySpec, error) {
	specs, err := DefaultTaxonomySpecs()
	if err != nil {
		return nil, err
	}
	for _, override := range p.Taxonomies {
		replaced := false
		for i := range specs {
			if specs[i].Name == override.Name {
				specs[i] = override
				replaced = true
			}
		}
		if !replaced {
			specs = append(specs, override)
		}
	}
	return specs, nil
}

func (p *Pipeline) CompileTaxonomies() (map[string]domain.Taxonomy, error) {
	specs, err := p.TaxonomySpecs()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Taxonomy, len(specs))
	for _, spec := range specs {
		taxonomy, err := domain.CompileTaxonomy(spec)
		if err != nil {
			return nil, err
		}
		out[taxonomy.Name] = taxonomy
	}
	return out, nil
}

func DefaultTaxonomySpecs() ([]domain.TaxonomySpec, error) {
	var doc struct {
		Taxonomies []domain.TaxonomySpec `yaml:"taxonomies"`
	}
	if err := yaml.Unmarshal(defaultTaxonomiesYAML, &doc); err != nil {
		return nil, fmt.Errorf("decode embedded taxonomies: %w", err)
	}
	return doc.Taxonomies, nil
}
