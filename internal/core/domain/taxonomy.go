package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// CategorySpec is one configured category with the keyword fragments that select it.
type CategorySpec struct {
	Category string   `yaml:"category" json:"category"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// TaxonomySpec is the configuration form of a taxonomy. Category order is priority order.
type TaxonomySpec struct {
	Name       string         `yaml:"name" json:"name"`
	Categories []CategorySpec `yaml:"categories" json:"categories"`
}

// Rule pairs a category label with the pattern that selects it.
type Rule struct {
	Label   string
	Pattern *regexp.Regexp
}

// Taxonomy is a compiled, ordered rule set.
type Taxonomy struct {
	Name  string
	Rules []Rule
}

// CompileTaxonomy turns each category's keyword fragments into a single
// case-insensitive alternation. Rule order follows spec.Categories.
func CompileTaxonomy(spec TaxonomySpec) (Taxonomy, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy", errors.New("taxonomy name is required"))
	}
	if len(spec.Categories) == 0 {
		return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy "+name, errors.New("at least one category is required"))
	}

	seen := make(map[string]struct{}, len(spec.Categories))
	rules := make([]Rule, 0, len(spec.Categories))
	for _, category := range spec.Categories {
		label := strings.TrimSpace(category.Category)
		if label == "" {
			return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy "+name, errors.New("empty category label"))
		}
		if _, dup := seen[label]; dup {
			return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy "+name, fmt.Errorf("duplicate category %q", label))
		}
		seen[label] = struct{}{}

		fragments := make([]string, 0, len(category.Keywords))
		for _, kw := range category.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				fragments = append(fragments, kw)
			}
		}
		if len(fragments) == 0 {
			return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy "+name, fmt.Errorf("category %q has no keywords", label))
		}

		pattern, err := regexp.Compile("(?i)(?:" + strings.Join(fragments, "|") + ")")
		if err != nil {
			return Taxonomy{}, WrapError(ErrInvalidInput, "compile taxonomy "+name, fmt.Errorf("category %q: %w", label, err))
		}
		rules = append(rules, Rule{Label: label, Pattern: pattern})
	}

	return Taxonomy{Name: name, Rules: rules}, nil
}

// Classify returns the label of the first rule matching anywhere in raw,
// or raw itself when nothing matches.
func Classify(raw string, rules []Rule) string {
	for _, rule := range rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(raw) {
			return rule.Label
		}
	}
	return raw
}

func (t Taxonomy) Classify(raw string) string {
	return Classify(raw, t.Rules)
}

// Labels lists the category labels in priority order.
func (t Taxonomy) Labels() []string {
	labels := make([]string, 0, len(t.Rules))
	for _, rule := range t.Rules {
		labels = append(labels, rule.Label)
	}
	return labels
}
