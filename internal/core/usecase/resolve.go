package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/paulmach/orb"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

// BoundaryResolver scopes a parent extract down to one named boundary.
type BoundaryResolver struct {
	opener ports.ExtractOpener
}

func NewBoundaryResolver(opener ports.ExtractOpener) *BoundaryResolver {
	return &BoundaryResolver{opener: opener}
}

// Resolve finds the first catalogue boundary whose name matches pattern and
// re-opens the parent's source filtered to that boundary's geometry.
// The caller owns the returned extract.
func (r *BoundaryResolver) Resolve(ctx context.Context, parent ports.Extract, pattern string) (ports.Extract, error) {
	if parent == nil {
		return nil, domain.WrapError(domain.ErrArgumentType, "resolve boundary", errors.New("parent extract is nil"))
	}
	nameRe, err := regexp.Compile(pattern)
	if err != nil {
		return nil, domain.WrapError(domain.ErrArgumentType, "resolve boundary", fmt.Errorf("boundary pattern %q: %w", pattern, err))
	}

	boundaries, err := parent.ListBoundaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boundaries: %w", err)
	}

	var match *domain.Boundary
	for i := range boundaries {
		if nameRe.MatchString(boundaries[i].Name) {
			match = &boundaries[i]
			break
		}
	}
	if match == nil {
		return nil, domain.WrapError(domain.ErrBoundaryNotFound, "resolve boundary", fmt.Errorf("no boundary matches %q", pattern))
	}

	switch match.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, domain.WrapError(
			domain.ErrUnsupportedGeometry,
			"resolve boundary",
			fmt.Errorf("boundary %q has geometry %s", match.Name, geometryTypeName(match.Geometry)),
		)
	}

	child, err := r.opener.Open(ctx, parent.Path(), match.Geometry)
	if err != nil {
		return nil, fmt.Errorf("open extract scoped to %q: %w", match.Name, err)
	}
	return child, nil
}

// ExactNamePattern matches name literally and in full.
func ExactNamePattern(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}

// CompileDenylist builds a case-insensitive prefix matcher from regex fragments.
// No fragments yields a nil matcher, which keeps every name.
func CompileDenylist(fragments []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)^(?:" + strings.Join(parts, "|") + ")")
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "compile aoi denylist", err)
	}
	return re, nil
}

// CleanAOINames drops names that start with a denylisted term, preserving order.
func CleanAOINames(names []string, denylist *regexp.Regexp) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if denylist != nil && denylist.MatchString(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// BoundaryNames lists catalogue names in catalogue order, skipping blanks and repeats.
func BoundaryNames(boundaries []domain.Boundary) []string {
	seen := make(map[string]struct{}, len(boundaries))
	names := make([]string, 0, len(boundaries))
	for _, b := range boundaries {
		if b.Name == "" {
			continue
		}
		if _, ok := seen[b.Name]; ok {
			continue
		}
		seen[b.Name] = struct{}{}
		names = append(names, b.Name)
	}
	return names
}

func geometryTypeName(g orb.Geometry) string {
	if g == nil {
		return "<nil>"
	}
	return g.GeoJSONType()
}
