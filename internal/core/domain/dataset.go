package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	VintageLayout  = "2006-01-02"
	DatasetExt     = "geojson"
	SummaryExt     = "xlsx"
	summaryKindTag = "summary"
)

// Dataset identifies one persisted feature table by area, layer and vintage.
type Dataset struct {
	AreaSlug string    `json:"area"`
	Kind     string    `json:"kind"`
	Vintage  time.Time `json:"vintage"`
	Ext      string    `json:"ext"`
}

var datasetNameRe = regexp.MustCompile(`^(.+)-(net-[a-z0-9_]+|landuse|natural|buildings|summary)-(\d{4}-\d{2}-\d{2})\.([a-z0-9]+)$`)

// DatasetKind returns the file-name layer token for a table: net-{mode} for
// networks, the kind itself otherwise.
func DatasetKind(kind FeatureKind, networkMode string) string {
	if kind == KindNetwork {
		return "net-" + Slugify(networkMode)
	}
	return string(kind)
}

func NewDataset(area string, kind FeatureKind, networkMode string, vintage time.Time) Dataset {
	return Dataset{
		AreaSlug: Slugify(area),
		Kind:     DatasetKind(kind, networkMode),
		Vintage:  vintage.UTC().Truncate(24 * time.Hour),
		Ext:      DatasetExt,
	}
}

func NewSummaryDataset(area string, vintage time.Time) Dataset {
	return Dataset{
		AreaSlug: Slugify(area),
		Kind:     summaryKindTag,
		Vintage:  vintage.UTC().Truncate(24 * time.Hour),
		Ext:      SummaryExt,
	}
}

// FileName renders {areaSlug}-{featureKind}-{isoDate}.{ext}.
func (d Dataset) FileName() string {
	return fmt.Sprintf("%s-%s-%s.%s", d.AreaSlug, d.Kind, d.Vintage.Format(VintageLayout), d.Ext)
}

func (d Dataset) IsSummary() bool {
	return d.Kind == summaryKindTag
}

// GlobPattern matches every dataset file for area (or all areas when empty).
func GlobPattern(area string) string {
	if area == "" {
		return "*-*-????-??-??.*"
	}
	return Slugify(area) + "-*-????-??-??.*"
}

func ParseDatasetName(name string) (Dataset, error) {
	m := datasetNameRe.FindStringSubmatch(name)
	if m == nil {
		return Dataset{}, WrapError(ErrInvalidInput, "parse dataset name", fmt.Errorf("%q does not match {area}-{kind}-{date}.{ext}", name))
	}
	vintage, err := time.Parse(VintageLayout, m[3])
	if err != nil {
		return Dataset{}, WrapError(ErrInvalidInput, "parse dataset vintage", err)
	}
	return Dataset{AreaSlug: m[1], Kind: m[2], Vintage: vintage, Ext: m[4]}, nil
}

// Slugify lowercases s, drops characters other than letters, digits,
// underscores, hyphens and spaces, and joins words with single hyphens.
func Slugify(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case r == '-', unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Trim(strings.Join(strings.Fields(cleaned), "-"), "-_")
}
