package domain

import (
	"fmt"

	"github.com/paulmach/orb"
)

type FeatureKind string

const (
	KindNetwork   FeatureKind = "network"
	KindLanduse   FeatureKind = "landuse"
	KindNatural   FeatureKind = "natural"
	KindBuildings FeatureKind = "buildings"
)

func ParseFeatureKind(raw string) (FeatureKind, error) {
	switch kind := FeatureKind(raw); kind {
	case KindNetwork, KindLanduse, KindNatural, KindBuildings:
		return kind, nil
	default:
		return "", WrapError(ErrArgumentType, "parse feature kind", fmt.Errorf("unknown kind %q", raw))
	}
}

// Column names understood by FeatureRecord.Column.
const (
	ColumnAOIName  = "aoinm"
	ColumnTag      = "tag"
	ColumnCategory = "category"
	ColumnKind     = "kind"
	ColumnName     = "name"
	ColumnOSMType  = "osm_type"
)

// Boundary is one entry of an extract's boundary catalogue.
type Boundary struct {
	Name       string
	OSMID      int64
	AdminLevel string
	Geometry   orb.Geometry
}

type FeatureRecord struct {
	OSMType  string       `json:"osm_type"`
	OSMID    int64        `json:"osm_id"`
	Kind     FeatureKind  `json:"kind"`
	Tag      string       `json:"tag"`
	Category string       `json:"category,omitempty"`
	AOIName  string       `json:"aoinm"`
	Name     string       `json:"name,omitempty"`
	LengthM  float64      `json:"length_m,omitempty"`
	AreaM2   float64      `json:"area_m2,omitempty"`
	Geometry orb.Geometry `json:"-"`
}

// Column returns the scalar value stored under name.
func (r FeatureRecord) Column(name string) (string, bool) {
	switch name {
	case ColumnAOIName:
		return r.AOIName, true
	case ColumnTag:
		return r.Tag, true
	case ColumnCategory:
		return r.Category, true
	case ColumnKind:
		return string(r.Kind), true
	case ColumnName:
		return r.Name, true
	case ColumnOSMType:
		return r.OSMType, true
	default:
		return "", false
	}
}

// FeatureTable is an ordered set of records of a single kind.
type FeatureTable struct {
	Kind        FeatureKind
	NetworkMode string
	Records     []FeatureRecord
}

func NewFeatureTable(kind FeatureKind, networkMode string) *FeatureTable {
	return &FeatureTable{Kind: kind, NetworkMode: networkMode, Records: []FeatureRecord{}}
}

func (t *FeatureTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Append adds a record, rejecting records of another kind.
func (t *FeatureTable) Append(rec FeatureRecord) error {
	if rec.Kind != t.Kind {
		return WrapError(ErrSchemaMismatch, "append record", fmt.Errorf("record kind %q in %q table", rec.Kind, t.Kind))
	}
	t.Records = append(t.Records, rec)
	return nil
}

// WithAOIName returns a copy of the table with every record tagged as belonging to aoi.
func (t *FeatureTable) WithAOIName(aoi string) *FeatureTable {
	out := &FeatureTable{Kind: t.Kind, NetworkMode: t.NetworkMode, Records: make([]FeatureRecord, len(t.Records))}
	for i, rec := range t.Records {
		rec.AOIName = aoi
		out.Records[i] = rec
	}
	return out
}

// AOINames lists distinct AOI names in first-seen order.
func (t *FeatureTable) AOINames() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, rec := range t.Records {
		if _, ok := seen[rec.AOIName]; ok {
			continue
		}
		seen[rec.AOIName] = struct{}{}
		names = append(names, rec.AOIName)
	}
	return names
}

// ConcatTables joins tables in argument order. Zero tables yields an empty table of kind.
func ConcatTables(kind FeatureKind, networkMode string, tables ...*FeatureTable) (*FeatureTable, error) {
	out := NewFeatureTable(kind, networkMode)
	for _, table := range tables {
		if table == nil {
			continue
		}
		if table.Kind != kind {
			return nil, WrapError(ErrSchemaMismatch, "concat tables", fmt.Errorf("table kind %q, want %q", table.Kind, kind))
		}
		out.Records = append(out.Records, table.Records...)
	}
	return out, nil
}

// FailureLedger lists boundaries that produced no output, by reason.
type FailureLedger struct {
	GeometryFailures []string `json:"geometry_failures"`
	EmptyFailures    []string `json:"empty_failures"`
}

func (l FailureLedger) Len() int {
	return len(l.GeometryFailures) + len(l.EmptyFailures)
}
