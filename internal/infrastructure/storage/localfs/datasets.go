package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
)

// DatasetStore persists feature tables as GeoJSON FeatureCollections.
type DatasetStore struct {
	storage *Storage
}

func NewDatasetStore(storage *Storage) *DatasetStore {
	return &DatasetStore{storage: storage}
}

func (s *DatasetStore) SaveTable(ctx context.Context, ds domain.Dataset, table *domain.FeatureTable) error {
	if table == nil {
		return domain.WrapError(domain.ErrArgumentType, "save dataset", errors.New("nil table"))
	}
	fc := geojson.NewFeatureCollection()
	for _, rec := range table.Records {
		fc.Append(recordFeature(rec, table.NetworkMode))
	}
	body, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return s.storage.Save(ctx, ds.FileName(), bytes.NewReader(body))
}

func (s *DatasetStore) LoadTable(ctx context.Context, name string) (*domain.FeatureTable, error) {
	ds, err := domain.ParseDatasetName(name)
	if err != nil {
		return nil, err
	}
	rc, err := s.storage.Open(ctx, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "load dataset", fmt.Errorf("%s does not exist", name))
		}
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSchemaMismatch, "decode dataset", err)
	}

	kind, mode := datasetLayer(ds)
	table := domain.NewFeatureTable(kind, mode)
	for i, f := range fc.Features {
		rec := featureRecord(f)
		if i == 0 && kind == domain.KindNetwork {
			table.NetworkMode = f.Properties.MustString("network_mode", mode)
		}
		if err := table.Append(rec); err != nil {
			return nil, fmt.Errorf("dataset %s feature %d: %w", name, i, err)
		}
	}
	return table, nil
}

func (s *DatasetStore) List(ctx context.Context, pattern string) ([]string, error) {
	return s.storage.List(ctx, pattern)
}

func (s *DatasetStore) Delete(ctx context.Context, name string) error {
	return s.storage.Delete(ctx, name)
}

// datasetLayer recovers the feature kind and network mode slug from a dataset's layer token.
func datasetLayer(ds domain.Dataset) (domain.FeatureKind, string) {
	if mode, ok := strings.CutPrefix(ds.Kind, "net-"); ok {
		return domain.KindNetwork, mode
	}
	return domain.FeatureKind(ds.Kind), ""
}

func recordFeature(rec domain.FeatureRecord, networkMode string) *geojson.Feature {
	f := geojson.NewFeature(rec.Geometry)
	f.Properties["osm_type"] = rec.OSMType
	f.Properties["osm_id"] = rec.OSMID
	f.Properties["kind"] = string(rec.Kind)
	f.Properties["tag"] = rec.Tag
	f.Properties["category"] = rec.Category
	f.Properties["aoinm"] = rec.AOIName
	f.Properties["name"] = rec.Name
	f.Properties["length_m"] = rec.LengthM
	f.Properties["area_m2"] = rec.AreaM2
	if networkMode != "" {
		f.Properties["network_mode"] = networkMode
	}
	return f
}

func featureRecord(f *geojson.Feature) domain.FeatureRecord {
	p := f.Properties
	return domain.FeatureRecord{
		OSMType:  p.MustString("osm_type", ""),
		OSMID:    int64(p.MustFloat64("osm_id", 0)),
		Kind:     domain.FeatureKind(p.MustString("kind", "")),
		Tag:      p.MustString("tag", ""),
		Category: p.MustString("category", ""),
		AOIName:  p.MustString("aoinm", ""),
		Name:     p.MustString("name", ""),
		LengthM:  p.MustFloat64("length_m", 0),
		AreaM2:   p.MustFloat64("area_m2", 0),
		Geometry: f.Geometry,
	}
}
