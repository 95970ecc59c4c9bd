package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/core/ports"
)

const keyPrefix = "osm:boundaries:"

// KV is the subset of the redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

func OpenClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// CachingOpener memoises boundary catalogues in redis, keyed by source file
// identity and spatial filter. Cache failures fall back to the wrapped opener.
type CachingOpener struct {
	next ports.ExtractOpener
	kv   KV
	ttl  time.Duration
}

func NewCachingOpener(next ports.ExtractOpener, kv KV, ttl time.Duration) *CachingOpener {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachingOpener{next: next, kv: kv, ttl: ttl}
}

func (o *CachingOpener) Open(ctx context.Context, path string, filter orb.Geometry) (ports.Extract, error) {
	ext, err := o.next.Open(ctx, path, filter)
	if err != nil {
		return nil, err
	}
	return &cachedExtract{Extract: ext, opener: o}, nil
}

// cachedExtract holds the decoded catalogue for the life of the handle, so
// resolving many boundaries against one parent costs a single redis read.
type cachedExtract struct {
	ports.Extract
	opener *CachingOpener

	mu         sync.Mutex
	boundaries []domain.Boundary
}

func (e *cachedExtract) ListBoundaries(ctx context.Context) ([]domain.Boundary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.boundaries == nil {
		boundaries, err := e.load(ctx)
		if err != nil {
			return nil, err
		}
		if boundaries == nil {
			boundaries = []domain.Boundary{}
		}
		e.boundaries = boundaries
	}
	return append([]domain.Boundary(nil), e.boundaries...), nil
}

func (e *cachedExtract) load(ctx context.Context) ([]domain.Boundary, error) {
	key, err := catalogueKey(e.Path(), e.Filter())
	if err != nil {
		slog.Warn("boundary_cache_key_failed", "path", e.Path(), "error", err)
		return e.Extract.ListBoundaries(ctx)
	}

	raw, err := e.opener.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		boundaries, decodeErr := decodeBoundaries(raw)
		if decodeErr == nil {
			return boundaries, nil
		}
		slog.Warn("boundary_cache_decode_failed", "key", key, "error", decodeErr)
	case !errors.Is(err, goredis.Nil):
		slog.Warn("boundary_cache_get_failed", "key", key, "error", err)
	}

	boundaries, err := e.Extract.ListBoundaries(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := encodeBoundaries(boundaries)
	if err != nil {
		slog.Warn("boundary_cache_encode_failed", "key", key, "error", err)
		return boundaries, nil
	}
	if err := e.opener.kv.Set(ctx, key, payload, e.opener.ttl).Err(); err != nil {
		slog.Warn("boundary_cache_set_failed", "key", key, "error", err)
	}
	return boundaries, nil
}

// catalogueKey identifies a catalogue by file path, size, mtime and filter.
func catalogueKey(path string, filter orb.Geometry) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00", path, stat.Size(), stat.ModTime().UnixNano())
	if filter != nil {
		b, err := wkb.Marshal(filter)
		if err != nil {
			return "", fmt.Errorf("encode filter: %w", err)
		}
		h.Write(b)
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

type cachedBoundary struct {
	Name       string            `json:"name"`
	OSMID      int64             `json:"osm_id"`
	AdminLevel string            `json:"admin_level,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
}

func encodeBoundaries(boundaries []domain.Boundary) ([]byte, error) {
	out := make([]cachedBoundary, 0, len(boundaries))
	for _, b := range boundaries {
		cb := cachedBoundary{Name: b.Name, OSMID: b.OSMID, AdminLevel: b.AdminLevel}
		if b.Geometry != nil {
			cb.Geometry = geojson.NewGeometry(b.Geometry)
		}
		out = append(out, cb)
	}
	return json.Marshal(out)
}

func decodeBoundaries(raw []byte) ([]domain.Boundary, error) {
	var cached []cachedBoundary
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	out := make([]domain.Boundary, 0, len(cached))
	for _, cb := range cached {
		b := domain.Boundary{Name: cb.Name, OSMID: cb.OSMID, AdminLevel: cb.AdminLevel}
		if cb.Geometry != nil {
			b.Geometry = cb.Geometry.Geometry()
		}
		out = append(out, b)
	}
	return out, nil
}
