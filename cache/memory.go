package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/jesserobertson/cogj"
	"github.com/jesserobertson/cogj/internal/metrics"
)

func newByteCache(maxBytes int64) (*ristretto.Cache[string, []byte], error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache: size must be positive, got %d", maxBytes)
	}
	// Ten counters per expected entry; entries are a few KiB on average.
	counters := max(maxBytes/1024*10, 1000)
	return ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
}

// Fetcher caches the byte ranges read through another fetcher, keyed by
// locator and exact range. Chunk reads always use the header's ranges, so
// repeated queries over the same area are served from memory.
type Fetcher struct {
	next  cogj.RangeFetcher
	cache *ristretto.Cache[string, []byte]
}

// NewFetcher wraps next with a cache holding up to maxBytes of range data.
func NewFetcher(next cogj.RangeFetcher, maxBytes int64) (*Fetcher, error) {
	c, err := newByteCache(maxBytes)
	if err != nil {
		return nil, err
	}
	return &Fetcher{next: next, cache: c}, nil
}

func rangeKey(locator string, start, end uint64) string {
	return fmt.Sprintf("%s\x00%d-%d", locator, start, end)
}

func (f *Fetcher) FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error) {
	key := rangeKey(locator, start, end)
	if data, ok := f.cache.Get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues("range").Inc()
		return data, nil
	}
	metrics.CacheMissesTotal.WithLabelValues("range").Inc()

	data, err := f.next.FetchRange(ctx, locator, start, end)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, data, int64(len(data)))
	return data, nil
}

// Close releases the cache's background goroutines.
func (f *Fetcher) Close() {
	f.cache.Close()
}

// MemoryStore is an in-process cogj.HeaderStore.
type MemoryStore struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemoryStore returns a store holding up to maxBytes of headers.
func NewMemoryStore(maxBytes int64) (*MemoryStore, error) {
	c, err := newByteCache(maxBytes)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (s *MemoryStore) LoadHeader(_ context.Context, locator string) ([]byte, bool, error) {
	raw, ok := s.cache.Get(locator)
	if ok {
		metrics.CacheHitsTotal.WithLabelValues("header_memory").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("header_memory").Inc()
	}
	return raw, ok, nil
}

func (s *MemoryStore) StoreHeader(_ context.Context, locator string, raw []byte) error {
	s.cache.Set(locator, raw, int64(len(raw)))
	return nil
}

// Close releases the cache's background goroutines.
func (s *MemoryStore) Close() {
	s.cache.Close()
}
