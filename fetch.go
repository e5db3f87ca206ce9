package cogj

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jesserobertson/cogj/internal/metrics"
)

// RangeFetcher reads an inclusive byte range of the resource at locator.
//
// Implementations return exactly the requested bytes, except that a range
// running past the end of the resource is cut short at the end, the way HTTP
// servers answer such requests. A start beyond the end is an error.
type RangeFetcher interface {
	FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error)
}

// HeaderStore caches raw container headers by locator. Containers are
// immutable once written, so a stored header stays valid until the container
// is rebuilt under the same locator.
type HeaderStore interface {
	LoadHeader(ctx context.Context, locator string) ([]byte, bool, error)
	StoreHeader(ctx context.Context, locator string, raw []byte) error
}

// ErrNotFound reports a locator that names no resource.
var ErrNotFound = errors.New("cogj: resource not found")

func checkRange(start, end uint64) error {
	if end < start {
		return fmt.Errorf("cogj: invalid range %d-%d", start, end)
	}
	return nil
}

func observeFetch(fetcher string, began time.Time, n int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RangeReadsTotal.WithLabelValues(fetcher, outcome).Inc()
	metrics.RangeReadBytes.WithLabelValues(fetcher).Add(float64(n))
	metrics.RangeReadDurationMs.WithLabelValues(fetcher).Observe(float64(time.Since(began).Milliseconds()))
}

// FileFetcher reads ranges of local files; the locator is a path.
type FileFetcher struct{}

func (FileFetcher) FetchRange(ctx context.Context, path string, start, end uint64) (data []byte, err error) {
	began := time.Now()
	defer func() { observeFetch("file", began, len(data), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, end-start+1)
	n, err := f.ReadAt(buf, int64(start))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("cogj: range start %d beyond end of %s", start, path)
	}
	return buf[:n], nil
}

// BytesFetcher serves ranges of in-memory blobs. It is safe for concurrent
// use.
type BytesFetcher struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewBytesFetcher returns an empty fetcher.
func NewBytesFetcher() *BytesFetcher {
	return &BytesFetcher{blobs: make(map[string][]byte)}
}

// Put stores data under locator, replacing any previous blob.
func (f *BytesFetcher) Put(locator string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[locator] = data
}

func (f *BytesFetcher) FetchRange(ctx context.Context, locator string, start, end uint64) (data []byte, err error) {
	began := time.Now()
	defer func() { observeFetch("memory", began, len(data), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	f.mu.RLock()
	blob, ok := f.blobs[locator]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	if start >= uint64(len(blob)) {
		return nil, fmt.Errorf("cogj: range start %d beyond end of %s", start, locator)
	}
	end = min(end, uint64(len(blob))-1)
	out := make([]byte, end-start+1)
	copy(out, blob[start:end+1])
	return out, nil
}
