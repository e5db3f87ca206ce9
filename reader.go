package cogj

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Container is an open, read-only container. The header and its chunk index
// are built once in Open and never change, so one Container can serve any
// number of concurrent queries.
type Container struct {
	locator string
	fetcher RangeFetcher
	header  *Header
	codec   Codec
	tree    *Tree
	opts    *Options
	log     *zap.Logger
}

// Open reads the header of the container at locator with a bounded prefix
// read and indexes its chunks. No chunk bytes are read.
func Open(ctx context.Context, fetcher RangeFetcher, locator string, opts *Options) (*Container, error) {
	opts = opts.withDefaults()
	builder, err := NewIndexBuilder(opts.MinItemsPerNode, opts.MaxItemsPerNode)
	if err != nil {
		return nil, err
	}
	log := opts.Logger.With(zap.String("locator", locator))

	raw, err := loadHeader(ctx, fetcher, locator, opts, log)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	codec, err := CodecFor(h.Encoding)
	if err != nil {
		return nil, configError(ErrUnknownEncoding, "%v", err)
	}

	c := &Container{
		locator: locator,
		fetcher: fetcher,
		header:  h,
		codec:   codec,
		tree:    builder.Build(h.Chunks),
		opts:    opts,
		log:     log,
	}
	log.Debug("opened container",
		zap.String("name", h.Name),
		zap.Int("chunks", len(h.Chunks)),
		zap.Uint64("features", h.TotalFeatures()),
		zap.Int("index_height", c.tree.Height()))
	return c, nil
}

// OpenFile opens a container stored in a local file.
func OpenFile(path string, opts *Options) (*Container, error) {
	return Open(context.Background(), FileFetcher{}, path, opts)
}

// OpenData opens a container held in memory.
func OpenData(data []byte, opts *Options) (*Container, error) {
	f := NewBytesFetcher()
	f.Put("memory", data)
	return Open(context.Background(), f, "memory", opts)
}

func loadHeader(ctx context.Context, fetcher RangeFetcher, locator string, opts *Options, log *zap.Logger) ([]byte, error) {
	if opts.HeaderStore != nil {
		raw, ok, err := opts.HeaderStore.LoadHeader(ctx, locator)
		switch {
		case err != nil:
			log.Warn("header store load failed", zap.Error(err))
		case ok:
			return raw, nil
		}
	}
	raw, err := readHeaderPrefix(ctx, fetcher, locator, opts.HeaderPrefix)
	if err != nil {
		return nil, err
	}
	if opts.HeaderStore != nil {
		if err := opts.HeaderStore.StoreHeader(ctx, locator, raw); err != nil {
			log.Warn("header store save failed", zap.Error(err))
		}
	}
	return raw, nil
}

// readHeaderPrefix fetches the first size bytes and decodes the leading JSON
// value. A header cut off by the prefix is retried with twice the prefix, up
// to maxHeaderPrefix.
func readHeaderPrefix(ctx context.Context, fetcher RangeFetcher, locator string, size uint64) ([]byte, error) {
	for {
		data, err := fetcher.FetchRange(ctx, locator, 0, size-1)
		if err != nil {
			return nil, fmt.Errorf("%w: header: %w", ErrRetrieval, err)
		}
		var raw json.RawMessage
		err = json.NewDecoder(bytes.NewReader(data)).Decode(&raw)
		if err == nil {
			return raw, nil
		}
		truncated := errors.Is(err, io.ErrUnexpectedEOF) && uint64(len(data)) == size
		if !truncated || size >= maxHeaderPrefix {
			return nil, configError(ErrMalformedHeader, "header in first %d bytes: %v", len(data), err)
		}
		size = min(2*size, maxHeaderPrefix)
	}
}

// Header returns the container header. Callers must not modify it.
func (c *Container) Header() *Header {
	return c.header
}

// Index returns the chunk index built at open.
func (c *Container) Index() *Tree {
	return c.tree
}

// Locator returns the locator the container was opened with.
func (c *Container) Locator() string {
	return c.locator
}

// Metadata returns capability metadata for the container.
func (c *Container) Metadata() Metadata {
	return c.header.Metadata(c.locator)
}

// DescribeProperties returns the sorted property names of the first feature
// of the smallest chunk. It reads one chunk.
func (c *Container) DescribeProperties(ctx context.Context) ([]string, error) {
	i := c.header.SmallestChunk()
	if i < 0 || c.header.Chunks[i].FeatureCount == 0 {
		return nil, nil
	}
	features, err := c.ReadChunk(ctx, i)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(features[0].Properties))
	for name := range features[0].Properties {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// ReadChunk fetches and decodes the chunk at header position i.
func (c *Container) ReadChunk(ctx context.Context, i int) ([]*geojson.Feature, error) {
	if i < 0 || i >= len(c.header.Chunks) {
		return nil, fmt.Errorf("%w: chunk %d of %d", ErrOutOfRange, i, len(c.header.Chunks))
	}
	return c.fetchChunk(ctx, i)
}

// ReadAll fetches every chunk. It is meant for small containers and tools;
// queries should use Query.
func (c *Container) ReadAll(ctx context.Context) (*geojson.FeatureCollection, error) {
	positions := make([]int, len(c.header.Chunks))
	for i := range positions {
		positions[i] = i
	}
	chunks, err := c.fetchChunks(ctx, positions)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, features := range chunks {
		fc.Features = append(fc.Features, features...)
	}
	if len(c.header.Chunks) > 0 {
		fc.BBox = geojson.BBox(c.header.BBox[:])
	}
	return fc, nil
}
