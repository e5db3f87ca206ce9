package cogj

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// fetchChunks reads and decodes the chunks at the given header positions
// with at most Options.Workers reads in flight. Results come back in the
// order of positions. The first failure cancels the rest and fails the
// whole call.
func (c *Container) fetchChunks(ctx context.Context, positions []int) ([][]*geojson.Feature, error) {
	out := make([][]*geojson.Feature, len(positions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			features, err := c.fetchChunk(ctx, pos)
			if err != nil {
				return err
			}
			out[i] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchChunk issues the single range read for chunk i and checks the result
// against its descriptor.
func (c *Container) fetchChunk(ctx context.Context, i int) ([]*geojson.Feature, error) {
	d := c.header.Chunks[i]
	if !d.Located() {
		return nil, retrievalError(i, ErrMissingLocation)
	}
	data, err := c.fetcher.FetchRange(ctx, c.locator, d.ByteStart, d.End())
	if err != nil {
		return nil, retrievalError(i, err)
	}
	if uint64(len(data)) != d.ByteLength {
		return nil, retrievalError(i, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, len(data), d.ByteLength))
	}
	features, err := c.codec.Decode(data)
	if err != nil {
		return nil, retrievalError(i, fmt.Errorf("decode %s: %w", c.codec.Name(), err))
	}
	if len(features) != int(d.FeatureCount) {
		return nil, retrievalError(i, fmt.Errorf("%w: header says %d, decoded %d",
			ErrFeatureCountMismatch, d.FeatureCount, len(features)))
	}
	c.log.Debug("fetched chunk",
		zap.Int("chunk", i),
		zap.Uint64("start", d.ByteStart),
		zap.Uint64("length", d.ByteLength))
	return features, nil
}
