package cogj

import (
	"context"
	"errors"
	"slices"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/jesserobertson/cogj/internal/metrics"
)

// Query selects a page of features.
type Query struct {
	BBox           *BBox  // nil selects every chunk
	StartIndex     uint64 // zero-based index of the first feature
	Count          uint64 // page size; 0 means Options.PageSize
	ResultTypeHits bool   // only count matches, fetch nothing
}

// Result is one page of a query.
type Result struct {
	Features        []*geojson.Feature
	TotalMatched    uint64
	ReturnedBBox    *BBox // union of the returned geometries' bounds
	HasNextPage     bool
	HasPreviousPage bool
}

// FeatureCollection renders the page as GeoJSON with the WFS match counts
// as foreign members.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if r.Features != nil {
		fc.Features = r.Features
	}
	if r.ReturnedBBox != nil {
		fc.BBox = geojson.BBox(r.ReturnedBBox[:])
	}
	fc.ExtraMembers = geojson.Properties{
		"numberMatched":  r.TotalMatched,
		"numberReturned": len(r.Features),
	}
	return fc
}

// SelectChunks returns the header positions of the chunks whose bounds
// intersect q, in header order. A nil q selects every chunk, or only the
// first Options.Preview chunks when preview mode is on.
func (c *Container) SelectChunks(q *BBox) []int {
	n := len(c.header.Chunks)
	if q == nil {
		if c.opts.Preview > 0 {
			n = min(n, c.opts.Preview)
		}
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	var out []int
	if c.opts.LinearScan {
		for i, d := range c.header.Chunks {
			if d.BBox.Intersects(*q) {
				out = append(out, i)
			}
		}
		return out
	}
	c.tree.Search(*q, func(chunk int) {
		out = append(out, chunk)
	})
	slices.Sort(out)
	return out
}

// Query answers q with one range read per chunk on the page. Chunks outside
// the page are never read. A start beyond the matched features returns a
// *RangeError; a box matching nothing is an empty result.
func (c *Container) Query(ctx context.Context, q Query) (*Result, error) {
	res, err := c.query(ctx, q)
	switch {
	case err == nil && q.ResultTypeHits:
		metrics.QueriesTotal.WithLabelValues("hits").Inc()
	case err == nil:
		metrics.QueriesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrOutOfRange):
		metrics.QueriesTotal.WithLabelValues("out_of_range").Inc()
	default:
		metrics.QueriesTotal.WithLabelValues("error").Inc()
	}
	return res, err
}

func (c *Container) query(ctx context.Context, q Query) (*Result, error) {
	if q.BBox != nil && !q.BBox.Valid() {
		return nil, configError(ErrInvalidBBox, "query bbox %v", *q.BBox)
	}
	positions := c.SelectChunks(q.BBox)
	counts := make([]uint32, len(positions))
	for i, p := range positions {
		counts[i] = c.header.Chunks[p].FeatureCount
	}

	if q.ResultTypeHits {
		var total uint64
		for _, n := range counts {
			total += uint64(n)
		}
		return &Result{TotalMatched: total}, nil
	}

	count := q.Count
	if count == 0 {
		count = c.opts.PageSize
	}
	page, err := Paginate(counts, q.StartIndex, count)
	if err != nil {
		return nil, err
	}

	need := make([]int, len(page.Spans))
	for i, s := range page.Spans {
		need[i] = positions[s.Position]
	}
	metrics.ChunksFetched.Observe(float64(len(need)))
	chunks, err := c.fetchChunks(ctx, need)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Features:        make([]*geojson.Feature, 0, page.Returned),
		TotalMatched:    page.TotalMatched,
		HasNextPage:     page.HasNextPage,
		HasPreviousPage: page.HasPreviousPage,
	}
	for i, s := range page.Spans {
		res.Features = append(res.Features, chunks[i][s.Skip:s.Skip+s.Take]...)
	}
	res.ReturnedBBox = featuresBBox(res.Features)

	c.log.Debug("query",
		zap.Stringer("bbox", optionalBBox{q.BBox}),
		zap.Uint64("start", q.StartIndex),
		zap.Uint64("count", count),
		zap.Int("chunks_selected", len(positions)),
		zap.Int("chunks_fetched", len(need)),
		zap.Uint64("matched", page.TotalMatched),
		zap.Int("returned", len(res.Features)))
	return res, nil
}

// featuresBBox is the union of the feature geometries' bounds, or nil when
// no feature has a geometry.
func featuresBBox(features []*geojson.Feature) *BBox {
	var out *BBox
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := GeometryBBox(f.Geometry)
		if out == nil {
			out = &b
			continue
		}
		*out = out.Union(b)
	}
	return out
}

type optionalBBox struct{ b *BBox }

func (o optionalBBox) String() string {
	if o.b == nil {
		return "none"
	}
	return o.b.String()
}
