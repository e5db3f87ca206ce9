package cogj

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var testBounds = BBox{-10, -10, 10, 10}

// rangeBoxes draws both corners uniformly inside bounds.
func rangeBoxes(r *rand.Rand, n int, bounds BBox) []BBox {
	out := make([]BBox, n)
	for i := range out {
		x0, x1 := uniform(r, bounds[0], bounds[2]), uniform(r, bounds[0], bounds[2])
		y0, y1 := uniform(r, bounds[1], bounds[3]), uniform(r, bounds[1], bounds[3])
		out[i] = BBox{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
	}
	return out
}

// sizeBoxes draws a uniform centre and log-normal width and height.
func sizeBoxes(r *rand.Rand, n int, bounds BBox) []BBox {
	out := make([]BBox, n)
	for i := range out {
		cx, cy := uniform(r, bounds[0], bounds[2]), uniform(r, bounds[1], bounds[3])
		w, h := math.Exp(r.NormFloat64()-1), math.Exp(r.NormFloat64()-1)
		out[i] = BBox{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
	}
	return out
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

func descriptorsFor(boxes []BBox) []ChunkDescriptor {
	out := make([]ChunkDescriptor, len(boxes))
	for i, b := range boxes {
		out[i] = ChunkDescriptor{BBox: b, FeatureCount: 1}
	}
	return out
}

// numberedPoints returns n point features whose "n" property counts from
// first.
func numberedPoints(first, n int, x0, y0 float64) []*geojson.Feature {
	out := make([]*geojson.Feature, n)
	for i := range out {
		f := geojson.NewFeature(orb.Point{x0 + float64(i), y0 + float64(i)})
		f.Properties = geojson.Properties{"n": float64(first + i)}
		out[i] = f
	}
	return out
}

// assemble lays out pre-grouped chunks as a GeoJSON container, bypassing the
// writer's own grouping.
func assemble(t *testing.T, chunks [][]*geojson.Feature) ([]byte, *Header) {
	t.Helper()
	h := &Header{Name: "test", Chunks: make([]ChunkDescriptor, len(chunks))}
	var payload bytes.Buffer
	var boxes []BBox
	for i, c := range chunks {
		data, err := geoJSONCodec{}.Encode(c)
		if err != nil {
			t.Fatalf("encode chunk %d: %v", i, err)
		}
		fs := make([]BBox, len(c))
		for j, f := range c {
			fs[j] = GeometryBBox(f.Geometry)
		}
		box := unionAll(fs)
		boxes = append(boxes, box)
		h.Chunks[i] = ChunkDescriptor{BBox: box, ByteLength: uint64(len(data)), FeatureCount: uint32(len(c))}
		payload.Write(data)
	}
	h.BBox = unionAll(boxes)
	head, err := layoutHeader(h, 256)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return append(head, payload.Bytes()...), h
}

// fetchLog wraps a fetcher and records every range it serves.
type fetchLog struct {
	RangeFetcher
	mu     sync.Mutex
	ranges [][2]uint64
}

func (f *fetchLog) FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]uint64{start, end})
	f.mu.Unlock()
	return f.RangeFetcher.FetchRange(ctx, locator, start, end)
}

func (f *fetchLog) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = nil
}

// chunksFetched maps the recorded ranges back to header positions.
func (f *fetchLog) chunksFetched(h *Header) map[int]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]bool)
	for _, r := range f.ranges {
		for i, d := range h.Chunks {
			if d.ByteStart == r[0] && d.End() == r[1] {
				out[i] = true
			}
		}
	}
	return out
}

// openLogged opens data through a fetchLog and clears the header read.
func openLogged(t *testing.T, data []byte, opts *Options) (*Container, *fetchLog) {
	t.Helper()
	mem := NewBytesFetcher()
	mem.Put("mem://test", data)
	log := &fetchLog{RangeFetcher: mem}
	c, err := Open(context.Background(), log, "mem://test", opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	log.reset()
	return c, log
}
