package cogj

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBox is an axis-aligned rectangle [minX, minY, maxX, maxY]. It marshals to
// and from the JSON array form used in container headers.
type BBox [4]float64

// NewBBox returns a validated bounding box.
func NewBBox(minX, minY, maxX, maxY float64) (BBox, error) {
	b := BBox{minX, minY, maxX, maxY}
	if !b.Valid() {
		return BBox{}, fmt.Errorf("%w: %v", ErrInvalidBBox, b)
	}
	return b, nil
}

// ParseBBox parses "minX,minY,maxX,maxY" as sent in a BBOX query parameter.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: want 4 values, got %d", ErrInvalidBBox, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: %q: %v", ErrInvalidBBox, p, err)
		}
		v[i] = f
	}
	return NewBBox(v[0], v[1], v[2], v[3])
}

// BBoxFromBound converts an orb.Bound.
func BBoxFromBound(b orb.Bound) BBox {
	return BBox{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// GeometryBBox returns the bounds of a geometry.
func GeometryBBox(g orb.Geometry) BBox {
	return BBoxFromBound(g.Bound())
}

// MinX returns the western edge.
func (b BBox) MinX() float64 { return b[0] }

// MinY returns the southern edge.
func (b BBox) MinY() float64 { return b[1] }

// MaxX returns the eastern edge.
func (b BBox) MaxX() float64 { return b[2] }

// MaxY returns the northern edge.
func (b BBox) MaxY() float64 { return b[3] }

// Valid reports whether min <= max on both axes and no value is NaN.
func (b BBox) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) {
			return false
		}
	}
	return b[0] <= b[2] && b[1] <= b[3]
}

// Intersects reports whether the boxes share at least one point. Touching
// edges intersect.
func (b BBox) Intersects(o BBox) bool {
	return b[0] <= o[2] && o[0] <= b[2] &&
		b[1] <= o[3] && o[1] <= b[3]
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	return b[0] <= o[0] && o[2] <= b[2] &&
		b[1] <= o[1] && o[3] <= b[3]
}

// Union returns the smallest box covering both.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		math.Min(b[0], o[0]),
		math.Min(b[1], o[1]),
		math.Max(b[2], o[2]),
		math.Max(b[3], o[3]),
	}
}

// Centre returns the centroid.
func (b BBox) Centre() orb.Point {
	return orb.Point{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2}
}

// Bound converts to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b[0], b[1], b[2], b[3])
}

// UnmarshalJSON requires exactly four numbers.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("%w: want 4 values, got %d", ErrInvalidBBox, len(v))
	}
	copy(b[:], v)
	return nil
}

// unionAll folds a non-empty list of boxes.
func unionAll(boxes []BBox) BBox {
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = out.Union(b)
	}
	return out
}
