package cogj

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// fgbGeometryType maps an orb geometry onto the FlatGeobuf type enum. Rings
// and bounds are written as polygons.
func fgbGeometryType(g orb.Geometry) flattypes.GeometryType {
	switch g.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon, orb.Bound:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerGeometryType is the common type of every geometry, or Unknown when
// the chunk mixes types.
func layerGeometryType(geoms []orb.Geometry) flattypes.GeometryType {
	if len(geoms) == 0 {
		return flattypes.GeometryTypeUnknown
	}
	t := fgbGeometryType(geoms[0])
	for _, g := range geoms[1:] {
		if fgbGeometryType(g) != t {
			return flattypes.GeometryTypeUnknown
		}
	}
	return t
}

func appendXY[P ~[]orb.Point](xy []float64, pts P) []float64 {
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flattenParts packs point sequences into one coordinate array plus the
// running end offset of each sequence, counted in points.
func flattenParts[P ~[]orb.Point](parts []P) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	for _, p := range parts {
		xy = appendXY(xy, p)
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

// encodeGeometry builds the FlatGeobuf form of g.
func encodeGeometry(g orb.Geometry, b *flatbuffers.Builder) (*writer.Geometry, error) {
	if g == nil {
		return nil, ErrNilGeometry
	}
	out := writer.NewGeometry(b)
	out.SetType(fgbGeometryType(g))

	switch v := g.(type) {
	case orb.Point:
		out.SetXY([]float64{v[0], v[1]})
	case orb.MultiPoint:
		out.SetXY(appendXY(nil, v))
	case orb.LineString:
		out.SetXY(appendXY(nil, v))
	case orb.MultiLineString:
		xy, ends := flattenParts(v)
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.Ring:
		xy, ends := flattenParts([]orb.Ring{v})
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.Bound:
		xy, ends := flattenParts([]orb.Ring(v.ToPolygon()))
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.Polygon:
		xy, ends := flattenParts([]orb.Ring(v))
		out.SetXY(xy)
		out.SetEnds(ends)
	case orb.MultiPolygon:
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			p, err := encodeGeometry(poly, b)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *p)
		}
		out.SetParts(parts)
	case orb.Collection:
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			p, err := encodeGeometry(child, b)
			if err != nil {
				return nil, err
			}
			parts = append(parts, *p)
		}
		out.SetParts(parts)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, g)
	}
	return out, nil
}

// decodeGeometry converts a stored FlatGeobuf geometry back to orb.
func decodeGeometry(g *flattypes.Geometry) (orb.Geometry, error) {
	if g == nil {
		return nil, ErrNilGeometry
	}
	switch t := g.Type(); t {
	case flattypes.GeometryTypePoint:
		pts := points(g, 0, g.XyLength()/2)
		if len(pts) == 0 {
			return orb.Point{}, nil
		}
		return pts[0], nil
	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(points(g, 0, g.XyLength()/2)), nil
	case flattypes.GeometryTypeLineString:
		return orb.LineString(points(g, 0, g.XyLength()/2)), nil
	case flattypes.GeometryTypeMultiLineString:
		parts := splitEnds(g)
		out := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			out[i] = orb.LineString(p)
		}
		return out, nil
	case flattypes.GeometryTypePolygon:
		return polygonOf(g), nil
	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			return orb.MultiPolygon{polygonOf(g)}, nil
		}
		out := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				out = append(out, polygonOf(&part))
			}
		}
		return out, nil
	case flattypes.GeometryTypeGeometryCollection:
		out := make(orb.Collection, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				continue
			}
			child, err := decodeGeometry(&part)
			if err != nil {
				return nil, err
			}
			out = append(out, child)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: flatgeobuf type %s", ErrUnsupportedType, flattypes.EnumNamesGeometryType[t])
	}
}

// points reads the coordinate pairs [from, to).
func points(g *flattypes.Geometry, from, to int) []orb.Point {
	if to > g.XyLength()/2 {
		to = g.XyLength() / 2
	}
	if from >= to {
		return nil
	}
	out := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return out
}

// splitEnds cuts the coordinates at each end offset. Without ends the whole
// array is one part.
func splitEnds(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if g.EndsLength() == 0 {
		if n == 0 {
			return nil
		}
		return [][]orb.Point{points(g, 0, n)}
	}
	out := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		out = append(out, points(g, start, end))
		start = end
	}
	return out
}

func polygonOf(g *flattypes.Geometry) orb.Polygon {
	parts := splitEnds(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}
