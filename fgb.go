package cogj

import (
	"bytes"
	"fmt"
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// flatGeobufCodec stores a chunk as a complete FlatGeobuf file with its own
// packed index, so a chunk can also be served to FlatGeobuf clients as is.
type flatGeobufCodec struct {
	layer string
	crs   *CRS
}

func (flatGeobufCodec) Name() string { return EncodingFlatGeobuf }

func (c flatGeobufCodec) Encode(features []*geojson.Feature) ([]byte, error) {
	geoms := make([]orb.Geometry, len(features))
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			return nil, ErrNilGeometry
		}
		if fgbGeometryType(f.Geometry) == flattypes.GeometryTypeUnknown {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, f.Geometry)
		}
		geoms[i] = f.Geometry
	}

	b := flatbuffers.NewBuilder(4096)
	header := writer.NewHeader(b)
	header.SetGeometryType(layerGeometryType(geoms))
	if c.layer != "" {
		header.SetName(c.layer)
	}

	schema := inferSchema(features)
	if len(schema) > 0 {
		cols := make([]*writer.Column, len(schema))
		for i, s := range schema {
			col := writer.NewColumn(b)
			col.SetName(s.Name)
			col.SetTitle(s.Name)
			col.SetType(s.Type)
			col.SetNullable(true)
			cols[i] = col
		}
		header.SetColumns(cols)
	}

	if c.crs != nil {
		crs := writer.NewCrs(b)
		crs.SetOrg("EPSG")
		if c.crs.Code > 0 {
			crs.SetCode(int32(c.crs.Code))
		}
		if c.crs.Name != "" {
			crs.SetName(c.crs.Name)
		}
		switch {
		case c.crs.Description != "":
			crs.SetDescription(c.crs.Description)
		case c.crs.WKT != "":
			crs.SetDescription(c.crs.WKT)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{features: features, schema: schema}
	var buf bytes.Buffer
	if _, err := writer.NewWriter(header, true, gen, nil).Write(&buf); err != nil {
		return nil, err
	}
	if gen.err != nil {
		return nil, gen.err
	}
	return buf.Bytes(), nil
}

func (flatGeobufCodec) Decode(data []byte) ([]*geojson.Feature, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}
	h := fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("flatgeobuf chunk without header")
	}
	if h.FeaturesCount() == 0 {
		return nil, nil
	}
	if h.IndexNodeSize() == 0 {
		return nil, fmt.Errorf("flatgeobuf chunk without index")
	}

	// The whole plane: chunks are decoded completely.
	found, err := fgb.Search(-math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, err
	}
	out := make([]*geojson.Feature, 0, len(found))
	for i, f := range found {
		feature, err := decodeFeature(f, h)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, feature)
	}
	return out, nil
}

func decodeFeature(f *flattypes.Feature, h *flattypes.Header) (*geojson.Feature, error) {
	if f == nil {
		return nil, ErrNilGeometry
	}
	var stored flattypes.Geometry
	g, err := decodeGeometry(f.Geometry(&stored))
	if err != nil {
		return nil, err
	}
	feature := geojson.NewFeature(g)

	if n := f.PropertiesLength(); n > 0 && h.ColumnsLength() > 0 {
		raw := make([]byte, n)
		for i := range raw {
			raw[i] = byte(f.Properties(i))
		}
		props, err := decodeProperties(raw, h)
		if err != nil {
			return nil, err
		}
		feature.Properties = props
	}
	return feature, nil
}

// featureGenerator feeds features to the FlatGeobuf writer. The writer has
// no error path, so the first failure stops generation and is kept in err.
type featureGenerator struct {
	features []*geojson.Feature
	schema   []column
	next     int
	err      error
}

func (g *featureGenerator) Generate() *writer.Feature {
	if g.err != nil || g.next >= len(g.features) {
		return nil
	}
	f := g.features[g.next]
	g.next++

	b := flatbuffers.NewBuilder(1024)
	geom, err := encodeGeometry(f.Geometry, b)
	if err != nil {
		g.err = err
		return nil
	}
	out := writer.NewFeature(b)
	out.SetGeometry(geom)

	if len(g.schema) > 0 && len(f.Properties) > 0 {
		props, err := encodeProperties(f.Properties, g.schema)
		if err != nil {
			g.err = err
			return nil
		}
		if len(props) > 0 {
			out.SetProperties(props)
		}
	}
	return out
}
