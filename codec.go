package cogj

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Chunk encodings named in a container header.
const (
	EncodingGeoJSON    = "geojson"
	EncodingFlatGeobuf = "flatgeobuf"
)

// Codec turns a chunk of features into a self-contained byte payload and
// back. Decode must return the features in the order Encode wrote them, or in
// another order that is fixed for a given payload.
type Codec interface {
	Name() string
	Encode(features []*geojson.Feature) ([]byte, error)
	Decode(data []byte) ([]*geojson.Feature, error)
}

// CodecFor returns the codec for a header encoding. The empty string is the
// GeoJSON codec, so headers without an encoding field stay readable.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", EncodingGeoJSON:
		return geoJSONCodec{}, nil
	case EncodingFlatGeobuf:
		return flatGeobufCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// geoJSONCodec stores a chunk as a GeoJSON FeatureCollection.
type geoJSONCodec struct{}

func (geoJSONCodec) Name() string { return EncodingGeoJSON }

func (geoJSONCodec) Encode(features []*geojson.Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Features = features
	return fc.MarshalJSON()
}

func (geoJSONCodec) Decode(data []byte) ([]*geojson.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	return fc.Features, nil
}
