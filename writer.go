package cogj

import (
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Write writes geometries as a container of property-less features.
func Write(w io.Writer, geometries []orb.Geometry, opts *WriteOptions) (*Header, error) {
	fc := geojson.NewFeatureCollection()
	for _, g := range geometries {
		if g != nil {
			fc.Append(geojson.NewFeature(g))
		}
	}
	return WriteFeatures(w, fc, opts)
}

// WriteFeature writes a container holding a single feature.
func WriteFeature(w io.Writer, f *geojson.Feature, opts *WriteOptions) (*Header, error) {
	if f == nil {
		return nil, configError(ErrNilGeometry, "nil feature")
	}
	return WriteFeatures(w, &geojson.FeatureCollection{Features: []*geojson.Feature{f}}, opts)
}

// WriteFeatures groups the features into spatially compact chunks, encodes
// each chunk and writes the header followed by the chunks. Features without
// a geometry are skipped. The returned header is the one written.
func WriteFeatures(w io.Writer, fc *geojson.FeatureCollection, opts *WriteOptions) (*Header, error) {
	if opts == nil {
		opts = DefaultWriteOptions()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultWriteOptions().ChunkSize
	}
	reserve := opts.HeaderPrefix
	if reserve == 0 {
		reserve = DefaultHeaderPrefix
	}
	codec, err := writeCodec(opts)
	if err != nil {
		return nil, err
	}

	var features []*geojson.Feature
	if fc != nil {
		for _, f := range fc.Features {
			if f != nil && f.Geometry != nil {
				features = append(features, f)
			}
		}
	}
	if len(features) == 0 {
		return nil, configError(ErrNilGeometry, "no features with a geometry")
	}

	groups, boxes := chunkFeatures(features, chunkSize)
	h := &Header{
		Name:        opts.Name,
		Description: opts.Description,
		Version:     opts.Version,
		Published:   opts.Published,
		BBox:        unionAll(boxes),
		Chunks:      make([]ChunkDescriptor, len(groups)),
	}
	if codec.Name() != EncodingGeoJSON {
		h.Encoding = codec.Name()
	}

	payloads := make([][]byte, len(groups))
	for i, g := range groups {
		chunk := make([]*geojson.Feature, len(g))
		for j, idx := range g {
			chunk[j] = features[idx]
		}
		if payloads[i], err = codec.Encode(chunk); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrConfiguration, i, err)
		}
		h.Chunks[i] = ChunkDescriptor{
			BBox:         boxes[i],
			ByteLength:   uint64(len(payloads[i])),
			FeatureCount: uint32(len(g)),
		}
	}

	head, err := layoutHeader(h, reserve)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(head); err != nil {
		return nil, fmt.Errorf("cogj: write header: %w", err)
	}
	for i, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return nil, fmt.Errorf("cogj: write chunk %d: %w", i, err)
		}
	}
	return h, nil
}

func writeCodec(opts *WriteOptions) (Codec, error) {
	c, err := CodecFor(opts.Encoding)
	if err != nil {
		return nil, configError(ErrUnknownEncoding, "%v", err)
	}
	if _, ok := c.(flatGeobufCodec); ok {
		c = flatGeobufCodec{layer: opts.Name, crs: opts.CRS}
	}
	return c, nil
}

// chunkFeatures tiles the features into groups of at most size with one STR
// pass, then orders the groups by the leaves of an index over their boxes.
// Features keep their input order inside a group.
func chunkFeatures(features []*geojson.Feature, size int) ([][]int, []BBox) {
	fboxes := make([]BBox, len(features))
	for i, f := range features {
		fboxes[i] = GeometryBBox(f.Geometry)
	}
	p := newPacker(fboxes)
	tiles := p.tile(0, len(features), ceilDiv(len(features), size), 0)

	groups := make([][]int, len(tiles))
	boxes := make([]BBox, len(tiles))
	for i, t := range tiles {
		g := slices.Clone(p.order[t[0]:t[1]])
		slices.Sort(g)
		groups[i] = g
		gb := make([]BBox, len(g))
		for j, idx := range g {
			gb[j] = fboxes[idx]
		}
		boxes[i] = unionAll(gb)
	}

	b, _ := NewIndexBuilder(DefaultOptions().MinItemsPerNode, DefaultOptions().MaxItemsPerNode)
	order := b.buildBoxes(boxes).LeafOrder()
	outGroups := make([][]int, len(order))
	outBoxes := make([]BBox, len(order))
	for i, pos := range order {
		outGroups[i] = groups[pos]
		outBoxes[i] = boxes[pos]
	}
	return outGroups, outBoxes
}

// layoutHeader assigns chunk offsets behind a header reservation and returns
// the padded header bytes. The reservation starts at reserve and doubles
// until the encoded header fits in front of the offsets it names.
func layoutHeader(h *Header, reserve uint64) ([]byte, error) {
	for {
		offset := reserve
		for i := range h.Chunks {
			h.Chunks[i].ByteStart = offset
			offset += h.Chunks[i].ByteLength
		}
		raw, err := h.MarshalJSON()
		if err != nil {
			return nil, err
		}
		if uint64(len(raw)) < reserve {
			out := make([]byte, reserve)
			copy(out, raw)
			pad := out[len(raw):]
			for i := range pad {
				pad[i] = ' '
			}
			pad[len(pad)-1] = '\n'
			return out, nil
		}
		reserve *= 2
	}
}
