package cogj

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultHeaderPrefix is the number of bytes read to find a container header.
const DefaultHeaderPrefix = 10000

// maxHeaderPrefix bounds how far a reader grows the prefix for large headers.
const maxHeaderPrefix = 8 << 20

// ChunkDescriptor locates one chunk of features inside a container.
type ChunkDescriptor struct {
	BBox         BBox
	ByteStart    uint64
	ByteLength   uint64
	FeatureCount uint32
}

// Located reports whether the header gave the chunk a byte range.
func (c ChunkDescriptor) Located() bool {
	return c.ByteLength > 0
}

// End returns the inclusive last byte of the chunk.
func (c ChunkDescriptor) End() uint64 {
	return c.ByteStart + c.ByteLength - 1
}

// Header is the summary at the front of a container. It is created once when
// the container is written and read-only afterwards.
type Header struct {
	Name        string
	Description string
	Version     string
	Published   string
	Encoding    string
	BBox        BBox
	Chunks      []ChunkDescriptor
}

// TotalFeatures returns the feature count over every chunk.
func (h *Header) TotalFeatures() uint64 {
	var n uint64
	for _, c := range h.Chunks {
		n += uint64(c.FeatureCount)
	}
	return n
}

// SmallestChunk returns the position of the first chunk with the fewest
// features, or -1 when there are no chunks.
func (h *Header) SmallestChunk() int {
	best := -1
	for i, c := range h.Chunks {
		if best < 0 || c.FeatureCount < h.Chunks[best].FeatureCount {
			best = i
		}
	}
	return best
}

// Metadata describes a dataset for capability documents.
type Metadata struct {
	Name     string // derived from the container locator
	Title    string
	Abstract string
	BBox     BBox
}

// Metadata builds the capability metadata of the container at locator.
func (h *Header) Metadata(locator string) Metadata {
	m := Metadata{Name: locatorBase(locator), Title: h.Name, BBox: h.BBox}
	if m.Title == "" {
		m.Title = "Unnamed dataset"
	}
	var parts []string
	if h.Description != "" {
		parts = append(parts, h.Description)
	}
	if h.Version != "" {
		parts = append(parts, fmt.Sprintf("Version: %s.", h.Version))
	}
	if h.Published != "" {
		parts = append(parts, fmt.Sprintf("Published on: %s.", h.Published))
	}
	m.Abstract = strings.Join(parts, " ")
	return m
}

func locatorBase(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(locator)
}

// Wire form, see MarshalJSON/ParseHeader.
type headerJSON struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Version     string       `json:"version,omitempty"`
	Published   string       `json:"published,omitempty"`
	Encoding    string       `json:"encoding,omitempty"`
	BBox        *BBox        `json:"bbox"`
	Collections *[]chunkJSON `json:"collections"`
}

type chunkJSON struct {
	BBox     *BBox   `json:"bbox"`
	Start    *uint64 `json:"start,omitempty"`
	Size     *uint64 `json:"size,omitempty"`
	Features *uint32 `json:"features"`
}

// MarshalJSON encodes the header in its container form.
func (h *Header) MarshalJSON() ([]byte, error) {
	chunks := make([]chunkJSON, len(h.Chunks))
	for i := range h.Chunks {
		c := &h.Chunks[i]
		chunks[i] = chunkJSON{BBox: &c.BBox, Features: &c.FeatureCount}
		if c.Located() {
			chunks[i].Start = &c.ByteStart
			chunks[i].Size = &c.ByteLength
		}
	}
	bbox := h.BBox
	return json.Marshal(headerJSON{
		Name:        h.Name,
		Description: h.Description,
		Version:     h.Version,
		Published:   h.Published,
		Encoding:    h.Encoding,
		BBox:        &bbox,
		Collections: &chunks,
	})
}

// ParseHeader decodes and validates a container header. A chunk without a
// start or size is accepted here and fails when it is fetched.
func ParseHeader(raw []byte) (*Header, error) {
	var w headerJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, configError(ErrMalformedHeader, "%v", err)
	}
	if w.BBox == nil {
		return nil, configError(ErrMalformedHeader, "missing 'bbox'")
	}
	if !w.BBox.Valid() {
		return nil, configError(ErrMalformedHeader, "invalid bbox %v", *w.BBox)
	}
	if w.Collections == nil {
		return nil, configError(ErrMalformedHeader, "missing 'collections'")
	}
	if _, err := CodecFor(w.Encoding); err != nil {
		return nil, configError(ErrMalformedHeader, "%v", err)
	}

	h := &Header{
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Published:   w.Published,
		Encoding:    w.Encoding,
		BBox:        *w.BBox,
		Chunks:      make([]ChunkDescriptor, len(*w.Collections)),
	}
	for i, c := range *w.Collections {
		if c.BBox == nil || !c.BBox.Valid() {
			return nil, configError(ErrMalformedHeader, "collection %d: missing or invalid 'bbox'", i)
		}
		if c.Features == nil {
			return nil, configError(ErrMalformedHeader, "collection %d: missing 'features'", i)
		}
		d := ChunkDescriptor{BBox: *c.BBox, FeatureCount: *c.Features}
		if c.Start != nil && c.Size != nil {
			d.ByteStart, d.ByteLength = *c.Start, *c.Size
		}
		h.Chunks[i] = d
	}
	return h, nil
}
