// Package cogj reads and writes cloud-optimised GeoJSON containers.
//
// A container is a JSON header followed by independently decodable chunks of
// features. The header lists every chunk's bounding box, byte range and
// feature count, so a reader can answer bounding-box and paginated queries
// with a single small prefix read plus one range read per chunk it actually
// needs. Containers are written once and served read-only.
package cogj

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error categories. Every error from opening, querying or reading a container
// and every rejected write input matches exactly one of these with errors.Is.
// Failures of the writer's destination and of a RangeFetcher called directly
// are returned with context but no category.
var (
	ErrConfiguration = errors.New("cogj: configuration error")
	ErrRetrieval     = errors.New("cogj: retrieval error")
	ErrOutOfRange    = errors.New("cogj: start index out of range")
)

// Specific causes, wrapped together with their category.
var (
	ErrInvalidFanout        = errors.New("cogj: invalid index fan-out")
	ErrMalformedHeader      = errors.New("cogj: malformed header")
	ErrMissingLocation      = errors.New("cogj: chunk has no start/size")
	ErrShortRead            = errors.New("cogj: range read returned the wrong length")
	ErrFeatureCountMismatch = errors.New("cogj: chunk feature count mismatch")
	ErrNilGeometry          = errors.New("cogj: nil geometry")
	ErrUnsupportedType      = errors.New("cogj: unsupported geometry type")
	ErrUnknownEncoding      = errors.New("cogj: unknown chunk encoding")
	ErrInvalidBBox          = errors.New("cogj: invalid bounding box")
)

// RangeError reports a pagination start beyond the matched features. Callers
// render it as "no more results" rather than as a failure.
type RangeError struct {
	Start uint64
	Total uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("cogj: start index %d out of range (%d features matched)", e.Start, e.Total)
}

// Is reports whether target is ErrOutOfRange.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

func configError(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrConfiguration, cause, fmt.Sprintf(format, args...))
}

func retrievalError(chunk int, cause error) error {
	return fmt.Errorf("%w: chunk %d: %w", ErrRetrieval, chunk, cause)
}

// CRS represents a coordinate reference system.
type CRS struct {
	Code        int    // EPSG code (e.g., 4326 for WGS84)
	Name        string // CRS name
	Description string // CRS description
	WKT         string // Well-Known Text representation
}

// WGS84 returns the standard WGS84 CRS (EPSG:4326).
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// Options configures an open container.
type Options struct {
	PageSize        uint64      // Features per page when a query gives no count
	Workers         int         // Concurrent range reads per query
	Preview         int         // Chunks returned for an unbounded query; 0 returns all
	HeaderPrefix    uint64      // Bytes fetched for the header on open
	MinItemsPerNode int         // Query index minimum fan-out
	MaxItemsPerNode int         // Query index maximum fan-out
	LinearScan      bool        // Prune with a header scan instead of the index
	HeaderStore     HeaderStore // Optional shared cache of raw headers
	Logger          *zap.Logger
}

// DefaultOptions returns default options for opening a container.
func DefaultOptions() *Options {
	return &Options{
		PageSize:        100,
		Workers:         4,
		HeaderPrefix:    DefaultHeaderPrefix,
		MinItemsPerNode: 4,
		MaxItemsPerNode: 10,
	}
}

// withDefaults fills zero fields so callers can set only what they need.
func (o *Options) withDefaults() *Options {
	d := DefaultOptions()
	if o == nil {
		d.Logger = zap.NewNop()
		return d
	}
	out := *o
	if out.PageSize == 0 {
		out.PageSize = d.PageSize
	}
	if out.Workers <= 0 {
		out.Workers = d.Workers
	}
	if out.HeaderPrefix == 0 {
		out.HeaderPrefix = d.HeaderPrefix
	}
	if out.MinItemsPerNode == 0 && out.MaxItemsPerNode == 0 {
		out.MinItemsPerNode, out.MaxItemsPerNode = d.MinItemsPerNode, d.MaxItemsPerNode
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

// WriteOptions configures container writing.
type WriteOptions struct {
	Name         string // Dataset name
	Description  string // Dataset description
	Version      string // Dataset version
	Published    string // Publication date
	Encoding     string // Chunk encoding: "geojson" (default) or "flatgeobuf"
	ChunkSize    int    // Maximum features per chunk
	HeaderPrefix uint64 // Minimum header reservation in bytes
	CRS          *CRS   // Coordinate reference system for FlatGeobuf chunks (optional)
}

// DefaultWriteOptions returns default options for writing containers.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{
		Encoding:     EncodingGeoJSON,
		ChunkSize:    1000,
		HeaderPrefix: DefaultHeaderPrefix,
	}
}
