package main

import (
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/jesserobertson/cogj"
)

func runBuild(args []string, stdout, stderr io.Writer) error {
	fs, verbose, format := newFlagSet("build", stderr)
	d := cogj.DefaultWriteOptions()
	in := fs.String("in", "", "input GeoJSON FeatureCollection (- for stdin)")
	out := fs.String("out", "", "output container path")
	name := fs.String("name", "", "dataset name")
	description := fs.String("description", "", "dataset description")
	version := fs.String("version", "", "dataset version")
	published := fs.String("published", "", "publication date")
	encoding := fs.String("encoding", d.Encoding, "chunk encoding: geojson or flatgeobuf")
	chunkSize := fs.Int("chunk-size", d.ChunkSize, "maximum features per chunk")
	prefix := fs.Uint64("header-prefix", d.HeaderPrefix, "minimum header reservation in bytes")
	wgs84 := fs.Bool("wgs84", false, "record EPSG:4326 in FlatGeobuf chunks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("build: -in and -out are required")
	}
	log, err := newLogger(*verbose, *format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	var raw []byte
	if *in == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*in)
	}
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return fmt.Errorf("build: parse %s: %w", *in, err)
	}

	opts := &cogj.WriteOptions{
		Name:         *name,
		Description:  *description,
		Version:      *version,
		Published:    *published,
		Encoding:     *encoding,
		ChunkSize:    *chunkSize,
		HeaderPrefix: *prefix,
	}
	if *wgs84 {
		opts.CRS = cogj.WGS84()
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	h, err := cogj.WriteFeatures(f, fc, opts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(*out)
		return err
	}

	log.Debug("wrote container",
		zap.String("path", *out),
		zap.Int("chunks", len(h.Chunks)),
		zap.Uint64("features", h.TotalFeatures()))
	fmt.Fprintf(stdout, "wrote %s: %d features in %d chunks\n", *out, h.TotalFeatures(), len(h.Chunks))
	return nil
}
