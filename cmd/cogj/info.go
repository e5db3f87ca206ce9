package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jesserobertson/cogj"
)

// openLocator opens a URL over HTTP range requests and anything else as a
// local file.
func openLocator(ctx context.Context, locator string, linear bool, log *zap.Logger) (*cogj.Container, error) {
	opts := cogj.DefaultOptions()
	opts.Logger = log
	opts.LinearScan = linear
	var fetcher cogj.RangeFetcher = cogj.FileFetcher{}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		fetcher = cogj.NewHTTPFetcher(&http.Client{Timeout: 30 * time.Second}, log)
	}
	return cogj.Open(ctx, fetcher, locator, opts)
}

func runInfo(args []string, stdout, stderr io.Writer) error {
	fs, verbose, format := newFlagSet("info", stderr)
	chunks := fs.Bool("chunks", false, "list every chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("info: want one container path or URL")
	}
	log, err := newLogger(*verbose, *format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	c, err := openLocator(context.Background(), fs.Arg(0), false, log)
	if err != nil {
		return err
	}
	h := c.Header()
	m := c.Metadata()

	fmt.Fprintf(stdout, "=== Container Information ===\n")
	fmt.Fprintf(stdout, "Layer:    %s\n", m.Name)
	fmt.Fprintf(stdout, "Title:    %s\n", m.Title)
	if m.Abstract != "" {
		fmt.Fprintf(stdout, "Abstract: %s\n", m.Abstract)
	}
	encoding := h.Encoding
	if encoding == "" {
		encoding = cogj.EncodingGeoJSON
	}
	fmt.Fprintf(stdout, "Encoding: %s\n", encoding)
	fmt.Fprintf(stdout, "BBox:     %v\n", h.BBox)
	fmt.Fprintf(stdout, "Features: %d\n", h.TotalFeatures())
	fmt.Fprintf(stdout, "Chunks:   %d (index height %d)\n", len(h.Chunks), c.Index().Height())

	if *chunks {
		fmt.Fprintf(stdout, "\n%-6s | %-10s | %-10s | %-8s | %s\n", "Chunk", "Start", "Size", "Features", "BBox")
		for i, d := range h.Chunks {
			fmt.Fprintf(stdout, "%-6d | %-10d | %-10d | %-8d | %v\n", i, d.ByteStart, d.ByteLength, d.FeatureCount, d.BBox)
		}
	}
	return nil
}
