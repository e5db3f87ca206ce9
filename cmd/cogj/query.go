package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jesserobertson/cogj"
)

func runQuery(args []string, stdout, stderr io.Writer) error {
	fs, verbose, format := newFlagSet("query", stderr)
	bbox := fs.String("bbox", "", "minx,miny,maxx,maxy; empty selects everything")
	start := fs.Uint64("start", 0, "zero-based index of the first feature")
	count := fs.Uint64("count", 0, "page size; 0 uses the default")
	hits := fs.Bool("hits", false, "only report the number of matches")
	linear := fs.Bool("linear", false, "prune with a header scan instead of the index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("query: want one container path or URL")
	}
	log, err := newLogger(*verbose, *format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	q := cogj.Query{StartIndex: *start, Count: *count, ResultTypeHits: *hits}
	if *bbox != "" {
		box, err := cogj.ParseBBox(*bbox)
		if err != nil {
			return err
		}
		q.BBox = &box
	}

	ctx := context.Background()
	c, err := openLocator(ctx, fs.Arg(0), *linear, log)
	if err != nil {
		return err
	}
	res, err := c.Query(ctx, q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if *hits {
		return enc.Encode(map[string]uint64{"numberMatched": res.TotalMatched})
	}
	return enc.Encode(res.FeatureCollection())
}
