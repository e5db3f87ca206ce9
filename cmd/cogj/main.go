// Command cogj builds, inspects and queries cloud-optimised GeoJSON
// containers.
//
//	cogj build -in cities.geojson -out cities.json -chunk-size 500
//	cogj info https://example.com/cities.json
//	cogj query -bbox 115,-33,117,-31 -count 10 cities.json
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jesserobertson/cogj/internal/logging"
)

const usage = `usage: cogj <command> [flags]

commands:
  build   write a container from a GeoJSON FeatureCollection
  info    print a container's header and chunk table
  query   print one page of a bbox query as GeoJSON
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "cogj:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "build":
		return runBuild(rest, stdout, stderr)
	case "info":
		return runInfo(rest, stdout, stderr)
	case "query":
		return runQuery(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// newFlagSet returns a flag set with the shared -v and -log-format flags.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *bool, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "log debug output to stderr")
	format := fs.String("log-format", "console", "log format: console or json")
	return fs, verbose, format
}

func newLogger(verbose bool, format string) (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: format, Output: "stderr"}, "")
}
