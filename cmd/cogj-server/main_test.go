package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jesserobertson/cogj"
)

type stubFetcher struct{ calls int }

func (s *stubFetcher) FetchRange(context.Context, string, uint64, uint64) ([]byte, error) {
	s.calls++
	return nil, errors.New("web")
}

func TestSources_Routing(t *testing.T) {
	web := &stubFetcher{}
	memory := cogj.NewBytesFetcher()
	memory.Put(demoLocator, []byte("demo"))
	s := sources{web: web, memory: memory}
	ctx := context.Background()

	_, err := s.FetchRange(ctx, "https://example.com/a.json", 0, 1)
	require.EqualError(t, err, "web")
	require.Equal(t, 1, web.calls)

	got, err := s.FetchRange(ctx, demoLocator, 0, 3)
	require.NoError(t, err)
	require.Equal(t, "demo", string(got))

	_, err = s.FetchRange(ctx, "/etc/passwd", 0, 3)
	require.ErrorIs(t, err, cogj.ErrNotFound, "local paths must not be readable")
}

func TestBuildDemo(t *testing.T) {
	data, err := buildDemo()
	require.NoError(t, err)

	c, err := cogj.OpenData(data, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(len(cities)), c.Header().TotalFeatures())
	require.Equal(t, "World cities", c.Metadata().Title)

	// Western Australia holds only Perth.
	res, err := c.Query(context.Background(), cogj.Query{BBox: &cogj.BBox{112, -36, 130, -13}})
	require.NoError(t, err)
	var names []string
	for _, f := range res.Features {
		names = append(names, f.Properties.MustString("name"))
	}
	require.Contains(t, names, "Perth")
	require.Less(t, res.TotalMatched, uint64(len(cities)), "the bbox should prune chunks")
}
