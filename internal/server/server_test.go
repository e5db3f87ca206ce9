package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jesserobertson/cogj"
)

const roadsURL = "mem://data/Roads.json"

func roads(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for i := 0; i < 10; i++ {
		f := geojson.NewFeature(orb.Point{115 + float64(i)*0.1, -32 + float64(i)*0.1})
		f.Properties = geojson.Properties{"name": "road", "lanes": i % 3}
		fc.Append(f)
	}
	var buf bytes.Buffer
	_, err := cogj.WriteFeatures(&buf, fc, &cogj.WriteOptions{
		Name: "Roads", Description: "Road points", Version: "1", ChunkSize: 3,
	})
	require.NoError(t, err)
	return buf.Bytes()
}

func newTestServer(t *testing.T, fetcher cogj.RangeFetcher) *httptest.Server {
	t.Helper()
	if fetcher == nil {
		mem := cogj.NewBytesFetcher()
		mem.Put(roadsURL, roads(t))
		fetcher = mem
	}
	s := New(Config{PageSize: 5, Fetcher: fetcher}, zaptest.NewLogger(t))
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, query string) (int, map[string]any, http.Header) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/?" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body, resp.Header
}

func q(kv ...string) string {
	v := url.Values{}
	for i := 0; i < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v.Encode()
}

func TestGetCapabilities(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body, header := get(t, srv, q("REQUEST", "GetCapabilities", "COGJ_URL", roadsURL))
	require.Equal(t, http.StatusOK, status)

	_, err := uuid.Parse(header.Get("X-Request-Id"))
	require.NoError(t, err)

	require.Equal(t, "COGJ Web Feature Service", body["title"])
	require.Equal(t, 5.0, body["countDefault"])

	types := body["featureTypes"].([]any)
	require.Len(t, types, 1)
	ft := types[0].(map[string]any)
	require.Equal(t, "roads.json", ft["name"])
	require.Equal(t, "Roads", ft["title"])
	require.Equal(t, "Road points Version: 1.", ft["abstract"])
	require.Equal(t, []any{-32.0, 115.0}, ft["lowerCorner"])

	ops := body["operations"].(map[string]any)
	require.Contains(t, ops["GetFeature"], "COGJ_URL="+url.QueryEscape(roadsURL))
}

func TestParametersAreCaseInsensitive(t *testing.T) {
	srv := newTestServer(t, nil)
	status, _, _ := get(t, srv, q("request", "getcapabilities", "Cogj_Url", roadsURL))
	require.Equal(t, http.StatusOK, status)
}

func TestDescribeFeatureType(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body, _ := get(t, srv, q("REQUEST", "DescribeFeatureType", "COGJ_URL", roadsURL, "TYPENAME", "roads.json"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "roads.json", body["typeName"])
	require.Equal(t, []any{"lanes", "name"}, body["properties"])

	status, _, _ = get(t, srv, q("REQUEST", "DescribeFeatureType", "COGJ_URL", roadsURL, "TYPENAME", "rivers"))
	require.Equal(t, http.StatusBadRequest, status)
}

func TestGetFeature_Paging(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "COUNT", "4"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "FeatureCollection", body["type"])
	require.Equal(t, 10.0, body["numberMatched"])
	require.Equal(t, 4.0, body["numberReturned"])
	require.Len(t, body["features"], 4)
	require.NotContains(t, body, "previous")

	next, err := url.Parse(body["next"].(string))
	require.NoError(t, err)
	require.Equal(t, "4", next.Query().Get("STARTINDEX"))
	require.Equal(t, "4", next.Query().Get("COUNT"))

	// Follow the link.
	status, body, _ = get(t, srv, next.RawQuery)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 4.0, body["numberReturned"])
	prev, err := url.Parse(body["previous"].(string))
	require.NoError(t, err)
	require.Equal(t, "0", prev.Query().Get("STARTINDEX"))

	status, body, _ = get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "COUNT", "4", "STARTINDEX", "8"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 2.0, body["numberReturned"])
	require.NotContains(t, body, "next")
}

func TestGetFeature_CountCappedAtPageSize(t *testing.T) {
	srv := newTestServer(t, nil)
	_, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "COUNT", "500"))
	require.Equal(t, 5.0, body["numberReturned"])

	_, body, _ = get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL))
	require.Equal(t, 5.0, body["numberReturned"])
}

func TestGetFeature_BBox(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "BBOX", "115.15,-31.85,115.35,-31.65"))
	require.Equal(t, http.StatusOK, status)
	// Pruning is per chunk, so at least the two points inside come back.
	require.GreaterOrEqual(t, body["numberMatched"].(float64), 2.0)

	status, body, _ = get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "BBOX", "0,0,1,1"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0.0, body["numberMatched"])
}

func TestGetFeature_Hits(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "RESULTTYPE", "hits"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 10.0, body["numberMatched"])
	require.Equal(t, 0.0, body["numberReturned"])
	require.Empty(t, body["features"])
}

func TestGetFeature_NoMoreResults(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "STARTINDEX", "10"))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "no more results", body["error"])
	require.Equal(t, 10.0, body["numberMatched"])
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing request", q("COGJ_URL", roadsURL), http.StatusBadRequest},
		{"unknown request", q("REQUEST", "Transaction", "COGJ_URL", roadsURL), http.StatusNotFound},
		{"missing url", q("REQUEST", "GetFeature"), http.StatusBadRequest},
		{"bad count", q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "COUNT", "-1"), http.StatusBadRequest},
		{"bad start", q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "STARTINDEX", "x"), http.StatusBadRequest},
		{"bad bbox", q("REQUEST", "GetFeature", "COGJ_URL", roadsURL, "BBOX", "1,2,3"), http.StatusBadRequest},
		{"unknown container", q("REQUEST", "GetFeature", "COGJ_URL", "mem://missing"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := get(t, srv, tt.query)
			require.Equal(t, tt.status, status)
			require.NotEmpty(t, body["error"])
		})
	}
}

// chunkFailure serves the header and fails every chunk read.
type chunkFailure struct {
	next cogj.RangeFetcher
}

func (f chunkFailure) FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error) {
	if start > 0 {
		return nil, errors.New("storage unavailable")
	}
	return f.next.FetchRange(ctx, locator, start, end)
}

func TestGetFeature_RetrievalFailure(t *testing.T) {
	mem := cogj.NewBytesFetcher()
	mem.Put(roadsURL, roads(t))
	srv := newTestServer(t, chunkFailure{next: mem})

	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "COGJ_URL", roadsURL))
	require.Equal(t, http.StatusBadGateway, status)
	require.Contains(t, body["error"], "storage unavailable")
}

func TestDefaultURL(t *testing.T) {
	mem := cogj.NewBytesFetcher()
	mem.Put(roadsURL, roads(t))
	s := New(Config{DefaultURL: roadsURL, Fetcher: mem}, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	status, body, _ := get(t, srv, q("REQUEST", "GetFeature", "RESULTTYPE", "hits"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 10.0, body["numberMatched"])
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	get(t, srv, q("REQUEST", "GetCapabilities", "COGJ_URL", roadsURL))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(raw), "cogj_http_requests_total"))
}

func TestLayerName(t *testing.T) {
	tests := map[string]string{
		"roads.json":      "roads.json",
		"Roads.JSON":      "roads.json",
		"2019 roads.json": "_2019_roads.json",
		"bridges?v=2":     "bridges_v_2",
		"":                "_",
		"-dash":           "_-dash",
	}
	for in, want := range tests {
		require.Equal(t, want, LayerName(in), in)
	}
}
