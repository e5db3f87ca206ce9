package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jesserobertson/cogj"
)

type capabilities struct {
	Title        string            `json:"title"`
	CountDefault uint64            `json:"countDefault"`
	Operations   map[string]string `json:"operations"`
	FeatureTypes []featureType     `json:"featureTypes"`
}

// featureType corners are latitude first, as WFS 2.0 orders EPSG:4326.
type featureType struct {
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	Abstract    string     `json:"abstract"`
	LowerCorner [2]float64 `json:"lowerCorner"`
	UpperCorner [2]float64 `json:"upperCorner"`
}

type featureTypeDescription struct {
	TypeName   string   `json:"typeName"`
	Properties []string `json:"properties"`
}

func (s *Server) getCapabilities(r *http.Request, p params) (*capabilities, error) {
	c, err := s.open(r.Context(), p)
	if err != nil {
		return nil, err
	}
	m := c.Metadata()

	href := requestRoot(r) + "?COGJ_URL=" + url.QueryEscape(c.Locator())
	ops := make(map[string]string)
	for _, op := range []string{"GetCapabilities", "DescribeFeatureType", "GetFeature"} {
		ops[op] = href
	}
	return &capabilities{
		Title:        s.cfg.Title,
		CountDefault: s.cfg.PageSize,
		Operations:   ops,
		FeatureTypes: []featureType{{
			Name:        LayerName(m.Name),
			Title:       m.Title,
			Abstract:    m.Abstract,
			LowerCorner: [2]float64{m.BBox[1], m.BBox[0]},
			UpperCorner: [2]float64{m.BBox[3], m.BBox[2]},
		}},
	}, nil
}

func (s *Server) describeFeatureType(ctx context.Context, p params) (*featureTypeDescription, error) {
	c, err := s.open(ctx, p)
	if err != nil {
		return nil, err
	}
	name := LayerName(c.Metadata().Name)
	if err := checkTypeName(p, name); err != nil {
		return nil, err
	}
	props, err := c.DescribeProperties(ctx)
	if err != nil {
		return nil, err
	}
	if props == nil {
		props = []string{}
	}
	return &featureTypeDescription{TypeName: name, Properties: props}, nil
}

func checkTypeName(p params, name string) error {
	for _, key := range []string{"TYPENAME", "TYPENAMES"} {
		if v, ok := p[key]; ok && v != "" && !strings.EqualFold(v, name) {
			return &httpError{http.StatusBadRequest, fmt.Sprintf("unknown type name %q", v)}
		}
	}
	return nil
}

func (s *Server) getFeature(r *http.Request, p params) (any, error) {
	q := cogj.Query{ResultTypeHits: strings.EqualFold(p["RESULTTYPE"], "hits")}
	if v := p["BBOX"]; v != "" {
		box, err := cogj.ParseBBox(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cogj.ErrConfiguration, err)
		}
		q.BBox = &box
	}
	start, _, err := p.uint("STARTINDEX")
	if err != nil {
		return nil, err
	}
	count, given, err := p.uint("COUNT")
	if err != nil {
		return nil, err
	}
	if !given || count == 0 || count > s.cfg.PageSize {
		count = s.cfg.PageSize
	}
	q.StartIndex, q.Count = start, count

	c, err := s.open(r.Context(), p)
	if err != nil {
		return nil, err
	}
	if err := checkTypeName(p, LayerName(c.Metadata().Name)); err != nil {
		return nil, err
	}
	res, err := c.Query(r.Context(), q)
	if err != nil {
		return nil, err
	}

	fc := res.FeatureCollection()
	if q.ResultTypeHits {
		fc.BBox = nil
		return fc, nil
	}
	returned := uint64(len(res.Features))
	if res.HasNextPage {
		fc.ExtraMembers["next"] = pageURL(r, p, start+returned, count)
	}
	if res.HasPreviousPage {
		fc.ExtraMembers["previous"] = pageURL(r, p, start-min(start, count), count)
	}
	return fc, nil
}

// requestRoot is the absolute URL of the request without its query.
func requestRoot(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return (&url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path}).String()
}

// pageURL repeats the request with a new STARTINDEX, keeping COUNT.
func pageURL(r *http.Request, p params, start, count uint64) string {
	q := make(url.Values, len(p)+2)
	for k, v := range p {
		q.Set(k, v)
	}
	q.Set("STARTINDEX", strconv.FormatUint(start, 10))
	q.Set("COUNT", strconv.FormatUint(count, 10))
	return requestRoot(r) + "?" + q.Encode()
}
