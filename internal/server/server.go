// Package server exposes cogj containers through a WFS-style HTTP entry
// point answering GetCapabilities, DescribeFeatureType and GetFeature with
// JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jesserobertson/cogj"
	"github.com/jesserobertson/cogj/internal/metrics"
)

// Config configures a Server.
type Config struct {
	Title      string
	DefaultURL string // container used when a request gives no COGJ_URL
	PageSize   uint64 // default and maximum COUNT
	Fetcher    cogj.RangeFetcher
	Options    *cogj.Options
}

// Server is an http.Handler for the WFS-style operations.
type Server struct {
	cfg Config
	log *zap.Logger
}

// New returns a server. A nil logger discards output.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = cogj.DefaultOptions().PageSize
	}
	if cfg.Title == "" {
		cfg.Title = "COGJ Web Feature Service"
	}
	return &Server{cfg: cfg, log: log}
}

// Routes mounts the service on "/" and Prometheus metrics on "/metrics".
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// params holds query parameters under upper-cased names.
type params map[string]string

func parseParams(q url.Values) params {
	p := make(params, len(q))
	for k, v := range q {
		if len(v) > 0 {
			p[strings.ToUpper(k)] = v[0]
		}
	}
	return p
}

func (p params) uint(key string) (uint64, bool, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q is not a non-negative integer", cogj.ErrConfiguration, key, v)
	}
	return n, true, nil
}

// httpError carries a status for failures detected by the handler itself.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	began := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	p := parseParams(r.URL.Query())
	op := strings.ToUpper(p["REQUEST"])
	log := s.log.With(
		zap.String("request_id", requestID),
		zap.String("request", op),
		zap.String("cogj_url", p["COGJ_URL"]))

	status, body := s.dispatch(r, op, p, log)
	if op == "" {
		op = "none"
	}
	metrics.RequestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	metrics.RequestDurationMs.WithLabelValues(op).Observe(float64(time.Since(began).Milliseconds()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("write response failed", zap.Error(err))
	}
}

func (s *Server) dispatch(r *http.Request, op string, p params, log *zap.Logger) (int, any) {
	var body any
	var err error
	switch op {
	case "GETCAPABILITIES":
		body, err = s.getCapabilities(r, p)
	case "DESCRIBEFEATURETYPE":
		body, err = s.describeFeatureType(r.Context(), p)
	case "GETFEATURE":
		body, err = s.getFeature(r, p)
	case "":
		err = &httpError{http.StatusBadRequest, "missing REQUEST parameter"}
	default:
		err = &httpError{http.StatusNotFound, fmt.Sprintf("unknown request %q", p["REQUEST"])}
	}
	if err == nil {
		return http.StatusOK, body
	}

	status := statusOf(err)
	if status >= 500 {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	return status, errorBody(err)
}

func statusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, cogj.ErrOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, cogj.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, cogj.ErrRetrieval):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]any {
	var rerr *cogj.RangeError
	if errors.As(err, &rerr) {
		return map[string]any{
			"error":         "no more results",
			"startIndex":    rerr.Start,
			"numberMatched": rerr.Total,
		}
	}
	return map[string]any{"error": err.Error()}
}

func (s *Server) open(ctx context.Context, p params) (*cogj.Container, error) {
	locator := p["COGJ_URL"]
	if locator == "" {
		locator = s.cfg.DefaultURL
	}
	if locator == "" {
		return nil, &httpError{http.StatusBadRequest, "missing COGJ_URL parameter"}
	}
	opts := s.cfg.Options
	if opts == nil {
		opts = cogj.DefaultOptions()
	}
	withLog := *opts
	if withLog.Logger == nil {
		withLog.Logger = s.log
	}
	return cogj.Open(ctx, s.cfg.Fetcher, locator, &withLog)
}

// LayerName makes a container name usable as a WFS feature type name: it
// must start with a letter or underscore and hold only letters, digits,
// underscores, hyphens and periods.
func LayerName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || !(out[0] >= 'a' && out[0] <= 'z' || out[0] == '_') {
		out = "_" + out
	}
	return out
}
