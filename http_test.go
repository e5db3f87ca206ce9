package cogj

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

func serveBlob(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "container.json", time.Time{}, bytes.NewReader(data))
	}
}

func testHTTPFetcher(t *testing.T) *HTTPFetcher {
	f := NewHTTPFetcher(nil, zaptest.NewLogger(t))
	f.Backoff = time.Millisecond
	return f
}

func TestHTTPFetcher_Range(t *testing.T) {
	srv := httptest.NewServer(serveBlob([]byte("0123456789")))
	defer srv.Close()
	f := testHTTPFetcher(t)

	got, err := f.FetchRange(context.Background(), srv.URL, 3, 6)
	if err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}
	if string(got) != "3456" {
		t.Errorf("got %q, want %q", got, "3456")
	}

	got, err = f.FetchRange(context.Background(), srv.URL, 8, 50)
	if err != nil {
		t.Fatalf("clamped FetchRange failed: %v", err)
	}
	if string(got) != "89" {
		t.Errorf("clamped read got %q", got)
	}
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		serveBlob([]byte("abcdef"))(w, r)
	}))
	defer srv.Close()

	got, err := testHTTPFetcher(t).FetchRange(context.Background(), srv.URL, 1, 2)
	if err != nil {
		t.Fatalf("FetchRange failed after retry: %v", err)
	}
	if string(got) != "bc" || calls.Load() != 2 {
		t.Errorf("got %q after %d calls", got, calls.Load())
	}
}

func TestHTTPFetcher_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testHTTPFetcher(t)
	if _, err := f.FetchRange(context.Background(), srv.URL, 0, 1); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != int32(f.MaxRetries+1) {
		t.Errorf("expected %d attempts, got %d", f.MaxRetries+1, calls.Load())
	}
}

func TestHTTPFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testHTTPFetcher(t).FetchRange(context.Background(), srv.URL, 0, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPFetcher_FullBodyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	got, err := testHTTPFetcher(t).FetchRange(context.Background(), srv.URL, 4, 5)
	if err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}
	if string(got) != "45" {
		t.Errorf("got %q, want %q", got, "45")
	}
}

func TestHTTPFetcher_OverlongPartialContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("far too many bytes"))
	}))
	defer srv.Close()

	_, err := testHTTPFetcher(t).FetchRange(context.Background(), srv.URL, 0, 1)
	if !errors.Is(err, ErrShortRead) {
		t.Errorf("expected ErrShortRead, got %v", err)
	}
}

func TestHTTPFetcher_RateLimited(t *testing.T) {
	srv := httptest.NewServer(serveBlob([]byte("abc")))
	defer srv.Close()

	f := testHTTPFetcher(t)
	f.Limiter = rate.NewLimiter(rate.Inf, 1)
	if _, err := f.FetchRange(context.Background(), srv.URL, 0, 0); err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}

	f.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	_ = f.Limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.FetchRange(ctx, srv.URL, 0, 0); err == nil {
		t.Error("expected the limiter wait to fail under a short deadline")
	}
}

func TestHTTPFetcher_OpenAndQuery(t *testing.T) {
	data, _ := threeChunks(t)
	srv := httptest.NewServer(serveBlob(data))
	defer srv.Close()

	c, err := Open(context.Background(), testHTTPFetcher(t), srv.URL+"/three.json", nil)
	if err != nil {
		t.Fatalf("Open over HTTP failed: %v", err)
	}
	res, err := c.Query(context.Background(), Query{StartIndex: 4, Count: 3})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got := featureNumbers(res.Features); len(got) != 3 || got[0] != 5 {
		t.Errorf("unexpected page %v", got)
	}
	if c.Metadata().Name != "three.json" {
		t.Errorf("unexpected name %q", c.Metadata().Name)
	}
}
