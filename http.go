package cogj

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPFetcher reads ranges with HTTP Range requests; the locator is a URL.
// Transport errors and 5xx answers are retried with exponential backoff.
type HTTPFetcher struct {
	Client     *http.Client
	Limiter    *rate.Limiter // optional, waited on before every request
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

// NewHTTPFetcher returns a fetcher with two retries and a 100ms base backoff.
// A nil client means http.DefaultClient.
func NewHTTPFetcher(client *http.Client, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		Client:     client,
		MaxRetries: 2,
		Backoff:    100 * time.Millisecond,
		Logger:     logger,
	}
}

func (f *HTTPFetcher) FetchRange(ctx context.Context, url string, start, end uint64) (data []byte, err error) {
	began := time.Now()
	defer func() { observeFetch("http", began, len(data), err) }()

	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		data, retry, err := f.fetchOnce(ctx, url, start, end)
		if err == nil || !retry || attempt >= f.MaxRetries {
			return data, err
		}
		f.Logger.Debug("retrying range read",
			zap.String("url", url),
			zap.Uint64("start", start),
			zap.Uint64("end", end),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Backoff << attempt):
		}
	}
}

// fetchOnce issues one request and reports whether a failure may be retried.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string, start, end uint64) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	want := end - start + 1
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		body, err := io.ReadAll(io.LimitReader(resp.Body, int64(want)+1))
		if err != nil {
			return nil, true, err
		}
		if uint64(len(body)) > want {
			return nil, false, fmt.Errorf("%w: %s: more than %d bytes", ErrShortRead, url, want)
		}
		return body, false, nil

	case resp.StatusCode == http.StatusOK:
		// The server ignored the Range header and sent the whole resource.
		f.Logger.Warn("range request answered with full body", zap.String("url", url))
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, err
		}
		if start >= uint64(len(body)) {
			return nil, false, fmt.Errorf("cogj: range start %d beyond end of %s", start, url)
		}
		return body[start:min(end+1, uint64(len(body)))], false, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, url)

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("cogj: %s: %s", url, resp.Status)

	default:
		return nil, false, fmt.Errorf("cogj: %s: %s", url, resp.Status)
	}
}
