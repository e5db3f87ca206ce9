package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jesserobertson/cogj"
	"github.com/jesserobertson/cogj/cache"
	"github.com/jesserobertson/cogj/internal/config"
	"github.com/jesserobertson/cogj/internal/logging"
	"github.com/jesserobertson/cogj/internal/server"
)

// sources routes http(s) locators to the web fetcher and everything else to
// in-memory containers. Local paths are never opened on behalf of clients.
type sources struct {
	web    cogj.RangeFetcher
	memory *cogj.BytesFetcher
}

func (s sources) FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return s.web.FetchRange(ctx, locator, start, end)
	}
	return s.memory.FetchRange(ctx, locator, start, end)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log, "cogj-server")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	httpFetcher := cogj.NewHTTPFetcher(&http.Client{Timeout: 30 * time.Second}, log)
	if cfg.FetchRate > 0 {
		httpFetcher.Limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), max(1, int(cfg.FetchRate)))
	}
	var web cogj.RangeFetcher = httpFetcher
	var headerCache cogj.HeaderStore
	if cfg.CacheBytes > 0 {
		ranges, err := cache.NewFetcher(httpFetcher, cfg.CacheBytes)
		if err != nil {
			return err
		}
		defer ranges.Close()
		web = ranges

		headers, err := cache.NewMemoryStore(max(cfg.CacheBytes/8, 1<<20))
		if err != nil {
			return err
		}
		defer headers.Close()
		headerCache = headers
	}

	var shared cogj.HeaderStore
	if rdb := cache.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB); rdb != nil {
		defer func() { _ = rdb.Close() }()
		shared = cache.NewRedisStore(rdb, cfg.HeaderTTL)
		log.Info("sharing headers through redis", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.HeaderTTL))
	}

	demo, err := buildDemo()
	if err != nil {
		return fmt.Errorf("build demo container: %w", err)
	}
	memory := cogj.NewBytesFetcher()
	memory.Put(demoLocator, demo)

	defaultURL := cfg.COGJURL
	if defaultURL == "" {
		defaultURL = demoLocator
	}
	svc := server.New(server.Config{
		Title:      cfg.ServiceTitle,
		DefaultURL: defaultURL,
		PageSize:   cfg.MaxFeaturesPerPage,
		Fetcher:    sources{web: web, memory: memory},
		Options: &cogj.Options{
			PageSize:     cfg.MaxFeaturesPerPage,
			Workers:      cfg.Workers,
			HeaderPrefix: cfg.HeaderPrefix,
			Preview:      cfg.Preview(),
			HeaderStore:  cache.NewChain(headerCache, shared),
			Logger:       log,
		},
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/", svc.Routes())
	mux.HandleFunc("/demo.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		http.ServeContent(w, r, "demo.json", time.Time{}, bytes.NewReader(demo))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("default_url", defaultURL),
			zap.String("environment", cfg.Environment))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
