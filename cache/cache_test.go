package cache

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/jesserobertson/cogj"
)

// countingFetcher counts the reads that reach the underlying fetcher.
type countingFetcher struct {
	next  cogj.RangeFetcher
	reads atomic.Int32
}

func (f *countingFetcher) FetchRange(ctx context.Context, locator string, start, end uint64) ([]byte, error) {
	f.reads.Add(1)
	return f.next.FetchRange(ctx, locator, start, end)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := OpenRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestFetcher_CachesRanges(t *testing.T) {
	mem := cogj.NewBytesFetcher()
	mem.Put("blob", []byte("0123456789"))
	counting := &countingFetcher{next: mem}

	f, err := NewFetcher(counting, 1<<20)
	require.NoError(t, err)
	defer f.Close()
	ctx := context.Background()

	got, err := f.FetchRange(ctx, "blob", 2, 5)
	require.NoError(t, err)
	require.Equal(t, "2345", string(got))
	f.cache.Wait()

	got, err = f.FetchRange(ctx, "blob", 2, 5)
	require.NoError(t, err)
	require.Equal(t, "2345", string(got))
	require.Equal(t, int32(1), counting.reads.Load())

	_, err = f.FetchRange(ctx, "blob", 2, 6)
	require.NoError(t, err)
	require.Equal(t, int32(2), counting.reads.Load(), "a different range is a different entry")
}

func TestFetcher_DoesNotCacheErrors(t *testing.T) {
	counting := &countingFetcher{next: cogj.NewBytesFetcher()}
	f, err := NewFetcher(counting, 1<<20)
	require.NoError(t, err)
	defer f.Close()

	for i := 0; i < 2; i++ {
		_, err := f.FetchRange(context.Background(), "missing", 0, 1)
		require.ErrorIs(t, err, cogj.ErrNotFound)
		f.cache.Wait()
	}
	require.Equal(t, int32(2), counting.reads.Load())
}

func TestNewFetcher_InvalidSize(t *testing.T) {
	_, err := NewFetcher(cogj.NewBytesFetcher(), 0)
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.LoadHeader(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.StoreHeader(ctx, "a", []byte(`{"bbox":[0,0,1,1]}`)))
	s.cache.Wait()

	raw, ok, err := s.LoadHeader(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"bbox":[0,0,1,1]}`, string(raw))
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()

	_, ok, err := s.LoadHeader(ctx, "https://example.com/a.json")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.StoreHeader(ctx, "https://example.com/a.json", []byte("header")))
	raw, ok, err := s.LoadHeader(ctx, "https://example.com/a.json")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "header", string(raw))
	require.True(t, mr.Exists(redisKeyPrefix+"https://example.com/a.json"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.LoadHeader(ctx, "https://example.com/a.json")
	require.NoError(t, err)
	require.False(t, ok, "header should expire after the TTL")
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	mr.Close()
	_, _, err := s.LoadHeader(context.Background(), "x")
	require.Error(t, err)
}

func TestOpenRedis_NoAddr(t *testing.T) {
	require.Nil(t, OpenRedis("", "", 0))
}

// failingStore fails every call.
type failingStore struct{}

func (failingStore) LoadHeader(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}

func (failingStore) StoreHeader(context.Context, string, []byte) error {
	return errors.New("down")
}

func TestChain_BackfillsEarlierStores(t *testing.T) {
	mem, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	defer mem.Close()
	redisStore, _ := newRedisStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, redisStore.StoreHeader(ctx, "loc", []byte("raw")))
	chain := NewChain(mem, nil, redisStore)

	raw, ok, err := chain.LoadHeader(ctx, "loc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "raw", string(raw))

	mem.cache.Wait()
	raw, ok, _ = mem.LoadHeader(ctx, "loc")
	require.True(t, ok, "memory store should be backfilled")
	require.Equal(t, "raw", string(raw))
}

func TestChain_Errors(t *testing.T) {
	mem, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	defer mem.Close()
	chain := NewChain(failingStore{}, mem)
	ctx := context.Background()

	_, ok, err := chain.LoadHeader(ctx, "loc")
	require.False(t, ok)
	require.Error(t, err, "a miss everywhere reports store failures")

	require.Error(t, chain.StoreHeader(ctx, "loc", []byte("raw")))
	mem.cache.Wait()
	_, ok, err = chain.LoadHeader(ctx, "loc")
	require.NoError(t, err)
	require.True(t, ok, "healthy stores still receive the header")
}

// Opening the same container twice through a cached fetcher and a header
// chain reads the container once.
func TestCachedOpenAndQuery(t *testing.T) {
	var buf bytes.Buffer
	_, err := cogj.Write(&buf, []orb.Geometry{orb.Point{0, 0}, orb.Point{5, 5}, orb.Point{9, 9}},
		&cogj.WriteOptions{ChunkSize: 1})
	require.NoError(t, err)

	mem := cogj.NewBytesFetcher()
	mem.Put("mem://points", buf.Bytes())
	counting := &countingFetcher{next: mem}
	fetcher, err := NewFetcher(counting, 1<<20)
	require.NoError(t, err)
	defer fetcher.Close()
	redisStore, _ := newRedisStore(t, time.Minute)
	opts := &cogj.Options{HeaderStore: NewChain(redisStore)}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c, err := cogj.Open(ctx, fetcher, "mem://points", opts)
		require.NoError(t, err)
		res, err := c.Query(ctx, cogj.Query{BBox: &cogj.BBox{4, 4, 6, 6}})
		require.NoError(t, err)
		require.Len(t, res.Features, 1)
		fetcher.cache.Wait()
	}
	// One header read and one chunk read.
	require.Equal(t, int32(2), counting.reads.Load())
}
