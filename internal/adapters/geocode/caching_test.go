package geocode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nearest-store-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type countingGeocoder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (g *countingGeocoder) Reverse(ctx context.Context, p domain.Position) (string, error) {
	g.calls.Inc()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return "", g.err
	}
	return "Av. " + Key(p), nil
}

// ctxGeocoder answers after delay unless its context ends first.
type ctxGeocoder struct {
	calls atomic.Int32
	delay time.Duration
}

func (g *ctxGeocoder) Reverse(ctx context.Context, p domain.Position) (string, error) {
	g.calls.Inc()
	select {
	case <-time.After(g.delay):
		return "Av. " + Key(p), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type mapCache struct {
	mu     sync.Mutex
	m      map[string]string
	getErr error
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Put(_ context.Context, key, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = addr
	return nil
}

func TestKey(t *testing.T) {
	assert.Equal(t, "-12.04640,-77.04280", Key(domain.Position{Lat: -12.0464, Lon: -77.0428}))
	assert.Equal(t, Key(domain.Position{Lat: -12.046401, Lon: -77.042801}), Key(domain.Position{Lat: -12.0464, Lon: -77.0428}))
}

func TestCachingGeocoder_HitSkipsUpstream(t *testing.T) {
	next := &countingGeocoder{}
	cache := &mapCache{m: map[string]string{}}
	c := NewCachingGeocoder(next, cache, nil)
	p := domain.Position{Lat: -12.1, Lon: -77.03}

	first, err := c.Reverse(context.Background(), p)
	require.NoError(t, err)
	second, err := c.Reverse(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, first, cache.m[Key(p)])
}

func TestCachingGeocoder_CollapsesConcurrentLookups(t *testing.T) {
	next := &countingGeocoder{delay: 50 * time.Millisecond}
	c := NewCachingGeocoder(next, nil, nil)
	p := domain.Position{Lat: -12.1, Lon: -77.03}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Reverse(context.Background(), p)
		}()
	}
	wg.Wait()

	assert.Less(t, next.calls.Load(), int32(8))
}

func TestCachingGeocoder_CacheErrorFallsThrough(t *testing.T) {
	next := &countingGeocoder{}
	cache := &mapCache{m: map[string]string{}, getErr: errors.New("redis down")}
	c := NewCachingGeocoder(next, cache, nil)

	addr, err := c.Reverse(context.Background(), domain.Position{Lat: -12.1, Lon: -77.03})
	require.NoError(t, err)
	assert.NotEmpty(t, addr)
}

func TestCachingGeocoder_UpstreamErrorIsNotCached(t *testing.T) {
	next := &countingGeocoder{err: errors.New("boom")}
	cache := &mapCache{m: map[string]string{}}
	c := NewCachingGeocoder(next, cache, nil)

	_, err := c.Reverse(context.Background(), domain.Position{Lat: -12.1, Lon: -77.03})
	require.Error(t, err)
	assert.Empty(t, cache.m)
}

func TestCachingGeocoder_SharedLookupKeepsEachCallersDeadline(t *testing.T) {
	next := &ctxGeocoder{delay: 100 * time.Millisecond}
	cache := &mapCache{m: map[string]string{}}
	c := NewCachingGeocoder(next, cache, nil)
	p := domain.Position{Lat: -12.1, Lon: -77.03}

	shortCtx, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	longCtx, cancelLong := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelLong()

	var (
		wg       sync.WaitGroup
		shortErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, shortErr = c.Reverse(shortCtx, p)
	}()
	time.Sleep(5 * time.Millisecond)

	addr, err := c.Reverse(longCtx, p)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "Av. "+Key(p), addr)
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), next.calls.Load())

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Equal(t, addr, cache.m[Key(p)])
}

func TestCachingGeocoder_CallerCancelDoesNotAbortSharedLookup(t *testing.T) {
	next := &ctxGeocoder{delay: 50 * time.Millisecond}
	cache := &mapCache{m: map[string]string{}}
	c := NewCachingGeocoder(next, cache, nil)
	p := domain.Position{Lat: -12.1, Lon: -77.03}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Reverse(ctx, p)
	require.ErrorIs(t, err, context.Canceled)

	assert.Eventually(t, func() bool {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		return cache.m[Key(p)] != ""
	}, time.Second, 10*time.Millisecond)
}
