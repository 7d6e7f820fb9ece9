package geocode

import (
	"context"
	"strconv"
	"time"

	"nearest-store-service/internal/domain"
	"nearest-store-service/internal/platform/obs"
	"nearest-store-service/internal/ports"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSharedLookupTimeout bounds an upstream lookup shared by several callers.
const DefaultSharedLookupTimeout = 5 * time.Second

// CachingGeocoder decorates a ReverseGeocoder with an AddressCache.
// Concurrent lookups for the same key share a single upstream call; the
// shared call is detached from every caller's context and each caller
// waits only as long as its own context allows.
// Cache failures are logged and never fail the lookup.
type CachingGeocoder struct {
	next          ports.ReverseGeocoder
	cache         ports.AddressCache
	log           *zap.Logger
	group         singleflight.Group
	sharedTimeout time.Duration
}

func NewCachingGeocoder(next ports.ReverseGeocoder, cache ports.AddressCache, log *zap.Logger) *CachingGeocoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachingGeocoder{next: next, cache: cache, log: log, sharedTimeout: DefaultSharedLookupTimeout}
}

// Key rounds p to 5 decimals (about 1 m), the cache key granularity.
func Key(p domain.Position) string {
	return strconv.FormatFloat(p.Lat, 'f', 5, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 5, 64)
}

func (c *CachingGeocoder) Reverse(ctx context.Context, p domain.Position) (string, error) {
	key := Key(p)

	if c.cache != nil {
		addr, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn("address cache get failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			obs.GeocodeCacheHitsTotal.Inc()
			return addr, nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()

		addr, err := c.next.Reverse(lookupCtx, p)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			if err := c.cache.Put(lookupCtx, key, addr); err != nil {
				c.log.Warn("address cache put failed", zap.String("key", key), zap.Error(err))
			}
		}
		return addr, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
