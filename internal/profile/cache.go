package profile

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachingResolver remembers successful lookups for a TTL. Failures are never
// cached, so a tenant created after a miss is found on the next call.
type CachingResolver struct {
	next  Resolver
	cache *cache.Cache
}

// NewCachingResolver wraps next. A non-positive ttl disables caching.
func NewCachingResolver(next Resolver, ttl time.Duration) Resolver {
	if ttl <= 0 {
		return next
	}
	return &CachingResolver{next: next, cache: cache.New(ttl, 2*ttl)}
}

// Resolve implements Resolver.
func (r *CachingResolver) Resolve(ctx context.Context, sessionKey string) (Profile, error) {
	key, err := TenantKey(sessionKey)
	if err != nil {
		return Profile{}, err
	}
	if cached, ok := r.cache.Get(key); ok {
		slog.Debug("Tenant profile cache hit", slog.String("tenant_id", key))
		return cached.(Profile), nil
	}

	p, err := r.next.Resolve(ctx, sessionKey)
	if err != nil {
		return Profile{}, err
	}
	r.cache.SetDefault(key, p)
	return p, nil
}
