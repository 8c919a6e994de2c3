package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRefreshMargin is how long before expiry a cached snapshot is
// refreshed. Signing with credentials that expire mid-flight produces
// confusing provider-side failures, so the margin errs generous.
const DefaultRefreshMargin = 60 * time.Second

// Cache wraps a Provider with an in-memory snapshot. The snapshot is stored
// behind an atomic pointer so concurrent readers always observe a complete
// Credentials value; a refresh in progress never hands out a torn one.
// Only one caller performs the refresh, the rest either reuse the current
// snapshot or wait for the winner.
type Cache struct {
	provider Provider
	margin   time.Duration
	now      func() time.Time
	observe  func(source, outcome string)

	snapshot atomic.Pointer[Credentials]
	mu       sync.Mutex
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithRefreshMargin overrides the refresh safety margin.
func WithRefreshMargin(margin time.Duration) CacheOption {
	return func(c *Cache) { c.margin = margin }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithRefreshObserver registers a callback invoked after every refresh
// against the underlying provider, with the snapshot source and "success"
// or "error". Used to feed the credential refresh metric without coupling
// this package to the metrics registry.
func WithRefreshObserver(observe func(source, outcome string)) CacheOption {
	return func(c *Cache) { c.observe = observe }
}

// NewCache wraps provider with snapshot caching.
func NewCache(provider Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		margin:   DefaultRefreshMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve returns the cached snapshot, refreshing it when missing or within
// the safety margin of expiry.
func (c *Cache) Retrieve(ctx context.Context) (Credentials, error) {
	if cur := c.snapshot.Load(); cur != nil && !cur.ExpiresWithin(c.now(), c.margin) {
		return *cur, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have completed the refresh while we waited.
	if cur := c.snapshot.Load(); cur != nil && !cur.ExpiresWithin(c.now(), c.margin) {
		return *cur, nil
	}

	creds, err := c.provider.Retrieve(ctx)
	if err != nil {
		c.observed("", "error")
		// A snapshot that is inside the margin but not yet hard-expired is
		// still signable; prefer it over failing the caller.
		if cur := c.snapshot.Load(); cur != nil && !cur.ExpiresWithin(c.now(), 0) {
			return *cur, nil
		}
		return Credentials{}, err
	}

	c.observed(creds.Source, "success")
	c.snapshot.Store(&creds)
	return creds, nil
}

func (c *Cache) observed(source, outcome string) {
	if c.observe != nil {
		c.observe(source, outcome)
	}
}

// Invalidate discards the cached snapshot so the next Retrieve hits the
// underlying provider. Used by the credentials file watcher.
func (c *Cache) Invalidate() {
	c.snapshot.Store(nil)
}
