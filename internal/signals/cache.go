// Package signals caches externally observed domain signals and refreshes
// them asynchronously through the signal providers.
package signals

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/store"
)

// DefaultTTL is how long a signal snapshot counts as fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Lookup is the cached state of one domain. A miss has a nil Entry.
type Lookup struct {
	Entry *model.DomainCacheEntry
	Fresh bool
}

// Cache is the TTL-bounded domain signal cache backed by the store.
type Cache struct {
	store store.DomainCacheStore
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a Cache with the given TTL (DefaultTTL when <= 0).
func NewCache(st store.DomainCacheStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: st, ttl: ttl, now: time.Now}
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) clock() time.Time {
	return c.now().UTC().Truncate(time.Microsecond)
}

// Lookup returns the cached entry for domain and whether it is still within
// its TTL. A miss is not an error.
func (c *Cache) Lookup(ctx context.Context, domain string) (Lookup, error) {
	domain = key(domain)
	if domain == "" {
		return Lookup{}, nil
	}
	e, err := c.store.GetDomainCache(ctx, domain)
	if err != nil {
		return Lookup{}, eris.Wrapf(err, "signals: lookup %s", domain)
	}
	if e == nil {
		return Lookup{}, nil
	}
	return Lookup{Entry: e, Fresh: e.Fresh(c.clock())}, nil
}

// Upsert stores a new signal snapshot, resetting CheckedAt to now and
// ExpiresAt to now+TTL. Signals missing from sig keep their cached values.
func (c *Cache) Upsert(ctx context.Context, domain string, sig model.DomainSignals) (model.DomainCacheEntry, error) {
	domain = key(domain)
	if domain == "" {
		return model.DomainCacheEntry{}, eris.New("signals: upsert with empty domain")
	}
	now := c.clock()
	e := model.DomainCacheEntry{
		Domain:        domain,
		DomainSignals: sig,
		CheckedAt:     now,
		ExpiresAt:     now.Add(c.ttl),
	}
	merged, err := c.store.PutDomainCache(ctx, e)
	if err != nil {
		return model.DomainCacheEntry{}, eris.Wrapf(err, "signals: upsert %s", domain)
	}
	if merged.ThreatStatus == "" {
		merged.ThreatStatus = model.ThreatUnknown
	}
	return merged, nil
}

// MarkStale expires the entry now without deleting its data.
func (c *Cache) MarkStale(ctx context.Context, domain string) error {
	domain = key(domain)
	if err := c.store.ExpireDomainCache(ctx, domain, c.clock()); err != nil {
		return eris.Wrapf(err, "signals: mark stale %s", domain)
	}
	return nil
}

func key(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
