package signals

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/signals/provider"
)

// RefresherConfig tunes the background refresh workers.
type RefresherConfig struct {
	Workers           int
	QueueSize         int
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds one provider fetch, retries included.
	Timeout time.Duration
}

// RefresherConfigFrom maps the signals config section.
func RefresherConfigFrom(c config.SignalsConfig) RefresherConfig {
	return RefresherConfig{
		Workers:           c.Workers,
		QueueSize:         c.QueueSize,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		Timeout:           time.Duration(c.TimeoutSecs) * time.Second,
	}
}

func (c RefresherConfig) withDefaults() RefresherConfig {
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1024
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Requester is the fire-and-forget side of the refresher used by ingestion
// and aggregation.
type Requester interface {
	Request(domain string) bool
}

// Refresher refreshes stale or missing cache entries in the background.
// Requests for the same domain are coalesced and provider calls are rate
// limited. Failures are logged and leave the cache untouched, so the
// domain keeps scoring with neutral defaults.
type Refresher struct {
	cache    *Cache
	provider provider.Provider
	cfg      RefresherConfig
	limiter  *rate.Limiter
	group    singleflight.Group
	queue    chan string
	log      *zap.Logger

	wg        sync.WaitGroup
	started   atomic.Bool
	dropped   atomic.Int64
	refreshed atomic.Int64
	failed    atomic.Int64
}

// NewRefresher creates a Refresher. Call Start to launch the workers.
func NewRefresher(cache *Cache, p provider.Provider, cfg RefresherConfig) *Refresher {
	cfg = cfg.withDefaults()
	return &Refresher{
		cache:    cache,
		provider: p,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		queue:    make(chan string, cfg.QueueSize),
		log:      zap.L().With(zap.String("component", "signal_refresher")),
	}
}

// Start launches the workers. They stop when ctx is done; Wait blocks until
// they have.
func (r *Refresher) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// Request queues a refresh of domain without blocking. It returns false when
// the request was dropped because the queue is full.
func (r *Refresher) Request(domain string) bool {
	domain = key(domain)
	if domain == "" {
		return false
	}
	select {
	case r.queue <- domain:
		return true
	default:
		r.dropped.Add(1)
		r.log.Debug("refresh queue full, dropping request", zap.String("domain", domain))
		return false
	}
}

// RefreshNow refreshes domain synchronously. Unless force is set, a fresh
// entry is returned without calling the provider. With force the entry is
// marked stale first.
func (r *Refresher) RefreshNow(ctx context.Context, domain string, force bool) (model.DomainCacheEntry, error) {
	domain = key(domain)
	if domain == "" {
		return model.DomainCacheEntry{}, eris.New("signals: refresh with empty domain")
	}
	if force {
		if err := r.cache.MarkStale(ctx, domain); err != nil {
			return model.DomainCacheEntry{}, err
		}
	}
	return r.refresh(ctx, domain)
}

// Stats reports counters since start.
type Stats struct {
	Queued    int   `json:"queued"`
	Dropped   int64 `json:"dropped"`
	Refreshed int64 `json:"refreshed"`
	Failed    int64 `json:"failed"`
}

// Stats returns a snapshot of the refresher counters.
func (r *Refresher) Stats() Stats {
	return Stats{
		Queued:    len(r.queue),
		Dropped:   r.dropped.Load(),
		Refreshed: r.refreshed.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Refresher) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case domain := <-r.queue:
			if _, err := r.refresh(ctx, domain); err != nil && ctx.Err() == nil {
				r.log.Warn("signal refresh failed", zap.String("domain", domain), zap.Error(err))
			}
		}
	}
}

// refresh fetches and stores signals for domain unless its entry is fresh.
// Concurrent refreshes of one domain share a single provider call.
func (r *Refresher) refresh(ctx context.Context, domain string) (model.DomainCacheEntry, error) {
	v, err, _ := r.group.Do(domain, func() (any, error) {
		lk, err := r.cache.Lookup(ctx, domain)
		if err != nil {
			return model.DomainCacheEntry{}, err
		}
		if lk.Fresh {
			return *lk.Entry, nil
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return model.DomainCacheEntry{}, eris.Wrap(err, "signals: rate limit wait")
		}

		fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		sig, err := r.provider.Fetch(fetchCtx, domain)
		if err != nil {
			r.failed.Add(1)
			return model.DomainCacheEntry{}, eris.Wrapf(err, "signals: fetch %s", domain)
		}

		e, err := r.cache.Upsert(ctx, domain, sig)
		if err != nil {
			r.failed.Add(1)
			return model.DomainCacheEntry{}, err
		}
		r.refreshed.Add(1)
		r.log.Debug("domain signals refreshed",
			zap.String("domain", domain),
			zap.String("threat_status", string(e.ThreatStatus)),
		)
		return e, nil
	})
	if err != nil {
		return model.DomainCacheEntry{}, err
	}
	return v.(model.DomainCacheEntry), nil
}
