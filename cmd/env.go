package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/aggregate"
	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/resilience"
	"github.com/sells-group/trustscore/internal/service"
	"github.com/sells-group/trustscore/internal/signals"
	"github.com/sells-group/trustscore/internal/signals/provider"
	"github.com/sells-group/trustscore/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "trustscore.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// engine holds the wired components shared by the commands.
type engine struct {
	Store      store.Store
	Cache      *signals.Cache
	Breakers   *resilience.Breakers
	Refresher  *signals.Refresher // nil when signals are disabled
	Aggregator *aggregate.Aggregator
	Service    *service.Service
}

// initEngine wires the shared components. Refresh requests from ingestion
// and aggregation are only queued when drainQueue is set, meaning the caller
// starts the refresher workers. One-shot commands pass false and can still
// refresh synchronously through RefreshNow.
func initEngine(ctx context.Context, drainQueue bool) (*engine, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	e := &engine{
		Store:    st,
		Cache:    signals.NewCache(st, time.Duration(cfg.Cache.TTLDays)*24*time.Hour),
		Breakers: resilience.NewBreakers(resilience.SettingsFromConfig(cfg.Signals.Circuit)),
	}

	var requester signals.Requester
	if cfg.Signals.Enabled {
		if p, names := buildProvider(cfg.Signals, e.Breakers); p != nil {
			e.Refresher = signals.NewRefresher(e.Cache, p, signals.RefresherConfigFrom(cfg.Signals))
			if drainQueue {
				requester = e.Refresher
			}
			zap.L().Debug("signal providers enabled", zap.Strings("providers", names))
		}
	}

	e.Aggregator = aggregate.New(st, e.Cache, requester, cfg.Scoring, aggregate.OptionsFrom(cfg.Scheduler))
	e.Service = service.New(st, requester)
	return e, nil
}

// Close releases the store.
func (e *engine) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// buildProvider wires the enabled providers behind retry and per-provider
// circuit breakers. It returns nil when no provider is enabled.
func buildProvider(sc config.SignalsConfig, breakers *resilience.Breakers) (provider.Provider, []string) {
	timeout := time.Duration(sc.TimeoutSecs) * time.Second
	policy := resilience.PolicyFromConfig(sc.Retry)

	var ps []provider.Provider
	if sc.RDAP.Enabled {
		ps = append(ps, provider.NewRDAP(provider.NewRDAPClient()))
	}
	if sc.DNSBL.Enabled && len(sc.DNSBL.Zones) > 0 {
		ps = append(ps, provider.NewDNSBL(sc.DNSBL.Server, sc.DNSBL.Zones, timeout))
	}
	if sc.Probe.Enabled {
		ps = append(ps, provider.NewProbe(timeout, sc.Probe.UserAgent))
	}
	if len(ps) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(ps))
	guarded := make([]provider.Provider, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name())
		guarded = append(guarded, provider.WithResilience(p, policy, breakers))
	}
	return provider.NewComposite(guarded...), names
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
