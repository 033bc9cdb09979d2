// Package provider implements the domain signal lookups behind the signal
// refresher: RDAP for registration age, DNS blocklists for threat status and
// an HTTPS probe for certificate validity and HTTP status.
package provider

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/resilience"
)

// Provider fetches externally observed facts about a domain. A provider
// leaves the fields it does not cover nil (or ThreatStatus empty).
type Provider interface {
	// Name returns the provider identifier used in logs and breaker names.
	Name() string
	// Fetch looks up signals for a normalized domain.
	Fetch(ctx context.Context, domain string) (model.DomainSignals, error)
}

// guarded runs a provider behind its circuit breaker and retry policy.
type guarded struct {
	Provider
	policy  resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
}

// WithResilience wraps p so every Fetch is retried under policy and
// short-circuited by the breaker registered under p.Name().
func WithResilience(p Provider, policy resilience.RetryPolicy, breakers *resilience.Breakers) Provider {
	return &guarded{Provider: p, policy: policy, breaker: breakers.Get(p.Name())}
}

func (g *guarded) Fetch(ctx context.Context, domain string) (model.DomainSignals, error) {
	return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (model.DomainSignals, error) {
		p := g.policy
		p.OnRetry = resilience.RetryLogger(g.Name(), domain)
		return resilience.DoVal(ctx, p, func(ctx context.Context) (model.DomainSignals, error) {
			return g.Provider.Fetch(ctx, domain)
		})
	})
}

// Composite fans a lookup out to several providers and merges what they
// return. It fails only when every provider fails.
type Composite struct {
	providers []Provider
}

// NewComposite returns a Composite over providers. Earlier providers win
// when two report the same field.
func NewComposite(providers ...Provider) *Composite {
	return &Composite{providers: providers}
}

// Name implements Provider.
func (c *Composite) Name() string { return "composite" }

// Names lists the wrapped providers.
func (c *Composite) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Fetch implements Provider.
func (c *Composite) Fetch(ctx context.Context, domain string) (model.DomainSignals, error) {
	if len(c.providers) == 0 {
		return model.DomainSignals{}, eris.New("provider: no providers configured")
	}

	results := make([]model.DomainSignals, len(c.providers))
	errs := make([]error, len(c.providers))

	var g errgroup.Group
	for i, p := range c.providers {
		g.Go(func() error {
			results[i], errs[i] = p.Fetch(ctx, domain)
			return nil
		})
	}
	_ = g.Wait()

	var merged model.DomainSignals
	var failed []string
	for i, p := range c.providers {
		if errs[i] != nil {
			failed = append(failed, p.Name())
			zap.L().Warn("provider: lookup failed",
				zap.String("provider", p.Name()),
				zap.String("domain", domain),
				zap.Error(errs[i]),
			)
			continue
		}
		overlay(&merged, results[i])
	}

	if len(failed) == len(c.providers) {
		sort.Strings(failed)
		return model.DomainSignals{}, eris.Wrapf(errs[0], "provider: all lookups failed for %s (%v)", domain, failed)
	}
	return merged, nil
}

// overlay fills fields of dst that are still unknown from src.
func overlay(dst *model.DomainSignals, src model.DomainSignals) {
	if dst.DomainAgeDays == nil {
		dst.DomainAgeDays = src.DomainAgeDays
	}
	if dst.SSLValid == nil {
		dst.SSLValid = src.SSLValid
	}
	if dst.HTTPStatus == nil {
		dst.HTTPStatus = src.HTTPStatus
	}
	if dst.ThreatStatus == "" || dst.ThreatStatus == model.ThreatUnknown {
		if src.ThreatStatus != "" {
			dst.ThreatStatus = src.ThreatStatus
		}
	}
}
