package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openrdap/rdap"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/resilience"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

// RDAPClient abstracts RDAP domain lookups for testing.
type RDAPClient interface {
	LookupDomain(ctx context.Context, domain string) (*rdap.Domain, error)
}

type defaultRDAPClient struct {
	client *rdap.Client
}

func (c *defaultRDAPClient) LookupDomain(ctx context.Context, domain string) (*rdap.Domain, error) {
	req := &rdap.Request{
		Type:  rdap.DomainRequest,
		Query: domain,
	}
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	d, ok := resp.Object.(*rdap.Domain)
	if !ok {
		return nil, eris.Errorf("rdap: unexpected response type for domain %s", domain)
	}
	return d, nil
}

// NewRDAPClient returns an RDAPClient backed by the IANA RDAP bootstrap.
func NewRDAPClient() RDAPClient {
	return &defaultRDAPClient{client: &rdap.Client{}}
}

// RDAP reports domain age from the registration event of the registrable
// domain.
type RDAP struct {
	client RDAPClient
	now    func() time.Time
}

// NewRDAP creates an RDAP provider. A nil client uses NewRDAPClient.
func NewRDAP(client RDAPClient) *RDAP {
	if client == nil {
		client = NewRDAPClient()
	}
	return &RDAP{client: client, now: time.Now}
}

// Name implements Provider.
func (r *RDAP) Name() string { return "rdap" }

// Fetch implements Provider.
func (r *RDAP) Fetch(ctx context.Context, domain string) (model.DomainSignals, error) {
	var out model.DomainSignals
	registrable := urlnorm.Registrable(domain)

	d, err := r.client.LookupDomain(ctx, registrable)
	if err != nil {
		var ce *rdap.ClientError
		if errors.As(err, &ce) {
			// Bootstrap misses and unknown objects will not fix themselves.
			return out, eris.Wrapf(err, "rdap: lookup %s", registrable)
		}
		return out, resilience.NewTransientError(eris.Wrapf(err, "rdap: lookup %s", registrable), 0)
	}

	registered, ok := registrationDate(d.Events)
	if !ok {
		return out, nil
	}
	days := int(r.now().Sub(registered).Hours() / 24)
	if days < 0 {
		days = 0
	}
	out.DomainAgeDays = &days
	return out, nil
}

// registrationDate returns the date of the "registration" event.
func registrationDate(events []rdap.Event) (time.Time, bool) {
	for _, e := range events {
		if !strings.EqualFold(e.Action, "registration") {
			continue
		}
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, e.Date); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
