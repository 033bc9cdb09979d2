package provider

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/resilience"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

// threatRank orders statuses so the worst listing across zones wins.
var threatRank = map[model.ThreatStatus]int{
	model.ThreatSafe:     0,
	model.ThreatUnwanted: 1,
	model.ThreatPhishing: 2,
	model.ThreatMalware:  3,
}

type dnsblZone struct {
	name  string
	codes map[string]model.ThreatStatus
}

// DNSBL derives threat status from domain blocklist zones. A domain is
// looked up as "<registrable>.<zone>"; NXDOMAIN means not listed, an A
// answer is mapped through the zone's answer codes. Unmapped answers count
// as unwanted.
type DNSBL struct {
	server string
	zones  []dnsblZone
	client *dns.Client
}

// NewDNSBL creates a DNSBL provider querying server ("host:port").
func NewDNSBL(server string, zones []config.DNSBLZoneConfig, timeout time.Duration) *DNSBL {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &DNSBL{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
	for _, z := range zones {
		zone := dnsblZone{
			name:  strings.Trim(strings.ToLower(z.Zone), "."),
			codes: make(map[string]model.ThreatStatus, len(z.Codes)),
		}
		for _, c := range z.Codes {
			zone.codes[c.Answer] = model.ParseThreatStatus(c.Status)
		}
		d.zones = append(d.zones, zone)
	}
	return d
}

// Name implements Provider.
func (d *DNSBL) Name() string { return "dnsbl" }

// Fetch implements Provider. A zone that errors is ignored when another zone
// already lists the domain; otherwise the error is returned.
func (d *DNSBL) Fetch(ctx context.Context, domain string) (model.DomainSignals, error) {
	var out model.DomainSignals
	if len(d.zones) == 0 {
		return out, eris.New("dnsbl: no zones configured")
	}
	registrable := urlnorm.Registrable(domain)

	worst := model.ThreatSafe
	var firstErr error
	for _, z := range d.zones {
		status, err := d.query(ctx, registrable, z)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if threatRank[status] > threatRank[worst] {
			worst = status
		}
	}
	if firstErr != nil && worst == model.ThreatSafe {
		return out, firstErr
	}
	out.ThreatStatus = worst
	return out, nil
}

func (d *DNSBL) query(ctx context.Context, domain string, z dnsblZone) (model.ThreatStatus, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain+"."+z.name), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := d.client.ExchangeContext(ctx, msg, d.server)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrapf(err, "dnsbl: query %s in %s", domain, z.name), 0)
	}

	switch resp.Rcode {
	case dns.RcodeNameError:
		return model.ThreatSafe, nil
	case dns.RcodeSuccess:
	case dns.RcodeServerFailure, dns.RcodeRefused:
		return "", resilience.NewTransientError(
			eris.Errorf("dnsbl: %s answered %s for %s", z.name, dns.RcodeToString[resp.Rcode], domain), 0)
	default:
		return "", eris.Errorf("dnsbl: %s answered %s for %s", z.name, dns.RcodeToString[resp.Rcode], domain)
	}

	worst := model.ThreatSafe
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		status, known := z.codes[a.A.String()]
		if !known || status == model.ThreatUnknown {
			status = model.ThreatUnwanted
		}
		if threatRank[status] > threatRank[worst] {
			worst = status
		}
	}
	return worst, nil
}
