package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/resilience"
)

// Probe requests the domain's HTTPS root and reports certificate validity
// and the HTTP status of the response.
type Probe struct {
	client    *http.Client
	userAgent string
	target    func(domain string) string
}

// NewProbe creates a Probe. Redirects are not followed so the status is the
// domain's own.
func NewProbe(timeout time.Duration, userAgent string) *Probe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Probe{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: userAgent,
		target: func(domain string) string {
			return "https://" + domain + "/"
		},
	}
}

// Name implements Provider.
func (p *Probe) Name() string { return "probe" }

// Fetch implements Provider. A certificate failure is a result
// (SSLValid=false), not an error.
func (p *Probe) Fetch(ctx context.Context, domain string) (model.DomainSignals, error) {
	var out model.DomainSignals

	status, err := p.do(ctx, http.MethodHead, domain)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = p.do(ctx, http.MethodGet, domain)
	}
	if err != nil {
		if isCertError(err) {
			invalid := false
			out.SSLValid = &invalid
			return out, nil
		}
		if resilience.IsTransient(err) {
			return out, resilience.NewTransientError(eris.Wrapf(err, "probe: %s", domain), 0)
		}
		return out, eris.Wrapf(err, "probe: %s", domain)
	}

	valid := true
	out.SSLValid = &valid
	out.HTTPStatus = &status
	return out, nil
}

func (p *Probe) do(ctx context.Context, method, domain string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.target(domain), nil)
	if err != nil {
		return 0, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func isCertError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		recordHdrErr tls.RecordHeaderError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &recordHdrErr)
}
