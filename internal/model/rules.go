package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// BlacklistRule penalizes domains equal to Pattern or matching it as a
// "*" glob.
type BlacklistRule struct {
	Pattern   string    `json:"pattern" yaml:"pattern"`
	Category  string    `json:"category" yaml:"category"`
	Severity  int       `json:"severity" yaml:"severity"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Active    bool      `json:"active" yaml:"active"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Blacklist severities are bounded to keep a single rule's weight predictable.
const (
	MinBlacklistSeverity = 1
	MaxBlacklistSeverity = 10
)

// ContentTypeRule classifies URLs of a domain. Rules of one domain are
// evaluated in (Priority, ID) order and the first match wins.
type ContentTypeRule struct {
	ID                 string    `json:"id" yaml:"id"`
	Domain             string    `json:"domain" yaml:"domain"`
	ContentType        string    `json:"content_type" yaml:"content_type"`
	URLPattern         string    `json:"url_pattern,omitempty" yaml:"url_pattern,omitempty"`
	TrustModifier      float64   `json:"trust_modifier" yaml:"trust_modifier"`
	MinRatingsRequired int       `json:"min_ratings_required" yaml:"min_ratings_required"`
	Priority           int       `json:"priority" yaml:"priority"`
	Active             bool      `json:"active" yaml:"active"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

// ContentTypeGeneral is assigned when no content rule matches.
const ContentTypeGeneral = "general"

// Validate checks a rule before it is stored.
func (r BlacklistRule) Validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return eris.New("blacklist rule: empty pattern")
	}
	if r.Severity < MinBlacklistSeverity || r.Severity > MaxBlacklistSeverity {
		return eris.Errorf("blacklist rule %q: severity %d outside [%d,%d]",
			r.Pattern, r.Severity, MinBlacklistSeverity, MaxBlacklistSeverity)
	}
	return nil
}

// Validate checks a rule before it is stored. An invalid URL pattern is
// rejected here so it never reaches the classifier.
func (r ContentTypeRule) Validate() error {
	if strings.TrimSpace(r.Domain) == "" {
		return eris.New("content rule: empty domain")
	}
	if strings.TrimSpace(r.ContentType) == "" {
		return eris.Errorf("content rule for %s: empty content type", r.Domain)
	}
	if r.MinRatingsRequired < 0 {
		return eris.Errorf("content rule for %s: negative min_ratings_required", r.Domain)
	}
	if r.URLPattern != "" {
		if _, err := regexp.Compile(r.URLPattern); err != nil {
			return eris.Wrapf(err, "content rule for %s: bad url pattern", r.Domain)
		}
	}
	return nil
}
