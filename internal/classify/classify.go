// Package classify assigns a content type and trust modifier to a URL from
// the domain-scoped content rules.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

// Classification is the content type resolved for a URL.
type Classification struct {
	ContentType        string  `json:"content_type"`
	TrustModifier      float64 `json:"trust_modifier"`
	MinRatingsRequired int     `json:"min_ratings_required"`
	RuleID             string  `json:"rule_id,omitempty"`
}

// General is the classification used when no rule matches.
var General = Classification{ContentType: model.ContentTypeGeneral}

type compiledRule struct {
	model.ContentTypeRule
	re *regexp.Regexp
}

// Classifier evaluates content rules. It is immutable after New and safe
// for concurrent use.
type Classifier struct {
	byDomain map[string][]compiledRule
}

// New compiles the active rules and groups them by normalized domain in
// (Priority, ID) order. Rules with an invalid URL pattern are dropped.
func New(rules []model.ContentTypeRule) *Classifier {
	c := &Classifier{byDomain: make(map[string][]compiledRule)}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		domain, err := urlnorm.Domain(r.Domain)
		if err != nil {
			zap.L().Warn("classify: dropping rule with bad domain",
				zap.String("rule_id", r.ID),
				zap.String("domain", r.Domain),
			)
			continue
		}
		cr := compiledRule{ContentTypeRule: r}
		if r.URLPattern != "" {
			cr.re, err = regexp.Compile(r.URLPattern)
			if err != nil {
				zap.L().Warn("classify: dropping rule with bad pattern",
					zap.String("rule_id", r.ID),
					zap.String("pattern", r.URLPattern),
					zap.Error(err),
				)
				continue
			}
		}
		c.byDomain[domain] = append(c.byDomain[domain], cr)
	}
	for _, list := range c.byDomain {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority < list[j].Priority
			}
			return list[i].ID < list[j].ID
		})
	}
	return c
}

// Classify returns the first matching rule for the URL. Rules of the exact
// host are used when it has any, otherwise those of its registrable domain.
// A rule without a URL pattern matches every URL of its domain; with an
// empty rawURL only such rules can match.
func (c *Classifier) Classify(rawURL, domain string) Classification {
	if c == nil {
		return General
	}
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return General
	}

	rules, ok := c.byDomain[domain]
	if !ok {
		rules = c.byDomain[urlnorm.Registrable(domain)]
	}
	for _, r := range rules {
		if r.re != nil && (rawURL == "" || !r.re.MatchString(rawURL)) {
			continue
		}
		return Classification{
			ContentType:        r.ContentType,
			TrustModifier:      r.TrustModifier,
			MinRatingsRequired: r.MinRatingsRequired,
			RuleID:             r.ID,
		}
	}
	return General
}
