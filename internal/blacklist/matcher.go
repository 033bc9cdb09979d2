// Package blacklist matches domains against severity-scored deny rules.
package blacklist

import (
	"math"
	"path"
	"sort"
	"strings"

	"github.com/sells-group/trustscore/internal/model"
)

// SeverityWeight converts one rule's severity into penalty points.
const SeverityWeight = 5

// Result is the outcome of checking one domain.
type Result struct {
	Blacklisted   bool     `json:"blacklisted"`
	WorstCategory string   `json:"worst_category,omitempty"`
	MaxSeverity   int      `json:"max_severity,omitempty"`
	Penalty       float64  `json:"penalty"`
	Matched       []string `json:"matched,omitempty"`
}

type rule struct {
	pattern  string
	category string
	severity int
	expr     string // path.Match form of a wildcard pattern, empty for exact rules
}

// Matcher checks domains against a fixed rule set. It is safe for
// concurrent use.
type Matcher struct {
	rules      []rule
	maxPenalty float64
}

// globEscaper quotes the path.Match metacharacters other than *, which is the
// only wildcard a rule pattern supports.
var globEscaper = strings.NewReplacer(`\`, `\\`, "?", `\?`, "[", `\[`)

// New builds a Matcher from the active rules, sorted by pattern so results
// do not depend on load order.
func New(rules []model.BlacklistRule, maxPenalty float64) *Matcher {
	m := &Matcher{maxPenalty: maxPenalty}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		p := strings.ToLower(strings.TrimSpace(r.Pattern))
		if p == "" {
			continue
		}
		var expr string
		if strings.Contains(p, "*") {
			expr = globEscaper.Replace(p)
		}
		m.rules = append(m.rules, rule{
			pattern:  p,
			expr:     expr,
			category: r.Category,
			severity: r.Severity,
		})
	}
	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].pattern < m.rules[j].pattern
	})
	return m
}

// Len returns the number of active rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Check returns the combined verdict of every rule matching domain. The
// penalty is the sum of severity*SeverityWeight, capped at the configured
// maximum.
func (m *Matcher) Check(domain string) Result {
	var res Result
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" || m == nil {
		return res
	}

	var sum float64
	for _, r := range m.rules {
		if !r.matches(domain) {
			continue
		}
		res.Blacklisted = true
		res.Matched = append(res.Matched, r.pattern)
		sum += float64(r.severity * SeverityWeight)
		if r.severity > res.MaxSeverity {
			res.MaxSeverity = r.severity
			res.WorstCategory = r.category
		}
	}
	res.Penalty = math.Min(m.maxPenalty, sum)
	return res
}

func (r rule) matches(domain string) bool {
	if r.expr == "" {
		return r.pattern == domain
	}
	ok, _ := path.Match(r.expr, domain)
	return ok
}
