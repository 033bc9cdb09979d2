package blacklist

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/trustscore/internal/model"
)

func bl(pattern, category string, severity int) model.BlacklistRule {
	return model.BlacklistRule{Pattern: pattern, Category: category, Severity: severity, Active: true}
}

func TestCheck_ExactMatch(t *testing.T) {
	m := New([]model.BlacklistRule{bl("bad.example", "scam", 4)}, 50)

	res := m.Check("BAD.example.")
	assert.True(t, res.Blacklisted)
	assert.Equal(t, "scam", res.WorstCategory)
	assert.Equal(t, 4, res.MaxSeverity)
	assert.InDelta(t, 20, res.Penalty, 0.001)
	assert.Equal(t, []string{"bad.example"}, res.Matched)

	assert.False(t, m.Check("good.example").Blacklisted)
}

func TestCheck_Glob(t *testing.T) {
	m := New([]model.BlacklistRule{bl("*.evil.test", "malware", 6)}, 50)

	assert.True(t, m.Check("cdn.evil.test").Blacklisted)
	// The apex is not covered by a subdomain glob.
	assert.False(t, m.Check("evil.test").Blacklisted)
	assert.True(t, m.Check("a.b.evil.test").Blacklisted)
	assert.False(t, m.Check("notevil.test").Blacklisted)
}

func TestCheck_OnlyStarIsAWildcard(t *testing.T) {
	m := New([]model.BlacklistRule{
		bl("ad?.example", "unwanted", 3),
		bl("*.[x].example", "spam", 2),
	}, 50)
	assert.Equal(t, 2, m.Len())

	assert.False(t, m.Check("ads.example").Blacklisted)
	assert.True(t, m.Check("ad?.example").Blacklisted)

	assert.False(t, m.Check("cdn.x.example").Blacklisted)
	res := m.Check("cdn.[x].example")
	assert.True(t, res.Blacklisted)
	assert.Equal(t, []string{"*.[x].example"}, res.Matched)
}

func TestCheck_WorstCategoryIsHighestSeverity(t *testing.T) {
	m := New([]model.BlacklistRule{
		bl("*.example", "spam", 2),
		bl("ads.example", "unwanted", 7),
	}, 50)

	res := m.Check("ads.example")
	assert.Equal(t, "unwanted", res.WorstCategory)
	assert.Equal(t, 7, res.MaxSeverity)
	assert.InDelta(t, 45, res.Penalty, 0.001)
	assert.Len(t, res.Matched, 2)
}

func TestCheck_PenaltyCapped(t *testing.T) {
	var rules []model.BlacklistRule
	for i := 0; i < 100; i++ {
		rules = append(rules, bl(fmt.Sprintf("*.example.co%c", 'a'+i%26), "malware", 10))
	}
	rules = append(rules, bl("x.example.com", "malware", 10), bl("x.example.*", "malware", 10))
	m := New(rules, 50)

	res := m.Check("x.example.com")
	assert.True(t, res.Blacklisted)
	assert.InDelta(t, 50, res.Penalty, 0.001)
}

func TestCheck_SingleMaxSeverityHitsCap(t *testing.T) {
	m := New([]model.BlacklistRule{bl("example.com", "malware", 10)}, 50)
	assert.InDelta(t, 50, m.Check("example.com").Penalty, 0.001)
}

func TestNew_SkipsInactiveAndBlank(t *testing.T) {
	inactive := bl("off.example", "spam", 5)
	inactive.Active = false
	m := New([]model.BlacklistRule{inactive, bl("  ", "spam", 5)}, 50)

	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Check("off.example").Blacklisted)
}

func TestCheck_EmptyDomainAndNilMatcher(t *testing.T) {
	m := New([]model.BlacklistRule{bl("*", "spam", 5)}, 50)
	assert.False(t, m.Check("").Blacklisted)

	var nilMatcher *Matcher
	assert.False(t, nilMatcher.Check("example.com").Blacklisted)
}
