package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestMergeURLStats_NoExisting(t *testing.T) {
	in := URLStats{URLHash: "abc", Domain: "example.com", FinalScore: 80}
	got := MergeURLStats(nil, in)
	assert.Equal(t, in, got)
}

func TestMergeURLStats_PreservesURLAndDomain(t *testing.T) {
	existing := &URLStats{
		URLHash: "abc",
		URL:     "https://example.com/a",
		Domain:  "example.com",
	}
	in := URLStats{URLHash: "abc", FinalScore: 55, LastUpdated: time.Now()}

	got := MergeURLStats(existing, in)
	assert.Equal(t, "https://example.com/a", got.URL)
	assert.Equal(t, "example.com", got.Domain)
	assert.Equal(t, 55.0, got.FinalScore)
}

func TestMergeURLStats_UnchangedKeepsTimestamp(t *testing.T) {
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := &URLStats{
		URLHash:          "abc",
		Domain:           "example.com",
		DomainScore:      50,
		CommunityScore:   100,
		FinalScore:       80,
		ContentType:      ContentTypeGeneral,
		RatingCount:      5,
		AverageRating:    5,
		ProcessingStatus: StatusCommunityWithBasic,
		LastUpdated:      first,
	}
	in := *existing
	in.LastUpdated = first.Add(time.Hour)

	got := MergeURLStats(existing, in)
	assert.Equal(t, first, got.LastUpdated)
	assert.Equal(t, *existing, got)
}

func TestMergeURLStats_ChangedMovesTimestamp(t *testing.T) {
	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := &URLStats{URLHash: "abc", FinalScore: 80, LastUpdated: first}
	in := URLStats{URLHash: "abc", FinalScore: 60, LastUpdated: first.Add(time.Hour)}

	got := MergeURLStats(existing, in)
	assert.Equal(t, first.Add(time.Hour), got.LastUpdated)
	assert.Equal(t, 60.0, got.FinalScore)
}

func TestMergeDomainCacheEntry_KeepsKnownSignals(t *testing.T) {
	now := time.Now().UTC()
	existing := &DomainCacheEntry{
		Domain: "example.com",
		DomainSignals: DomainSignals{
			DomainAgeDays: intPtr(4000),
			SSLValid:      boolPtr(true),
			HTTPStatus:    intPtr(200),
			ThreatStatus:  ThreatSafe,
		},
		CheckedAt: now.Add(-6 * 24 * time.Hour),
		ExpiresAt: now.Add(24 * time.Hour),
	}
	in := DomainCacheEntry{
		Domain: "example.com",
		DomainSignals: DomainSignals{
			HTTPStatus:   intPtr(503),
			ThreatStatus: ThreatPhishing,
		},
		CheckedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
	}

	got := MergeDomainCacheEntry(existing, in)
	assert.Equal(t, 4000, *got.DomainAgeDays)
	assert.True(t, *got.SSLValid)
	assert.Equal(t, 503, *got.HTTPStatus)
	assert.Equal(t, ThreatPhishing, got.ThreatStatus)
	assert.Equal(t, now, got.CheckedAt)
	assert.True(t, got.Fresh(now))
}

func TestMergeDomainCacheEntry_ExpiredContributesNothing(t *testing.T) {
	now := time.Now().UTC()
	existing := &DomainCacheEntry{
		Domain: "example.com",
		DomainSignals: DomainSignals{
			SSLValid:     boolPtr(false),
			HTTPStatus:   intPtr(500),
			ThreatStatus: ThreatMalware,
		},
		CheckedAt: now.Add(-30 * 24 * time.Hour),
		ExpiresAt: now.Add(-23 * 24 * time.Hour),
	}
	in := DomainCacheEntry{
		Domain:        "example.com",
		DomainSignals: DomainSignals{DomainAgeDays: intPtr(4000)},
		CheckedAt:     now,
		ExpiresAt:     now.Add(7 * 24 * time.Hour),
	}

	got := MergeDomainCacheEntry(existing, in)
	assert.Equal(t, 4000, *got.DomainAgeDays)
	assert.Nil(t, got.SSLValid)
	assert.Nil(t, got.HTTPStatus)
	assert.Equal(t, ThreatUnknown, got.ThreatStatus)
}

func TestMergeDomainCacheEntry_ExpiresAtCheckTimeIsStale(t *testing.T) {
	now := time.Now().UTC()
	existing := &DomainCacheEntry{
		Domain:        "example.com",
		DomainSignals: DomainSignals{SSLValid: boolPtr(true), ThreatStatus: ThreatSafe},
		ExpiresAt:     now,
	}
	got := MergeDomainCacheEntry(existing, DomainCacheEntry{Domain: "example.com", CheckedAt: now})
	assert.Nil(t, got.SSLValid)
	assert.Equal(t, ThreatUnknown, got.ThreatStatus)
}

func TestDomainCacheEntry_Fresh(t *testing.T) {
	now := time.Now()
	var nilEntry *DomainCacheEntry
	assert.False(t, nilEntry.Fresh(now))

	e := &DomainCacheEntry{ExpiresAt: now}
	assert.False(t, e.Fresh(now), "an entry expiring exactly now is stale")

	e.ExpiresAt = now.Add(time.Second)
	assert.True(t, e.Fresh(now))
}

func TestParseThreatStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ThreatStatus
	}{
		{"safe", ThreatSafe},
		{"malware", ThreatMalware},
		{"phishing", ThreatPhishing},
		{"unwanted", ThreatUnwanted},
		{"", ThreatUnknown},
		{"botnet", ThreatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseThreatStatus(tt.in))
		})
	}
}

func TestValidScore(t *testing.T) {
	assert.False(t, ValidScore(0))
	assert.True(t, ValidScore(1))
	assert.True(t, ValidScore(5))
	assert.False(t, ValidScore(6))
}
