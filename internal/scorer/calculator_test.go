package scorer

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trustscore/internal/blacklist"
	"github.com/sells-group/trustscore/internal/classify"
	"github.com/sells-group/trustscore/internal/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func ratings(n, score int, flags model.RatingFlags) []model.Rating {
	out := make([]model.Rating, n)
	for i := range out {
		out[i] = model.Rating{Score: score, Flags: flags}
	}
	return out
}

func freshSignal(s model.DomainSignals) *model.DomainCacheEntry {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.DomainCacheEntry{
		Domain:        "example.com",
		DomainSignals: s,
		CheckedAt:     now,
		ExpiresAt:     now.Add(7 * 24 * time.Hour),
	}
}

func TestCompute_NoRatingsIsNeutral(t *testing.T) {
	res := Compute(DefaultScoringConfig(), Inputs{Domain: "example.com", Content: classify.General})
	assert.Equal(t, 50.0, res.CommunityScore)
	assert.Equal(t, 50.0, res.DomainScore)
	assert.Equal(t, 50.0, res.FinalScore)
	assert.Equal(t, model.StatusCommunityWithBasic, res.ProcessingStatus)
}

func TestCompute_FiveTopRatingsNoSignal(t *testing.T) {
	res := Compute(DefaultScoringConfig(), Inputs{
		Ratings: SummarizeRatings(ratings(5, 5, model.RatingFlags{})),
		Domain:  "example.com",
		Content: classify.General,
	})
	assert.Equal(t, 100.0, res.CommunityScore)
	assert.Equal(t, 50.0, res.DomainScore)
	assert.Equal(t, 80.0, res.FinalScore)
	assert.Equal(t, "general", res.ContentType)
}

func TestCompute_MaxBlacklistDropsDomainByCap(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := Inputs{
		Ratings: SummarizeRatings(ratings(5, 5, model.RatingFlags{})),
		Domain:  "example.com",
		Content: classify.General,
	}
	before := Compute(cfg, in)

	in.Blacklist = blacklist.New([]model.BlacklistRule{
		{Pattern: "example.com", Category: "malware", Severity: 10, Active: true},
	}, cfg.MaxBlacklistPenalty).Check("example.com")
	after := Compute(cfg, in)

	assert.Equal(t, 0.0, after.DomainScore)
	assert.InDelta(t, 50, before.DomainScore-after.DomainScore, 1e-9)
	assert.InDelta(t, 20, before.FinalScore-after.FinalScore, 1e-9)
	assert.Equal(t, 60.0, after.FinalScore)
}

func TestCompute_ConfidenceDamping(t *testing.T) {
	cfg := DefaultScoringConfig()
	one := Compute(cfg, Inputs{Ratings: SummarizeRatings(ratings(1, 5, model.RatingFlags{})), Domain: "example.com"})
	assert.Greater(t, one.CommunityScore, 50.0)
	assert.Less(t, one.CommunityScore, 100.0)
	assert.Equal(t, 60.0, one.CommunityScore)

	five := Compute(cfg, Inputs{Ratings: SummarizeRatings(ratings(5, 5, model.RatingFlags{})), Domain: "example.com"})
	assert.Equal(t, 100.0, five.CommunityScore)

	many := Compute(cfg, Inputs{Ratings: SummarizeRatings(ratings(50, 4, model.RatingFlags{})), Domain: "example.com"})
	assert.Equal(t, 75.0, many.CommunityScore)
}

func TestCompute_FlagPenalties(t *testing.T) {
	cfg := DefaultScoringConfig()
	rs := ratings(10, 5, model.RatingFlags{})
	for i := 0; i < 5; i++ {
		rs[i].Flags.IsScam = true
	}
	rs[5].Flags.IsSpam = true

	res := Compute(cfg, Inputs{Ratings: SummarizeRatings(rs), Domain: "example.com"})
	// 100 - 0.5*40 - 0.1*30
	assert.Equal(t, 77.0, res.CommunityScore)
}

func TestCompute_CommunityClampedAtZero(t *testing.T) {
	rs := ratings(5, 1, model.RatingFlags{IsSpam: true, IsMisleading: true, IsScam: true})
	res := Compute(DefaultScoringConfig(), Inputs{Ratings: SummarizeRatings(rs), Domain: "example.com"})
	assert.Equal(t, 0.0, res.CommunityScore)
}

func TestCompute_DomainSignals(t *testing.T) {
	tests := []struct {
		name string
		sig  model.DomainSignals
		want float64
	}{
		{"old valid site", model.DomainSignals{DomainAgeDays: intPtr(4000), SSLValid: boolPtr(true), HTTPStatus: intPtr(200), ThreatStatus: model.ThreatSafe}, 70},
		{"two years", model.DomainSignals{DomainAgeDays: intPtr(800)}, 60},
		{"one year", model.DomainSignals{DomainAgeDays: intPtr(400)}, 55},
		{"middling age", model.DomainSignals{DomainAgeDays: intPtr(100)}, 50},
		{"brand new", model.DomainSignals{DomainAgeDays: intPtr(3)}, 40},
		{"bad ssl", model.DomainSignals{SSLValid: boolPtr(false)}, 35},
		{"http error", model.DomainSignals{HTTPStatus: intPtr(503)}, 30},
		{"phishing", model.DomainSignals{ThreatStatus: model.ThreatPhishing}, 5},
		{"unwanted", model.DomainSignals{ThreatStatus: model.ThreatUnwanted}, 20},
		{"malware new bad ssl", model.DomainSignals{DomainAgeDays: intPtr(1), SSLValid: boolPtr(false), ThreatStatus: model.ThreatMalware}, 0},
		{"unknown threat", model.DomainSignals{ThreatStatus: model.ThreatUnknown}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(DefaultScoringConfig(), Inputs{Domain: "example.com", Signal: freshSignal(tt.sig)})
			assert.Equal(t, tt.want, res.DomainScore)
			assert.Equal(t, model.StatusEnhanced, res.ProcessingStatus)
		})
	}
}

func TestCompute_NoDomainIsNeutralAndGeneral(t *testing.T) {
	res := Compute(DefaultScoringConfig(), Inputs{
		Ratings:   SummarizeRatings(ratings(5, 5, model.RatingFlags{})),
		Signal:    freshSignal(model.DomainSignals{ThreatStatus: model.ThreatMalware}),
		Blacklist: blacklist.Result{Blacklisted: true, Penalty: 50},
		Content:   classify.Classification{ContentType: "video", TrustModifier: 10},
	})
	assert.Equal(t, 50.0, res.DomainScore)
	assert.Equal(t, "general", res.ContentType)
	assert.Equal(t, model.StatusCommunityOnly, res.ProcessingStatus)
}

func TestCompute_ContentModifierNeedsMinRatings(t *testing.T) {
	content := classify.Classification{ContentType: "news", TrustModifier: 10, MinRatingsRequired: 3}

	few := Compute(DefaultScoringConfig(), Inputs{
		Ratings: SummarizeRatings(ratings(2, 3, model.RatingFlags{})),
		Domain:  "example.com",
		Content: content,
	})
	assert.Equal(t, 50.0, few.DomainScore)
	assert.Equal(t, "news", few.ContentType)

	enough := Compute(DefaultScoringConfig(), Inputs{
		Ratings: SummarizeRatings(ratings(3, 3, model.RatingFlags{})),
		Domain:  "example.com",
		Content: content,
	})
	assert.Equal(t, 60.0, enough.DomainScore)
}

func TestCompute_BreakdownExplainsDomain(t *testing.T) {
	res := Compute(DefaultScoringConfig(), Inputs{
		Domain:    "example.com",
		Signal:    freshSignal(model.DomainSignals{SSLValid: boolPtr(true)}),
		Blacklist: blacklist.Result{Blacklisted: true, Penalty: 10},
	})
	var reasons []string
	var sum float64
	for _, a := range res.Breakdown {
		if a.Component == "domain" {
			reasons = append(reasons, a.Reason)
			sum += a.Delta
		}
	}
	assert.Equal(t, []string{"ssl_valid", "blacklist"}, reasons)
	assert.Equal(t, res.DomainScore, NeutralScore+sum)
}

// Randomized inputs must keep every score in bounds and the final score
// equal to the weighted blend of the published components.
func TestCompute_BoundsAndBlend(t *testing.T) {
	cfg := DefaultScoringConfig()
	rng := rand.New(rand.NewPCG(1, 2))
	threats := []model.ThreatStatus{model.ThreatSafe, model.ThreatMalware, model.ThreatPhishing, model.ThreatUnwanted, model.ThreatUnknown}

	for i := 0; i < 2000; i++ {
		n := rng.IntN(20)
		rs := make([]model.Rating, n)
		for j := range rs {
			rs[j] = model.Rating{
				Score: 1 + rng.IntN(5),
				Flags: model.RatingFlags{IsSpam: rng.IntN(4) == 0, IsMisleading: rng.IntN(4) == 0, IsScam: rng.IntN(4) == 0},
			}
		}
		in := Inputs{
			Ratings:   SummarizeRatings(rs),
			Domain:    "example.com",
			Blacklist: blacklist.Result{Penalty: float64(rng.IntN(51))},
			Content:   classify.Classification{ContentType: "x", TrustModifier: float64(rng.IntN(61) - 30)},
		}
		if rng.IntN(2) == 0 {
			in.Signal = freshSignal(model.DomainSignals{
				DomainAgeDays: intPtr(rng.IntN(5000)),
				SSLValid:      boolPtr(rng.IntN(2) == 0),
				HTTPStatus:    intPtr(200 + rng.IntN(400)),
				ThreatStatus:  threats[rng.IntN(len(threats))],
			})
		}

		res := Compute(cfg, in)
		for _, v := range []float64{res.DomainScore, res.CommunityScore, res.FinalScore} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 100.0)
		}
		want := math.Round((0.4*res.DomainScore+0.6*res.CommunityScore)*100) / 100
		require.InDelta(t, want, res.FinalScore, 1e-9)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	in := Inputs{
		Ratings: SummarizeRatings(ratings(3, 4, model.RatingFlags{IsSpam: true})),
		Domain:  "example.com",
		Signal:  freshSignal(model.DomainSignals{DomainAgeDays: intPtr(900)}),
	}
	assert.Equal(t, Compute(DefaultScoringConfig(), in), Compute(DefaultScoringConfig(), in))
}

func TestSummarizeRatings(t *testing.T) {
	s := SummarizeRatings([]model.Rating{
		{Score: 5},
		{Score: 2, Flags: model.RatingFlags{IsSpam: true, IsScam: true}},
		{Score: 2, Flags: model.RatingFlags{IsMisleading: true}},
	})
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 3.0, s.Average, 1e-9)
	assert.Equal(t, 1, s.SpamReports)
	assert.InDelta(t, 1.0/3, s.ScamRatio(), 1e-9)
	assert.InDelta(t, 1.0/3, s.MisleadingRatio(), 1e-9)

	empty := SummarizeRatings(nil)
	assert.Zero(t, empty.Count)
	assert.Zero(t, empty.SpamRatio())
}

func TestValidateScoringConfig(t *testing.T) {
	assert.NoError(t, ValidateScoringConfig(DefaultScoringConfig()))

	bad := DefaultScoringConfig()
	bad.DomainWeight = 0.9
	err := ValidateScoringConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1")
}
