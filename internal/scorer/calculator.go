package scorer

import (
	"math"

	"github.com/sells-group/trustscore/internal/blacklist"
	"github.com/sells-group/trustscore/internal/classify"
	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/model"
)

// Score bounds and the neutral midpoint used when nothing is known.
const (
	MinScore     = 0.0
	MaxScore     = 100.0
	NeutralScore = 50.0
)

// Domain signal adjustments.
const (
	ageFiveYears   = 15.0
	ageTwoYears    = 10.0
	ageOneYear     = 5.0
	ageNewDomain   = -10.0
	sslValid       = 5.0
	sslInvalid     = -15.0
	httpError      = -20.0
	threatMalware  = -50.0
	threatPhishing = -45.0
	threatUnwanted = -30.0
)

// Inputs is everything the calculator looks at for one URL. Signal must be
// nil unless the cached entry is fresh.
type Inputs struct {
	Ratings   RatingSummary
	Domain    string
	Signal    *model.DomainCacheEntry
	Blacklist blacklist.Result
	Content   classify.Classification
}

// Adjustment is one term that moved a component score.
type Adjustment struct {
	Component string  `json:"component"`
	Reason    string  `json:"reason"`
	Delta     float64 `json:"delta"`
}

// Result holds the scores for one URL, rounded to two decimals.
type Result struct {
	DomainScore      float64                `json:"domain_score"`
	CommunityScore   float64                `json:"community_score"`
	FinalScore       float64                `json:"final_score"`
	ContentType      string                 `json:"content_type"`
	ProcessingStatus model.ProcessingStatus `json:"processing_status"`
	Breakdown        []Adjustment           `json:"breakdown,omitempty"`
}

// Compute scores one URL. It is a pure function of cfg and in.
func Compute(cfg config.ScoringConfig, in Inputs) Result {
	var res Result

	community := communityScore(cfg, in.Ratings, &res.Breakdown)

	var domain float64
	switch {
	case in.Domain == "":
		domain = NeutralScore
		res.ContentType = model.ContentTypeGeneral
		res.ProcessingStatus = model.StatusCommunityOnly
	default:
		domain = domainScore(in, &res.Breakdown)
		res.ContentType = in.Content.ContentType
		if res.ContentType == "" {
			res.ContentType = model.ContentTypeGeneral
		}
		if in.Signal != nil {
			res.ProcessingStatus = model.StatusEnhanced
		} else {
			res.ProcessingStatus = model.StatusCommunityWithBasic
		}
	}

	res.DomainScore = round2(domain)
	res.CommunityScore = round2(community)
	res.FinalScore = round2(clamp(cfg.DomainWeight*res.DomainScore + cfg.CommunityWeight*res.CommunityScore))
	return res
}

func communityScore(cfg config.ScoringConfig, s RatingSummary, bd *[]Adjustment) float64 {
	if s.Count == 0 {
		return NeutralScore
	}

	base := (s.Average - model.MinRatingScore) / (model.MaxRatingScore - model.MinRatingScore) * 100
	*bd = append(*bd, Adjustment{Component: "community", Reason: "average_rating", Delta: base - NeutralScore})

	penalty := s.SpamRatio()*cfg.SpamPenalty +
		s.MisleadingRatio()*cfg.MisleadingPenalty +
		s.ScamRatio()*cfg.ScamPenalty
	if penalty > 0 {
		*bd = append(*bd, Adjustment{Component: "community", Reason: "flag_reports", Delta: -penalty})
	}
	raw := base - penalty

	floor := cfg.ConfidenceFloorRatings
	if floor < 1 {
		floor = 1
	}
	confidence := math.Min(1, float64(s.Count)/float64(floor))
	blended := raw*confidence + NeutralScore*(1-confidence)
	if confidence < 1 {
		*bd = append(*bd, Adjustment{Component: "community", Reason: "low_confidence", Delta: blended - raw})
	}
	return clamp(blended)
}

func domainScore(in Inputs, bd *[]Adjustment) float64 {
	score := NeutralScore
	add := func(reason string, delta float64) {
		score += delta
		*bd = append(*bd, Adjustment{Component: "domain", Reason: reason, Delta: delta})
	}

	if sig := in.Signal; sig != nil {
		if sig.DomainAgeDays != nil {
			switch age := *sig.DomainAgeDays; {
			case age >= 1825:
				add("domain_age_5y", ageFiveYears)
			case age >= 730:
				add("domain_age_2y", ageTwoYears)
			case age >= 365:
				add("domain_age_1y", ageOneYear)
			case age < 30:
				add("domain_age_new", ageNewDomain)
			}
		}
		if sig.SSLValid != nil {
			if *sig.SSLValid {
				add("ssl_valid", sslValid)
			} else {
				add("ssl_invalid", sslInvalid)
			}
		}
		if sig.HTTPStatus != nil && *sig.HTTPStatus >= 400 {
			add("http_error", httpError)
		}
		switch sig.ThreatStatus {
		case model.ThreatMalware:
			add("threat_malware", threatMalware)
		case model.ThreatPhishing:
			add("threat_phishing", threatPhishing)
		case model.ThreatUnwanted:
			add("threat_unwanted", threatUnwanted)
		}
	}

	if in.Blacklist.Penalty > 0 {
		add("blacklist", -in.Blacklist.Penalty)
	}
	if in.Content.TrustModifier != 0 && in.Ratings.Count >= in.Content.MinRatingsRequired {
		add("content_"+in.Content.ContentType, in.Content.TrustModifier)
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
