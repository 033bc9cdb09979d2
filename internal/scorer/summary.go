package scorer

import "github.com/sells-group/trustscore/internal/model"

// RatingSummary is the aggregate of a URL's ratings that scoring needs.
type RatingSummary struct {
	Count             int     `json:"count"`
	Average           float64 `json:"average"`
	SpamReports       int     `json:"spam_reports"`
	MisleadingReports int     `json:"misleading_reports"`
	ScamReports       int     `json:"scam_reports"`
}

// SummarizeRatings folds ratings into a RatingSummary.
func SummarizeRatings(ratings []model.Rating) RatingSummary {
	var s RatingSummary
	var total int
	for _, r := range ratings {
		s.Count++
		total += r.Score
		if r.Flags.IsSpam {
			s.SpamReports++
		}
		if r.Flags.IsMisleading {
			s.MisleadingReports++
		}
		if r.Flags.IsScam {
			s.ScamReports++
		}
	}
	if s.Count > 0 {
		s.Average = float64(total) / float64(s.Count)
	}
	return s
}

// SpamRatio is the share of ratings flagged as spam.
func (s RatingSummary) SpamRatio() float64 { return s.ratio(s.SpamReports) }

// MisleadingRatio is the share of ratings flagged as misleading.
func (s RatingSummary) MisleadingRatio() float64 { return s.ratio(s.MisleadingReports) }

// ScamRatio is the share of ratings flagged as scam.
func (s RatingSummary) ScamRatio() float64 { return s.ratio(s.ScamReports) }

func (s RatingSummary) ratio(n int) float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(n) / float64(s.Count)
}
