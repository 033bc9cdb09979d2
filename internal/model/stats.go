package model

import "time"

// ProcessingStatus records how much domain analysis went into a URL's scores.
type ProcessingStatus string

const (
	StatusCommunityOnly      ProcessingStatus = "community_only"
	StatusCommunityWithBasic ProcessingStatus = "community_with_basic_domain"
	StatusEnhanced           ProcessingStatus = "enhanced_with_domain_analysis"
	// StatusPending marks stats whose scores were cleared for a recompute.
	StatusPending ProcessingStatus = "pending"
)

// URLStats is the materialized aggregate for a single URL.
type URLStats struct {
	URLHash           string           `json:"url_hash"`
	URL               string           `json:"url,omitempty"`
	Domain            string           `json:"domain"`
	DomainScore       float64          `json:"domain_score"`
	CommunityScore    float64          `json:"community_score"`
	FinalScore        float64          `json:"final_score"`
	ContentType       string           `json:"content_type"`
	RatingCount       int              `json:"rating_count"`
	AverageRating     float64          `json:"average_rating"`
	SpamReports       int              `json:"spam_reports"`
	MisleadingReports int              `json:"misleading_reports"`
	ScamReports       int              `json:"scam_reports"`
	ProcessingStatus  ProcessingStatus `json:"processing_status"`
	LastUpdated       time.Time        `json:"last_updated"`
}

// DomainStats is the read-only aggregate view over all URLStats of a domain.
type DomainStats struct {
	Domain                string    `json:"domain"`
	URLCount              int       `json:"url_count"`
	RatingCount           int       `json:"rating_count"`
	AverageRating         float64   `json:"average_rating"`
	AverageDomainScore    float64   `json:"average_domain_score"`
	AverageCommunityScore float64   `json:"average_community_score"`
	AverageFinalScore     float64   `json:"average_final_score"`
	MinFinalScore         float64   `json:"min_final_score"`
	MaxFinalScore         float64   `json:"max_final_score"`
	SpamReports           int       `json:"spam_reports"`
	MisleadingReports     int       `json:"misleading_reports"`
	ScamReports           int       `json:"scam_reports"`
	LastUpdated           time.Time `json:"last_updated"`
}
