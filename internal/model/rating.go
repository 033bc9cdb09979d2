// Package model holds the ratings, domain signals, rules and statistics
// shared by the stores and the scoring pipeline.
package model

import "time"

// MinRatingScore and MaxRatingScore bound a single user rating.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// RatingFlags are the optional report flags a user attaches to a rating.
type RatingFlags struct {
	IsSpam       bool `json:"is_spam"`
	IsMisleading bool `json:"is_misleading"`
	IsScam       bool `json:"is_scam"`
}

// Rating is one user's assessment of a URL. Ratings are append-only; the
// Processed flag is the only field that changes after insert.
type Rating struct {
	ID        string      `json:"id"`
	URLHash   string      `json:"url_hash"`
	URL       string      `json:"url,omitempty"`
	Domain    string      `json:"domain"`
	UserRef   string      `json:"user_ref"`
	Score     int         `json:"score"`
	Flags     RatingFlags `json:"flags"`
	CreatedAt time.Time   `json:"created_at"`
	Processed bool        `json:"processed"`
}

// ValidScore reports whether s is inside the allowed rating range.
func ValidScore(s int) bool {
	return s >= MinRatingScore && s <= MaxRatingScore
}
