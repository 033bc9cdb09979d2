// Package scorer computes domain, community and final trust scores for a URL.
package scorer

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/config"
)

// DefaultScoringConfig returns the published weights and penalties.
// Weights sum to 1.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		// Blend.
		DomainWeight:    0.4,
		CommunityWeight: 0.6,

		// Flag penalties, applied per unit of flag ratio.
		SpamPenalty:       30,
		MisleadingPenalty: 25,
		ScamPenalty:       40,

		ConfidenceFloorRatings: 5,
		MaxBlacklistPenalty:    50,
	}
}

// ValidateScoringConfig checks that a ScoringConfig is internally consistent.
func ValidateScoringConfig(c config.ScoringConfig) error {
	if err := c.Validate(); err != nil {
		return eris.Wrap(err, "scorer: config validation failed")
	}
	return nil
}
