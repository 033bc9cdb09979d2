package store

import (
	"context"
	"time"

	"github.com/sells-group/trustscore/internal/model"
)

// RatingStore is the append-only source of truth for rating events. The
// processed flag is the only field that changes after insert.
type RatingStore interface {
	// AppendRating stores r, assigning an ID and CreatedAt when unset.
	AppendRating(ctx context.Context, r *model.Rating) (string, error)
	// AppendRatings bulk-inserts ratings for backfills.
	AppendRatings(ctx context.Context, rs []model.Rating) (int64, error)
	// UnprocessedURLHashes returns up to limit distinct URL hashes that have
	// unprocessed ratings, oldest unprocessed rating first.
	UnprocessedURLHashes(ctx context.Context, limit int) ([]string, error)
	// RatingsForURL returns every rating of a URL, processed or not.
	RatingsForURL(ctx context.Context, urlHash string) ([]model.Rating, error)
	// MarkProcessed flips the given ratings of urlHash to processed.
	MarkProcessed(ctx context.Context, urlHash string, ratingIDs []string) (int, error)
	// ResetProcessed flips every rating back to unprocessed.
	ResetProcessed(ctx context.Context) (int, error)
	CountUnprocessed(ctx context.Context) (int, error)
	// DeleteRatingsBefore removes processed ratings created before cutoff.
	DeleteRatingsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// DomainCacheStore persists domain signal snapshots, one row per domain.
type DomainCacheStore interface {
	// GetDomainCache returns nil when the domain has never been checked.
	GetDomainCache(ctx context.Context, domain string) (*model.DomainCacheEntry, error)
	// PutDomainCache merges e into the stored entry and returns the result.
	PutDomainCache(ctx context.Context, e model.DomainCacheEntry) (model.DomainCacheEntry, error)
	// ExpireDomainCache pulls ExpiresAt back to at without touching signals.
	ExpireDomainCache(ctx context.Context, domain string, at time.Time) error
	// DeleteDomainCacheBefore removes entries that expired before cutoff.
	DeleteDomainCacheBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RuleStore persists blacklist and content-type rules.
type RuleStore interface {
	ListBlacklistRules(ctx context.Context, activeOnly bool) ([]model.BlacklistRule, error)
	UpsertBlacklistRule(ctx context.Context, r model.BlacklistRule) error
	// ListContentTypeRules returns rules ordered by domain, priority and ID.
	ListContentTypeRules(ctx context.Context, activeOnly bool) ([]model.ContentTypeRule, error)
	// UpsertContentTypeRule stores r and returns its ID, assigning one when unset.
	UpsertContentTypeRule(ctx context.Context, r model.ContentTypeRule) (string, error)
	// ImportRules replaces rules in bulk and returns the number written.
	ImportRules(ctx context.Context, blacklist []model.BlacklistRule, content []model.ContentTypeRule) (int, error)
}

// StatsStore holds the materialized per-URL statistics.
type StatsStore interface {
	// UpsertURLStats merges s into the stored row and returns what was written.
	UpsertURLStats(ctx context.Context, s model.URLStats) (model.URLStats, error)
	// GetURLStats returns nil when the URL has no stats.
	GetURLStats(ctx context.Context, urlHash string) (*model.URLStats, error)
	// GetDomainStats aggregates the scored URLs of a domain. Rows awaiting a
	// recompute are left out; it returns nil when no scored row remains.
	GetDomainStats(ctx context.Context, domain string) (*model.DomainStats, error)
	// ClearURLScores zeroes every derived score and marks rows pending.
	ClearURLScores(ctx context.Context) (int, error)
	// DeleteURLStatsBefore removes rows last updated before cutoff.
	DeleteURLStatsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the full persistence interface of the trust engine.
type Store interface {
	RatingStore
	DomainCacheStore
	RuleStore
	StatsStore

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// prepareRating fills defaults and validates a rating before insert.
func prepareRating(r *model.Rating, now time.Time) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if !model.ValidScore(r.Score) {
		return errInvalidScore(r.Score)
	}
	if r.URLHash == "" {
		return errMissingHash
	}
	return nil
}

// summarizeDomain folds the SQL aggregate row of a domain into DomainStats.
// weightedRating is Σ(average_rating * rating_count).
func summarizeDomain(ds *model.DomainStats, weightedRating float64) {
	if ds.RatingCount > 0 {
		ds.AverageRating = round2(weightedRating / float64(ds.RatingCount))
	}
	ds.AverageDomainScore = round2(ds.AverageDomainScore)
	ds.AverageCommunityScore = round2(ds.AverageCommunityScore)
	ds.AverageFinalScore = round2(ds.AverageFinalScore)
}
