// Package aggregate turns unprocessed ratings into per-URL trust statistics
// on a schedule, and applies retention to the stored data.
package aggregate

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trustscore/internal/blacklist"
	"github.com/sells-group/trustscore/internal/classify"
	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/scorer"
	"github.com/sells-group/trustscore/internal/signals"
	"github.com/sells-group/trustscore/internal/store"
)

// Options bound the size and parallelism of a pass.
type Options struct {
	MaxURLsPerRun int
	ChunkSize     int
	Concurrency   int
	// RefreshStale requests a background signal refresh for domains
	// without a fresh cache entry.
	RefreshStale bool
	// MarkTimeout bounds marking ratings processed after the pass context
	// is cancelled.
	MarkTimeout time.Duration
}

// OptionsFrom maps the scheduler config section.
func OptionsFrom(c config.SchedulerConfig) Options {
	return Options{
		MaxURLsPerRun: c.MaxURLsPerRun,
		ChunkSize:     c.ChunkSize,
		Concurrency:   c.Concurrency,
		RefreshStale:  c.RefreshStaleDomains,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxURLsPerRun < 1 {
		o.MaxURLsPerRun = 5000
	}
	if o.ChunkSize < 1 {
		o.ChunkSize = 250
	}
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.MarkTimeout <= 0 {
		o.MarkTimeout = 30 * time.Second
	}
	return o
}

// Aggregator runs aggregation passes over the rating store.
type Aggregator struct {
	store     store.Store
	cache     *signals.Cache
	refresher signals.Requester
	scoring   config.ScoringConfig
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

// New creates an Aggregator. refresher may be nil.
func New(st store.Store, cache *signals.Cache, refresher signals.Requester, scoring config.ScoringConfig, opts Options) *Aggregator {
	return &Aggregator{
		store:     st,
		cache:     cache,
		refresher: refresher,
		scoring:   scoring,
		opts:      opts.withDefaults(),
		log:       zap.L().With(zap.String("component", "aggregator")),
		now:       time.Now,
	}
}

type ruleSet struct {
	blacklist  *blacklist.Matcher
	classifier *classify.Classifier
}

type urlResult struct {
	outcome   Outcome
	ratingIDs []string
}

// RunPass aggregates every URL with unprocessed ratings, up to
// MaxURLsPerRun. A failing URL is skipped and keeps its ratings
// unprocessed; it never aborts the pass. An error is returned only when the
// pass could not start.
func (a *Aggregator) RunPass(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{StartedAt: a.clock()}

	hashes, err := a.store.UnprocessedURLHashes(ctx, a.opts.MaxURLsPerRun)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: snapshot unprocessed urls")
	}
	if len(hashes) == 0 {
		report.FinishedAt = a.clock()
		return report, nil
	}

	rules, err := a.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]urlResult, len(hashes))
	var requested sync.Map

	for start := 0; start < len(hashes); start += a.opts.ChunkSize {
		end := min(start+a.opts.ChunkSize, len(hashes))

		var g errgroup.Group
		g.SetLimit(a.opts.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = a.processURL(ctx, rules, hashes[i], &requested)
				return nil
			})
		}
		_ = g.Wait()

		a.log.Debug("aggregation chunk done",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(hashes)),
		)
	}
	report.Cancelled = ctx.Err() != nil

	// Mark with a detached context so a shutdown mid-pass still records the
	// URLs that were already persisted.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.MarkTimeout)
	defer cancel()
	for i := range results {
		res := &results[i]
		if res.outcome.Status != OutcomeSuccess {
			continue
		}
		n, err := a.store.MarkProcessed(markCtx, res.outcome.URLHash, res.ratingIDs)
		if err != nil {
			a.log.Error("mark processed failed",
				zap.String("url_hash", res.outcome.URLHash),
				zap.Error(err),
			)
			res.outcome.Status = OutcomeSkipped
			res.outcome.Reason = err.Error()
			continue
		}
		report.Marked += n
	}

	report.Outcomes = make([]Outcome, len(results))
	for i, r := range results {
		report.Outcomes[i] = r.outcome
	}
	report.tally()
	report.FinishedAt = a.clock()

	a.log.Info("aggregation pass complete",
		zap.Int("urls", len(hashes)),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("marked", report.Marked),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

func (a *Aggregator) loadRules(ctx context.Context) (*ruleSet, error) {
	bl, err := a.store.ListBlacklistRules(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: load blacklist rules")
	}
	ct, err := a.store.ListContentTypeRules(ctx, true)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: load content rules")
	}
	return &ruleSet{
		blacklist:  blacklist.New(bl, a.scoring.MaxBlacklistPenalty),
		classifier: classify.New(ct),
	}, nil
}

func (a *Aggregator) processURL(ctx context.Context, rules *ruleSet, urlHash string, requested *sync.Map) urlResult {
	res := urlResult{outcome: Outcome{URLHash: urlHash, Status: OutcomeSkipped}}
	skip := func(err error, msg string) urlResult {
		res.outcome.Reason = eris.Wrap(err, msg).Error()
		a.log.Warn("skipping url",
			zap.String("url_hash", urlHash),
			zap.String("stage", msg),
			zap.Error(err),
		)
		return res
	}

	if err := ctx.Err(); err != nil {
		res.outcome.Reason = "pass cancelled"
		return res
	}

	ratings, err := a.store.RatingsForURL(ctx, urlHash)
	if err != nil {
		return skip(err, "load ratings")
	}
	if len(ratings) == 0 {
		res.outcome.Reason = "no ratings"
		return res
	}

	rawURL, domain := resolveTarget(ratings)
	res.outcome.Domain = domain
	res.outcome.Ratings = len(ratings)

	var signal *model.DomainCacheEntry
	if domain != "" {
		lk, err := a.cache.Lookup(ctx, domain)
		if err != nil {
			return skip(err, "lookup domain signals")
		}
		if lk.Fresh {
			signal = lk.Entry
		} else if a.opts.RefreshStale && a.refresher != nil {
			if _, seen := requested.LoadOrStore(domain, struct{}{}); !seen {
				a.refresher.Request(domain)
			}
		}
	}

	summary := scorer.SummarizeRatings(ratings)
	result := scorer.Compute(a.scoring, scorer.Inputs{
		Ratings:   summary,
		Domain:    domain,
		Signal:    signal,
		Blacklist: rules.blacklist.Check(domain),
		Content:   rules.classifier.Classify(rawURL, domain),
	})

	stats := model.URLStats{
		URLHash:           urlHash,
		URL:               rawURL,
		Domain:            domain,
		DomainScore:       result.DomainScore,
		CommunityScore:    result.CommunityScore,
		FinalScore:        result.FinalScore,
		ContentType:       result.ContentType,
		RatingCount:       summary.Count,
		AverageRating:     round2(summary.Average),
		SpamReports:       summary.SpamReports,
		MisleadingReports: summary.MisleadingReports,
		ScamReports:       summary.ScamReports,
		ProcessingStatus:  result.ProcessingStatus,
		LastUpdated:       a.clock(),
	}
	if _, err := a.store.UpsertURLStats(ctx, stats); err != nil {
		return skip(err, "persist stats")
	}

	res.ratingIDs = make([]string, 0, len(ratings))
	for _, r := range ratings {
		if !r.Processed {
			res.ratingIDs = append(res.ratingIDs, r.ID)
		}
	}
	res.outcome.Status = OutcomeSuccess
	res.outcome.Reason = ""
	res.outcome.FinalScore = result.FinalScore
	return res
}

// resolveTarget picks the most recent non-empty URL and domain among the
// ratings, which are ordered oldest first.
func resolveTarget(ratings []model.Rating) (rawURL, domain string) {
	for i := len(ratings) - 1; i >= 0; i-- {
		if rawURL == "" {
			rawURL = ratings[i].URL
		}
		if domain == "" {
			domain = ratings[i].Domain
		}
		if rawURL != "" && domain != "" {
			break
		}
	}
	return rawURL, domain
}

// RecomputeResult reports what RecomputeAll reset.
type RecomputeResult struct {
	RatingsReset int `json:"ratings_reset"`
	StatsCleared int `json:"stats_cleared"`
}

// RecomputeAll flips every rating back to unprocessed and clears derived
// scores, so the next pass rescores everything under the active config.
func (a *Aggregator) RecomputeAll(ctx context.Context) (RecomputeResult, error) {
	var out RecomputeResult
	var err error
	if out.RatingsReset, err = a.store.ResetProcessed(ctx); err != nil {
		return out, eris.Wrap(err, "aggregate: reset processed")
	}
	if out.StatsCleared, err = a.store.ClearURLScores(ctx); err != nil {
		return out, eris.Wrap(err, "aggregate: clear scores")
	}
	a.log.Info("recompute scheduled",
		zap.Int("ratings_reset", out.RatingsReset),
		zap.Int("stats_cleared", out.StatsCleared),
	)
	return out, nil
}

func (a *Aggregator) clock() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
