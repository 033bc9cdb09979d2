package aggregate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/store"
)

// SweepReport counts rows removed by one retention sweep.
type SweepReport struct {
	Ratings      int `json:"ratings"`
	CacheEntries int `json:"cache_entries"`
	Stats        int `json:"stats"`
}

// Sweeper deletes data past its retention window. Unprocessed ratings are
// never deleted.
type Sweeper struct {
	store store.Store
	cfg   config.RetentionConfig
	now   func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(st store.Store, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{store: st, cfg: cfg, now: time.Now}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Sweep runs one retention pass. A window of zero days disables that part.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := s.now().UTC()
	var err error

	if s.cfg.RatingDays > 0 {
		if rep.Ratings, err = s.store.DeleteRatingsBefore(ctx, now.Add(-days(s.cfg.RatingDays))); err != nil {
			return rep, eris.Wrap(err, "aggregate: sweep ratings")
		}
	}
	if s.cfg.CacheDays > 0 {
		if rep.CacheEntries, err = s.store.DeleteDomainCacheBefore(ctx, now.Add(-days(s.cfg.CacheDays))); err != nil {
			return rep, eris.Wrap(err, "aggregate: sweep domain cache")
		}
	}
	if s.cfg.StatsDays > 0 {
		if rep.Stats, err = s.store.DeleteURLStatsBefore(ctx, now.Add(-days(s.cfg.StatsDays))); err != nil {
			return rep, eris.Wrap(err, "aggregate: sweep url stats")
		}
	}

	zap.L().Info("retention sweep complete",
		zap.Int("ratings", rep.Ratings),
		zap.Int("cache_entries", rep.CacheEntries),
		zap.Int("stats", rep.Stats),
	)
	return rep, nil
}

// Run sweeps every SweepIntervalSecs until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SweepIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				zap.L().Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}
