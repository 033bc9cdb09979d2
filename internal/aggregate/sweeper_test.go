package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trustscore/internal/config"
	"github.com/sells-group/trustscore/internal/model"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-100 * 24 * time.Hour)

	oldProcessed, err := st.AppendRating(ctx, &model.Rating{URLHash: "a", Score: 4, CreatedAt: old})
	require.NoError(t, err)
	_, err = st.MarkProcessed(ctx, "a", []string{oldProcessed})
	require.NoError(t, err)
	_, err = st.AppendRating(ctx, &model.Rating{URLHash: "b", Score: 4, CreatedAt: old})
	require.NoError(t, err)
	_, err = st.AppendRating(ctx, &model.Rating{URLHash: "c", Score: 4, CreatedAt: now})
	require.NoError(t, err)

	_, err = st.PutDomainCache(ctx, model.DomainCacheEntry{
		Domain: "old.example", CheckedAt: old, ExpiresAt: old.Add(7 * 24 * time.Hour),
		DomainSignals: model.DomainSignals{ThreatStatus: model.ThreatSafe},
	})
	require.NoError(t, err)
	_, err = st.PutDomainCache(ctx, model.DomainCacheEntry{
		Domain: "new.example", CheckedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour),
		DomainSignals: model.DomainSignals{ThreatStatus: model.ThreatSafe},
	})
	require.NoError(t, err)

	_, err = st.UpsertURLStats(ctx, model.URLStats{URLHash: "a", FinalScore: 60, LastUpdated: old})
	require.NoError(t, err)
	_, err = st.UpsertURLStats(ctx, model.URLStats{URLHash: "c", FinalScore: 60, LastUpdated: now})
	require.NoError(t, err)

	sw := NewSweeper(st, config.RetentionConfig{RatingDays: 30, CacheDays: 30, StatsDays: 30})
	sw.now = func() time.Time { return now }

	rep, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Ratings: 1, CacheEntries: 1, Stats: 1}, rep)

	// The old unprocessed rating survives.
	hashes, err := st.UnprocessedURLHashes(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, hashes)

	e, err := st.GetDomainCache(ctx, "old.example")
	require.NoError(t, err)
	assert.Nil(t, e)
	e, err = st.GetDomainCache(ctx, "new.example")
	require.NoError(t, err)
	assert.NotNil(t, e)

	s, err := st.GetURLStats(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSweeper_ZeroWindowDisables(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	old := time.Now().Add(-1000 * 24 * time.Hour)
	_, err := st.UpsertURLStats(ctx, model.URLStats{URLHash: "a", LastUpdated: old})
	require.NoError(t, err)

	rep, err := NewSweeper(st, config.RetentionConfig{}).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep)

	s, err := st.GetURLStats(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, s)
}
