package signals

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, clk *clock) *Cache {
	t.Helper()
	c := NewCache(newTestStore(t), 7*24*time.Hour)
	c.now = clk.now
	return c
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestCache_MissIsNotAnError(t *testing.T) {
	c := newTestCache(t, newClock())
	lk, err := c.Lookup(context.Background(), "unknown.example")
	require.NoError(t, err)
	assert.Nil(t, lk.Entry)
	assert.False(t, lk.Fresh)
}

func TestCache_UpsertThenFresh(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	e, err := c.Upsert(ctx, "Example.com", model.DomainSignals{DomainAgeDays: intPtr(400), ThreatStatus: model.ThreatSafe})
	require.NoError(t, err)
	assert.Equal(t, "example.com", e.Domain)
	assert.Equal(t, clk.t, e.CheckedAt)
	assert.Equal(t, clk.t.Add(7*24*time.Hour), e.ExpiresAt)

	lk, err := c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, lk.Entry)
	assert.True(t, lk.Fresh)
	assert.Equal(t, 400, *lk.Entry.DomainAgeDays)
}

func TestCache_ExpiredEntryIsNeverFresh(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	_, err := c.Upsert(ctx, "example.com", model.DomainSignals{ThreatStatus: model.ThreatSafe})
	require.NoError(t, err)

	clk.advance(7*24*time.Hour - time.Second)
	lk, err := c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, lk.Fresh)

	clk.advance(time.Second)
	lk, err = c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	assert.NotNil(t, lk.Entry)
	assert.False(t, lk.Fresh, "entry at its expiry instant must be stale")
}

func TestCache_MarkStaleKeepsData(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	_, err := c.Upsert(ctx, "example.com", model.DomainSignals{SSLValid: boolPtr(true), ThreatStatus: model.ThreatSafe})
	require.NoError(t, err)
	require.NoError(t, c.MarkStale(ctx, "example.com"))

	lk, err := c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, lk.Entry)
	assert.False(t, lk.Fresh)
	assert.True(t, *lk.Entry.SSLValid)
}

func TestCache_PartialUpsertKeepsKnownSignals(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	_, err := c.Upsert(ctx, "example.com", model.DomainSignals{DomainAgeDays: intPtr(1000), ThreatStatus: model.ThreatSafe})
	require.NoError(t, err)

	clk.advance(2 * 24 * time.Hour)
	e, err := c.Upsert(ctx, "example.com", model.DomainSignals{SSLValid: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, 1000, *e.DomainAgeDays)
	assert.False(t, *e.SSLValid)
	assert.Equal(t, model.ThreatSafe, e.ThreatStatus)
	assert.Equal(t, clk.t, e.CheckedAt)
}

func TestCache_PartialRefreshAfterExpiryDropsOldSignals(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	_, err := c.Upsert(ctx, "example.com", model.DomainSignals{SSLValid: boolPtr(false), ThreatStatus: model.ThreatMalware})
	require.NoError(t, err)

	clk.advance(30 * 24 * time.Hour)
	lk, err := c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	require.False(t, lk.Fresh)

	_, err = c.Upsert(ctx, "example.com", model.DomainSignals{DomainAgeDays: intPtr(4000)})
	require.NoError(t, err)

	lk, err = c.Lookup(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, lk.Entry)
	assert.True(t, lk.Fresh)
	assert.Equal(t, 4000, *lk.Entry.DomainAgeDays)
	assert.Nil(t, lk.Entry.SSLValid)
	assert.Equal(t, model.ThreatUnknown, lk.Entry.ThreatStatus)
}

func TestCache_PartialRefreshAfterMarkStaleDropsOldSignals(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newTestCache(t, clk)

	_, err := c.Upsert(ctx, "example.com", model.DomainSignals{HTTPStatus: intPtr(503), ThreatStatus: model.ThreatPhishing})
	require.NoError(t, err)
	require.NoError(t, c.MarkStale(ctx, "example.com"))

	clk.advance(time.Minute)
	e, err := c.Upsert(ctx, "example.com", model.DomainSignals{SSLValid: boolPtr(true)})
	require.NoError(t, err)
	assert.Nil(t, e.HTTPStatus)
	assert.True(t, *e.SSLValid)
	assert.Equal(t, model.ThreatUnknown, e.ThreatStatus)
}

func TestCache_NewEntryWithoutThreatIsUnknown(t *testing.T) {
	c := newTestCache(t, newClock())
	e, err := c.Upsert(context.Background(), "example.com", model.DomainSignals{})
	require.NoError(t, err)
	assert.Equal(t, model.ThreatUnknown, e.ThreatStatus)
}

func TestCache_EmptyDomain(t *testing.T) {
	c := newTestCache(t, newClock())
	_, err := c.Upsert(context.Background(), " ", model.DomainSignals{})
	assert.Error(t, err)

	lk, err := c.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, lk.Entry)
}

func TestNewCache_DefaultTTL(t *testing.T) {
	c := NewCache(nil, 0)
	assert.Equal(t, DefaultTTL, c.TTL())
}
