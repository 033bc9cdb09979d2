package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/store"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

type fakeRequester struct {
	accept  bool
	domains []string
}

func (f *fakeRequester) Request(domain string) bool {
	f.domains = append(f.domains, domain)
	return f.accept
}

func newService(t *testing.T) (*Service, store.Store, *fakeRequester) {
	t.Helper()
	st := newTestStore(t)
	req := &fakeRequester{accept: true}
	svc := New(st, req)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st, req
}

func TestSubmitRating_DerivesHashAndDomain(t *testing.T) {
	ctx := context.Background()
	svc, st, req := newService(t)

	id, err := svc.SubmitRating(ctx, RatingInput{
		URL:     "https://WWW.Example.com/article#top",
		UserRef: "u-1",
		Score:   4,
		Flags:   model.RatingFlags{IsSpam: true},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	hash, err := urlnorm.Hash("https://example.com/article")
	require.NoError(t, err)

	ratings, err := st.RatingsForURL(ctx, hash)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	r := ratings[0]
	assert.Equal(t, id, r.ID)
	assert.Equal(t, "https://example.com/article", r.URL)
	assert.Equal(t, "example.com", r.Domain)
	assert.Equal(t, "u-1", r.UserRef)
	assert.True(t, r.Flags.IsSpam)
	assert.False(t, r.Processed)

	assert.Equal(t, []string{"example.com"}, req.domains)
}

func TestSubmitRating_HashOnly(t *testing.T) {
	ctx := context.Background()
	svc, st, req := newService(t)

	_, err := svc.SubmitRating(ctx, RatingInput{URLHash: "abc", Domain: "Example.COM.", Score: 5})
	require.NoError(t, err)

	ratings, err := st.RatingsForURL(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	assert.Equal(t, "example.com", ratings[0].Domain)
	assert.Equal(t, []string{"example.com"}, req.domains)
}

func TestSubmitRating_NoDomainSkipsRefresh(t *testing.T) {
	svc, _, req := newService(t)
	_, err := svc.SubmitRating(context.Background(), RatingInput{URLHash: "abc", Score: 3})
	require.NoError(t, err)
	assert.Empty(t, req.domains)
}

func TestSubmitRating_RefreshQueueFullStillSucceeds(t *testing.T) {
	svc, _, req := newService(t)
	req.accept = false
	id, err := svc.SubmitRating(context.Background(), RatingInput{URLHash: "abc", Domain: "example.com", Score: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestSubmitRating_NilRefresher(t *testing.T) {
	svc := New(newTestStore(t), nil)
	_, err := svc.SubmitRating(context.Background(), RatingInput{URLHash: "abc", Domain: "example.com", Score: 3})
	assert.NoError(t, err)
}

func TestSubmitRating_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    RatingInput
		field string
	}{
		{"score zero", RatingInput{URLHash: "abc", Score: 0}, "score"},
		{"score six", RatingInput{URLHash: "abc", Score: 6}, "score"},
		{"missing url", RatingInput{Score: 3}, "url"},
		{"blank url", RatingInput{URL: "   ", Score: 3}, "url"},
		{"bad scheme", RatingInput{URL: "ftp://example.com/x", Score: 3}, "url"},
		{"hash mismatch", RatingInput{URL: "https://example.com/", URLHash: "abc", Score: 3}, "url_hash"},
		{"hash too long", RatingInput{URLHash: string(make([]byte, 200)), Score: 3}, "url_hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, req := newService(t)
			_, err := svc.SubmitRating(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)

			n, err := st.CountUnprocessed(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n, "rejected ratings are never stored")
			assert.Empty(t, req.domains)
		})
	}
}

func TestSubmitRating_MatchingHashAccepted(t *testing.T) {
	svc, _, _ := newService(t)
	hash, err := urlnorm.Hash("example.com/a")
	require.NoError(t, err)
	_, err = svc.SubmitRating(context.Background(), RatingInput{URL: "https://example.com/a", URLHash: hash, Score: 2})
	assert.NoError(t, err)
}

func TestGetURLStats(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	got, err := svc.GetURLStats(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = st.UpsertURLStats(ctx, model.URLStats{URLHash: "abc", Domain: "example.com", FinalScore: 80, RatingCount: 5})
	require.NoError(t, err)
	got, err = svc.GetURLStats(ctx, " abc ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80.0, got.FinalScore)

	_, err = svc.GetURLStats(ctx, "")
	assert.True(t, IsValidation(err))
}

func TestGetDomainStats(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)

	got, err := svc.GetDomainStats(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = st.UpsertURLStats(ctx, model.URLStats{URLHash: "a", Domain: "example.com", FinalScore: 80, RatingCount: 5, AverageRating: 5})
	require.NoError(t, err)
	_, err = st.UpsertURLStats(ctx, model.URLStats{URLHash: "b", Domain: "example.com", FinalScore: 40, RatingCount: 5, AverageRating: 1})
	require.NoError(t, err)

	got, err = svc.GetDomainStats(ctx, "WWW.EXAMPLE.COM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.URLCount)
	assert.Equal(t, 10, got.RatingCount)
	assert.InDelta(t, 60, got.AverageFinalScore, 1e-9)
	assert.Equal(t, 40.0, got.MinFinalScore)
	assert.Equal(t, 80.0, got.MaxFinalScore)
	assert.InDelta(t, 3, got.AverageRating, 1e-9)

	_, err = svc.GetDomainStats(ctx, "")
	assert.True(t, IsValidation(err))
}

func TestRequestRefresh(t *testing.T) {
	svc, _, req := newService(t)
	d, queued, err := svc.RequestRefresh("Sub.Example.com")
	require.NoError(t, err)
	assert.Equal(t, "sub.example.com", d)
	assert.True(t, queued)
	assert.Equal(t, []string{"sub.example.com"}, req.domains)

	_, _, err = svc.RequestRefresh(" ")
	assert.True(t, IsValidation(err))
}
