// Package service is the narrow contract the trust engine exposes to its
// callers: rating ingestion and read-only stats.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/signals"
	"github.com/sells-group/trustscore/internal/store"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

const maxURLHashLen = 128

// ValidationError is a rejected rating input. It is the only failure
// surfaced to ingestion callers.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RatingInput is a rating as submitted by a client. Either URL or URLHash
// must be set; Domain is derived from URL when empty.
type RatingInput struct {
	URL     string            `json:"url,omitempty"`
	URLHash string            `json:"url_hash,omitempty"`
	Domain  string            `json:"domain,omitempty"`
	UserRef string            `json:"user_ref"`
	Score   int               `json:"score"`
	Flags   model.RatingFlags `json:"flags"`
}

// Store is the subset of store.Store the service reads and writes.
type Store interface {
	store.RatingStore
	store.StatsStore
}

// Service accepts ratings and serves the materialized stats.
type Service struct {
	store     Store
	refresher signals.Requester
	log       *zap.Logger
	now       func() time.Time
}

// New creates a Service. refresher may be nil, in which case ingestion
// never requests signal refreshes.
func New(st Store, refresher signals.Requester) *Service {
	return &Service{
		store:     st,
		refresher: refresher,
		log:       zap.L().With(zap.String("component", "service")),
		now:       time.Now,
	}
}

// SubmitRating validates in, appends it and asks for a background refresh
// of the domain's signals. A refresh that cannot be queued is ignored.
func (s *Service) SubmitRating(ctx context.Context, in RatingInput) (string, error) {
	r, err := s.prepare(in)
	if err != nil {
		return "", err
	}

	id, err := s.store.AppendRating(ctx, r)
	if err != nil {
		return "", eris.Wrap(err, "service: append rating")
	}

	if r.Domain != "" && s.refresher != nil {
		if !s.refresher.Request(r.Domain) {
			s.log.Debug("signal refresh not queued", zap.String("domain", r.Domain))
		}
	}
	return id, nil
}

func (s *Service) prepare(in RatingInput) (*model.Rating, error) {
	if !model.ValidScore(in.Score) {
		return nil, invalid("score", fmt.Sprintf("must be between %d and %d", model.MinRatingScore, model.MaxRatingScore))
	}

	rawURL := strings.TrimSpace(in.URL)
	hash := strings.TrimSpace(in.URLHash)
	if rawURL == "" && hash == "" {
		return nil, invalid("url", "url or url_hash is required")
	}

	r := &model.Rating{
		URLHash:   hash,
		UserRef:   strings.TrimSpace(in.UserRef),
		Score:     in.Score,
		Flags:     in.Flags,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	if rawURL != "" {
		normalized, err := urlnorm.URL(rawURL)
		if err != nil {
			return nil, invalid("url", err.Error())
		}
		r.URL = normalized
		derived, err := urlnorm.Hash(normalized)
		if err != nil {
			return nil, invalid("url", err.Error())
		}
		if hash != "" && !strings.EqualFold(hash, derived) {
			return nil, invalid("url_hash", "does not match url")
		}
		r.URLHash = derived
	}
	if len(r.URLHash) > maxURLHashLen {
		return nil, invalid("url_hash", "too long")
	}

	switch {
	case strings.TrimSpace(in.Domain) != "":
		d, err := urlnorm.Domain(in.Domain)
		if err != nil {
			return nil, invalid("domain", err.Error())
		}
		r.Domain = d
	case r.URL != "":
		d, err := urlnorm.Domain(r.URL)
		if err != nil {
			return nil, invalid("domain", err.Error())
		}
		r.Domain = d
	}
	return r, nil
}

// GetURLStats returns the stats of one URL, or nil when it has none yet.
func (s *Service) GetURLStats(ctx context.Context, urlHash string) (*model.URLStats, error) {
	urlHash = strings.TrimSpace(urlHash)
	if urlHash == "" {
		return nil, invalid("url_hash", "required")
	}
	st, err := s.store.GetURLStats(ctx, urlHash)
	return st, eris.Wrap(err, "service: get url stats")
}

// GetDomainStats returns the aggregate over all URLs of a domain, or nil.
func (s *Service) GetDomainStats(ctx context.Context, domain string) (*model.DomainStats, error) {
	d, err := urlnorm.Domain(domain)
	if err != nil {
		return nil, invalid("domain", err.Error())
	}
	st, err := s.store.GetDomainStats(ctx, d)
	return st, eris.Wrap(err, "service: get domain stats")
}

// RequestRefresh queues a background signal refresh for domain. It returns
// the normalized domain and whether the request was queued.
func (s *Service) RequestRefresh(domain string) (string, bool, error) {
	d, err := urlnorm.Domain(domain)
	if err != nil {
		return "", false, invalid("domain", err.Error())
	}
	if s.refresher == nil {
		return d, false, nil
	}
	return d, s.refresher.Request(d), nil
}
