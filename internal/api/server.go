// Package api is the HTTP adapter over the trust engine service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/aggregate"
	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/service"
)

const maxBodyBytes = 64 << 10

// Service is the part of service.Service the handlers call.
type Service interface {
	SubmitRating(ctx context.Context, in service.RatingInput) (string, error)
	GetURLStats(ctx context.Context, urlHash string) (*model.URLStats, error)
	GetDomainStats(ctx context.Context, domain string) (*model.DomainStats, error)
	RequestRefresh(domain string) (string, bool, error)
}

// Trigger starts a manual aggregation pass in the background.
type Trigger interface {
	TriggerAsync(ctx context.Context) error
}

// Server serves the public routes.
type Server struct {
	svc     Service
	trigger Trigger
	origins []string
	base    context.Context
	log     *zap.Logger
}

// New creates a Server. trigger may be nil, which disables POST /v1/aggregate.
func New(svc Service, trigger Trigger, allowedOrigins []string) *Server {
	return &Server{
		svc:     svc,
		trigger: trigger,
		origins: allowedOrigins,
		base:    context.Background(),
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// WithBaseContext sets the context manual passes run under. Passes outlive
// the request that started them and stop when ctx is done.
func (s *Server) WithBaseContext(ctx context.Context) *Server {
	s.base = ctx
	return s
}

// Handler returns the router with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ratings", s.handleSubmitRating)
		r.Get("/stats/urls/{hash}", s.handleURLStats)
		r.Get("/stats/domains/{domain}", s.handleDomainStats)
		r.Post("/domains/{domain}/refresh", s.handleRefresh)
		r.Post("/aggregate", s.handleAggregate)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var in service.RatingInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.svc.SubmitRating(r.Context(), in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleURLStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetURLStats(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "no stats for url")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDomainStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetDomainStats(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, "no stats for domain")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	domain, queued, err := s.svc.RequestRefresh(chi.URLParam(r, "domain"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"domain": domain,
		"queued": queued,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregation is not enabled")
		return
	}
	err := s.trigger.TriggerAsync(s.base)
	if errors.Is(err, aggregate.ErrPassInFlight) {
		writeError(w, http.StatusConflict, "aggregation pass already running")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// fail maps validation errors to 400 and everything else to 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": ve.Error(),
			"field": ve.Field,
		})
		return
	}
	s.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
