// Package server exposes the forward pass over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"checkerminer/internal/health"
	"checkerminer/internal/logging"
	"checkerminer/internal/store"
	"checkerminer/internal/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// maxQueryIDs bounds a single forward request.
const maxQueryIDs = 256

// Forwarder scores a batch of product ids.
type Forwarder interface {
	Forward(ctx context.Context, query []string) []*float64
}

// PredictionLookup returns a cached score.
type PredictionLookup interface {
	Get(productID string) (float64, bool)
}

// History returns the latest stored prediction.
type History interface {
	Latest(ctx context.Context, productID string) (*store.Prediction, error)
}

// Config configures the HTTP ingress.
type Config struct {
	RateLimit       int // requests per minute per IP, 0 disables
	ShutdownTimeout time.Duration
	Health          *health.Manager // nil serves liveness with no component checks
}

// Server wires the HTTP routes.
type Server struct {
	forwarder Forwarder
	cache     PredictionLookup
	history   History
	cfg       Config
	logger    *zap.Logger
	router    chi.Router
}

// ForwardRequest is the POST /forward body.
type ForwardRequest struct {
	Query []string `json:"query"`
}

// ForwardResponse mirrors the request order; null marks an unscored product.
type ForwardResponse struct {
	RequestID string     `json:"request_id"`
	Response  []*float64 `json:"response"`
}

// PredictionResponse is the GET /predictions/{id} body.
type PredictionResponse struct {
	ProductID  string            `json:"product_id"`
	Score      float64           `json:"score"`
	Source     string            `json:"source"`
	Prediction *store.Prediction `json:"prediction,omitempty"`
}

// New builds a server. cache and history may be nil; a nil logger logs nothing.
func New(fwd Forwarder, cache PredictionLookup, history History, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Health == nil {
		cfg.Health = health.NewManager(version.Current())
	}
	s := &Server{
		forwarder: fwd,
		cache:     cache,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", s.cfg.Health.ServeHealth)
	r.Get("/readyz", s.cfg.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit, time.Minute))
		}
		r.Post("/forward", s.handleForward)
		r.Get("/predictions/{id}", s.handlePrediction)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	logging.Server("shutting down (timeout %v)", s.cfg.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if len(req.Query) > maxQueryIDs {
		writeError(w, http.StatusBadRequest, "too_many_ids", fmt.Sprintf("at most %d ids per request", maxQueryIDs))
		return
	}

	preds := s.forwarder.Forward(r.Context(), req.Query)
	if preds == nil {
		preds = []*float64{}
	}
	writeJSON(w, http.StatusOK, ForwardResponse{
		RequestID: RequestIDFrom(r.Context()),
		Response:  preds,
	})
}

// handlePrediction reports the score /forward would return now: the cached
// score first, then the latest stored one. The stored record is attached only
// when it matches the reported score.
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		latest    *store.Prediction
		lookupErr error
	)
	if s.history != nil {
		latest, lookupErr = s.history.Latest(r.Context(), id)
		if lookupErr != nil {
			logging.ServerWarn("prediction lookup failed for %s: %v", id, lookupErr)
			latest = nil
		}
	}

	if s.cache != nil {
		if score, ok := s.cache.Get(id); ok {
			resp := PredictionResponse{ProductID: id, Score: score, Source: "cache"}
			if latest != nil && latest.Score == score {
				resp.Source = latest.Source
				resp.Prediction = latest
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	switch {
	case latest != nil:
		writeJSON(w, http.StatusOK, PredictionResponse{ProductID: id, Score: latest.Score, Source: latest.Source, Prediction: latest})
	case lookupErr != nil:
		writeError(w, http.StatusInternalServerError, "lookup_failed", "prediction lookup failed")
	default:
		writeError(w, http.StatusNotFound, "not_found", "no prediction for "+id)
	}
}

type ctxKey struct{}

// RequestIDFrom returns the request id stored by the request id middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, try again later")
		}),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
