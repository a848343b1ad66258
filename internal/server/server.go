package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/collect"
	"github.com/jonathan/compass-harvester/internal/config"
	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/server/middleware"
	"github.com/jonathan/compass-harvester/internal/server/ratelimit"
	"github.com/jonathan/compass-harvester/internal/types"
)

// Harvester is the harvest state machine as seen by the API.
type Harvester interface {
	Running() bool
	Status(ctx context.Context) (*harvest.Status, error)
	Start(ctx context.Context, queue []types.WorkQueueEntry, globalIDs *types.IDSet) (*harvest.Summary, error)
	Resume(ctx context.Context) (*harvest.Summary, error)
	Stop(ctx context.Context) error
	Skip()
}

// PlanFunc scans the granted library into a work queue.
type PlanFunc func(ctx context.Context) (*inventory.Result, error)

// Deps are the collaborators the API drives.
type Deps struct {
	Harvester Harvester
	Plan      PlanFunc
	Records   *collect.State
	Broker    *Broker
	Hub       *Hub
	Log       *logrus.Entry
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	deps        Deps
	log         *logrus.Entry
	origins     map[string]bool
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService

	baseCtx context.Context
	runs    sync.WaitGroup
}

var validate = validator.New()

// keepAlive is the comment interval of idle event streams.
const keepAlive = 15 * time.Second

// New creates the server. Authentication is enabled when a JWT secret is
// configured; a configured but unusable secret is an error.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	if deps.Records == nil {
		deps.Records = collect.NewState()
	}

	s := &Server{
		deps:        deps,
		log:         deps.Log,
		origins:     make(map[string]bool, len(cfg.AllowedOrigins)),
		rateLimiter: ratelimit.NewLimiter(ratelimit.FromConfig(cfg.RateLimit)),
		baseCtx:     context.Background(),
	}
	for _, o := range cfg.AllowedOrigins {
		s.origins[o] = true
	}

	jwtCfg := cfg.JWT
	if err := jwtCfg.Ready(); err == nil {
		s.jwtService = NewJWTService(&jwtCfg)
	} else if jwtCfg.Secret != "" {
		return nil, fmt.Errorf("invalid JWT configuration: %w", err)
	} else {
		s.log.Warn("no JWT secret configured, the control API is unauthenticated")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /status", s.protect(s.handleStatus))
	mux.Handle("POST /harvest/start", s.protect(s.handleStart))
	mux.Handle("POST /harvest/resume", s.protect(s.handleResume))
	mux.Handle("POST /harvest/stop", s.protect(s.handleStop))
	mux.Handle("POST /harvest/skip", s.protect(s.handleSkip))
	mux.Handle("GET /items", s.protect(s.handleItems))
	mux.Handle("GET /selection", s.protect(s.handleSelection))
	mux.Handle("POST /selection/{id}", s.protect(s.handleAnswer))
	mux.Handle("GET /events", s.protect(s.handleEvents))

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout: 30 * time.Second,
		// No write timeout: event streams stay open.
		IdleTimeout: 60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// JWT returns the token service, nil when authentication is disabled.
func (s *Server) JWT() *JWTService {
	return s.jwtService
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits for
// runs started through the API. Those runs inherit ctx, so a shutdown aborts
// them with their checkpoint intact.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.log.WithField("addr", ln.Addr().String()).Info("control API listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down control API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Wait()
	s.log.Info("control API stopped")
	return nil
}

// Wait blocks until every run started through the API has returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// withCORS adds CORS headers for allowed origins. An empty allow list accepts
// any origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.origins) == 0:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case s.origins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their request budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
		}
		if !allowed {
			retry := int(info.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			s.log.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"client": extractClientID(r),
			}).Warn("rate limit exceeded")
			s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"retry_after": retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

// extractClientID returns the client IP of r.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode JSON response")
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to its status and writes it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	s.errorResponse(w, status, err.Error())
}

// decodeJSON decodes and validates a request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ErrValidation{Field: verrs[0].Field(), Message: "failed '" + verrs[0].Tag() + "'"}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// launch runs fn in the background with the server's base context and
// publishes its outcome.
func (s *Server) launch(name string, fn func(ctx context.Context) (*harvest.Summary, error)) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		sum, err := fn(s.baseCtx)
		if err != nil {
			s.log.WithError(err).WithField("action", name).Error("harvest run failed")
			s.deps.Hub.Publish(Event{Name: EventError, Data: map[string]string{"error": err.Error()}})
			return
		}
		s.deps.Hub.Publish(Event{Name: EventSummary, Data: sum})
	}()
}
