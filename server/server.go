// Package server is the reference histsync sync server. It serves the
// record API the client package speaks, backed by a store.Store.
package server

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/version"
)

const (
	// ShutdownTimeout bounds graceful shutdown after the context ends.
	ShutdownTimeout = 10 * time.Second

	// DefaultMaxPage caps count on /api/v0/record/next.
	DefaultMaxPage uint64 = 1000

	readHeaderTimeout = 10 * time.Second
)

// Records is the storage the server exposes.
type Records interface {
	Status(ctx context.Context) (record.Status, error)
	Next(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error)
	PushBatch(ctx context.Context, records []record.Record) error
}

// Server serves the sync API.
type Server struct {
	store   Records
	tokens  [][]byte
	limiter *rate.Limiter
	maxPage uint64
	log     *zap.SugaredLogger
}

// Option configures a Server.
type Option func(*Server)

// WithTokens requires every request to carry one of tokens. No tokens
// means the server is open.
func WithTokens(tokens []string) Option {
	return func(s *Server) {
		for _, t := range tokens {
			if t != "" {
				s.tokens = append(s.tokens, []byte(t))
			}
		}
	}
}

// WithRateLimit limits the whole server to rps requests per second with
// the given burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxPage caps how many records one next request returns.
func WithMaxPage(n uint64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPage = n
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a server over store.
func New(store Records, opts ...Option) *Server {
	s := &Server{
		store:   store,
		maxPage: DefaultMaxPage,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log).With(logger.FieldComponent, "server")
	return s
}

// Handler returns the full middleware-wrapped handler: the record API
// behind auth and rate limiting, plus Prometheus metrics on /metrics.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v0/record", s.HandleStatus)
	api.HandleFunc("POST /api/v0/record", s.HandlePush)
	api.HandleFunc("GET /api/v0/record/next", s.HandleNext)

	root := http.NewServeMux()
	root.Handle("/api/", s.withRateLimit(s.withAuth(api)))
	root.Handle("GET /metrics", promhttp.Handler())

	// Outermost first: every response carries the version, even rejections
	return s.withVersion(s.withRequestLog(root))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Sync server listening",
			logger.FieldAddress, ln.Addr().String(),
			"auth", len(s.tokens) > 0,
			"rate_limited", s.limiter != nil,
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "sync server failed")
	case <-ctx.Done():
	}

	s.log.Infow("Shutting down sync server", "timeout", ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "sync server shutdown")
	}
	return nil
}

func (s *Server) withVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(version.Header, version.Protocol)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := logger.WithRequestID(r.Context(), shortID(requestID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)

		start := time.Now()
		next.ServeHTTP(rec, req)
		elapsed := time.Since(start)

		// ServeMux records the matched pattern on the request it dispatched
		route := routeLabel(req.Pattern)
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		logger.FromContext(ctx, s.log).Debugw("Request served",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, elapsed.Milliseconds(),
		)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokens) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Token ")
		if !ok || !s.validToken([]byte(provided)) {
			logger.FromContext(r.Context(), s.log).Warnw("Rejected unauthenticated request",
				logger.FieldPath, r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "Missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(provided []byte) bool {
	valid := 0
	for _, t := range s.tokens {
		valid |= subtle.ConstantTimeCompare(provided, t)
	}
	return valid == 1
}
