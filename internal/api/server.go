package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/tracker"
)

// TokenHeader carries the ingest token on mutating requests.
const TokenHeader = "X-Ingest-Token"

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server. Zero values pick the defaults.
type Options struct {
	Addr           string
	Token          string
	AllowedOrigins []string
	RequestTimeout time.Duration
	HistoryLimit   int
	DB             Pinger
	Logger         *log.Logger

	// IngestRate caps round appends per second across all sessions; zero
	// disables the limit.
	IngestRate  float64
	IngestBurst int
}

// Server exposes the tracker over HTTP.
type Server struct {
	tracker      *tracker.Tracker
	opts         Options
	logger       *log.Logger
	errorHandler *ErrorHandler
	startTime    time.Time
	limiter      *rate.Limiter
	httpServer   *http.Server
}

func NewServer(t *tracker.Tracker, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8077"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 90
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("api")
	}
	s := &Server{
		tracker:      t,
		opts:         opts,
		logger:       logger,
		errorHandler: NewErrorHandler(logger),
		startTime:    time.Now(),
	}
	if opts.IngestRate > 0 {
		burst := opts.IngestBurst
		if burst <= 0 {
			burst = int(opts.IngestRate) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.IngestRate), burst)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", TokenHeader},
			ExposedHeaders: []string{"X-Engine-Version", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.With(s.requireToken).Post("/", s.handleCreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.With(s.requireToken).Delete("/", s.handleDeleteSession)

			r.Get("/rounds", s.handleListRounds)
			r.With(s.requireToken, s.limitIngest).Post("/rounds", s.handleAppendRound)
			r.With(s.requireToken).Delete("/rounds", s.handleClearRounds)

			r.Get("/analysis", s.handleAnalysis)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/export.csv", s.handleExportCSV)
			r.Get("/report.txt", s.handleReport)
		})
	})

	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", ln.Addr().String(), "token_required", s.opts.Token != "")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requireToken rejects mutating requests without the configured token.
// An empty token disables the check.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			got := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
				apiErr := NewError(ErrTypeUnauthorized, "missing or invalid "+TokenHeader).
					WithRequestID(middleware.GetReqID(r.Context())).
					Build()
				s.errorHandler.write(w, r, http.StatusUnauthorized, apiErr)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// limitIngest sheds round appends beyond the configured rate with a 429.
func (s *Server) limitIngest(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			apiErr := NewError(ErrTypeRateLimited, "too many rounds submitted").
				WithRequestID(middleware.GetReqID(r.Context())).
				WithContext("limit_per_second", s.opts.IngestRate).
				Build()
			s.errorHandler.write(w, r, http.StatusTooManyRequests, apiErr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		requestID := middleware.GetReqID(r.Context())

		s.logger.Debug("request_start", "request_id", requestID, "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(ww, r)
		s.logger.Info("request_completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", Version)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func qInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
