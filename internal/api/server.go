package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/khanhnv2901/pagescope/internal/api/middleware"
	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AnalyzeRequest asks for one page to be analyzed. Either URL is set and the
// page is fetched, or HTML is analyzed as if served from Origin with Headers.
type AnalyzeRequest struct {
	URL     string            `json:"url,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Origin  string            `json:"origin,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// PageFetcher retrieves a page for analysis.
type PageFetcher interface {
	Fetch(ctx context.Context, target string) (checker.Page, error)
}

// ResultsService serves saved runs.
type ResultsService interface {
	GetResults(ctx context.Context, id string) ([]byte, error)
}

// ErrResultNotFound is returned by a ResultsService for unknown run IDs.
var ErrResultNotFound = errors.New("result not found")

type Config struct {
	Fetcher      PageFetcher
	Results      ResultsService
	AuthToken    string
	Logger       *zap.Logger
	CORSOrigins  []string // Allowed CORS origins (empty = allow all)
	RateLimit    int      // Requests per second per IP (0 = disabled)
	RateBurst    int      // Burst size for rate limiter
	MaxBodyBytes int
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *rateLimiterMap
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = consts.DefaultMaxBodyBytes
	}
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newRateLimiterMap(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/api/v1/health", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/api/v1/analyze", s.withAuth(http.HandlerFunc(s.handleAnalyze)))
	s.mux.Handle("/api/v1/results/", s.withAuth(http.HandlerFunc(s.handleResults)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}

	// HTML travels JSON-escaped, so allow some headroom over the page cap.
	limit := int64(s.cfg.MaxBodyBytes)*2 + 64*1024
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read request: %w", err))
		return
	}
	if int64(len(raw)) > limit {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return
	}

	var req AnalyzeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	page, status, err := s.pageFor(r.Context(), req)
	if err != nil {
		s.writeError(w, r, status, err)
		return
	}

	log := s.requestLogger(r).Sugar()
	report := checker.AnalyzePage(analysis.NewContext(page.Origin, log), page)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) pageFor(ctx context.Context, req AnalyzeRequest) (checker.Page, int, error) {
	switch {
	case req.URL != "" && req.HTML != "":
		return checker.Page{}, http.StatusBadRequest, errors.New("set either url or html, not both")
	case req.URL != "":
		if s.cfg.Fetcher == nil {
			return checker.Page{}, http.StatusNotImplemented, errors.New("fetching is disabled")
		}
		page, err := s.cfg.Fetcher.Fetch(ctx, req.URL)
		if err != nil {
			if errors.Is(err, serrors.ErrEmptyTarget) || errors.Is(err, serrors.ErrInvalidTarget) {
				return checker.Page{}, http.StatusBadRequest, err
			}
			return checker.Page{}, http.StatusBadGateway, err
		}
		return page, http.StatusOK, nil
	case req.HTML != "":
		origin := req.Origin
		if origin == "" {
			return checker.Page{}, http.StatusBadRequest, errors.New("origin is required with html")
		}
		page := checker.Page{
			Body:    []byte(req.HTML),
			Headers: lowerKeys(req.Headers),
			Origin:  checker.NormalizeTarget(origin),
			Status:  http.StatusOK,
		}
		if len(page.Body) > s.cfg.MaxBodyBytes {
			page.Body = page.Body[:s.cfg.MaxBodyBytes]
			page.Truncated = true
		}
		return page, http.StatusOK, nil
	default:
		return checker.Page{}, http.StatusBadRequest, errors.New("url or html is required")
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Results == nil {
		s.writeError(w, r, http.StatusNotImplemented, errors.New("results are not available"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/results/"), "/")
	if id == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("run id is required"))
		return
	}

	data, err := s.cfg.Results.GetResults(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrResultNotFound) {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := clientIP(r)
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", clientIP))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP uses the first X-Forwarded-For entry when present, without the port.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		ip = strings.TrimSpace(first)
	}
	if idx := strings.LastIndex(ip, ":"); idx > 0 && !strings.HasSuffix(ip, "]") {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		s.cfg.Logger.Info("http_request",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes", lrw.bytesWritten),
		)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter captures the status code and bytes written.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError hides the detail of 5xx errors from clients and logs it instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 && status != http.StatusNotImplemented && status != http.StatusBadGateway {
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger returns the server logger tagged with request ID, method and path.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	logger := s.cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		return logger
	}
	return logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func lowerKeys(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if prev, ok := out[k]; ok {
			v = prev + ", " + v
		}
		out[k] = v
	}
	return out
}

// rateLimiterMap manages per-IP rate limiters with automatic cleanup
type rateLimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiterMap() *rateLimiterMap {
	m := &rateLimiterMap{
		limiters: make(map[string]*ipLimiter),
	}
	go m.cleanupLoop()
	return m
}

func (m *rateLimiterMap) getLimiter(ip string, rps, burst int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if burst <= 0 {
		burst = rps
	}
	l, exists := m.limiters[ip]
	if !exists {
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		m.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// cleanupLoop removes limiters that haven't been used in 5 minutes
func (m *rateLimiterMap) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.prune(time.Now().Add(-5 * time.Minute))
	}
}

func (m *rateLimiterMap) prune(before time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, l := range m.limiters {
		if l.lastSeen.Before(before) {
			delete(m.limiters, ip)
		}
	}
}
