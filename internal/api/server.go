package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/crawlerr"
	"github.com/JakeFAU/ehound/internal/export"
	"github.com/JakeFAU/ehound/internal/library"
	"github.com/JakeFAU/ehound/internal/metrics"
)

const defaultRequestTimeout = 10 * time.Minute

// Operator runs the archiver operations exposed over HTTP.
type Operator interface {
	AddBook(ctx context.Context, name *library.BookName, rawURL string) (*library.Book, int, error)
	Refresh(ctx context.Context) (int, error)
	Save() error
	Load() error
	Library() *library.Library
}

// Config tunes the HTTP server.
type Config struct {
	// APIKey, when set, is required in X-API-Key (or ?api_key=) on every /v1 route.
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the archiver.
type Server struct {
	router  chi.Router
	ops     Operator
	library *LibraryHandler
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. m may be nil, in which
// case /metrics is not mounted.
func NewServer(ops Operator, m *metrics.Metrics, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		ops:     ops,
		library: NewLibraryHandler(ops.Library(), logger),
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if m != nil {
		r.Use(m.Middleware)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/refresh", s.refresh)
		r.Post("/state/save", s.saveState)
		r.Post("/state/load", s.loadState)
		r.Route("/books", func(r chi.Router) {
			r.Post("/", s.addBook)
			r.Get("/", s.library.ListBooks)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.library.GetBook)
				r.Post("/seek/{chapter}", s.library.Seek)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addBookRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	var name *library.BookName
	if n := strings.TrimSpace(req.Name); n != "" {
		bn := library.BookName(n)
		name = &bn
	}
	book, count, err := s.ops.AddBook(r.Context(), name, req.URL)
	if err != nil {
		s.fail(w, "add book", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"book":     export.DescribeBook(book),
		"archived": count,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	count, err := s.ops.Refresh(r.Context())
	if err != nil {
		s.fail(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"archived": count})
}

func (s *Server) saveState(w http.ResponseWriter, _ *http.Request) {
	if err := s.ops.Save(); err != nil {
		s.fail(w, "save state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) loadState(w http.ResponseWriter, _ *http.Request) {
	if err := s.ops.Load(); err != nil {
		s.fail(w, "load state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "loaded",
		"books":  s.ops.Library().Len(),
	})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Warn(op+" rejected", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		parseErr   *crawlerr.ParseError
		netErr     *crawlerr.NetworkError
		extractErr *crawlerr.ExtractionError
	)
	switch {
	case errors.Is(err, crawlerr.ErrCorrupted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crawlerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("Request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
