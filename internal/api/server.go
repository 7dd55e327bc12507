package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/metrics"
	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/query"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds question payloads.
const maxBodyBytes = 1 << 20

var errEmptyQuestion = errors.New("question must not be empty")

// Engine is the part of the query engine the API serves.
type Engine interface {
	Answer(ctx context.Context, question string) (*query.Result, error)
	Retrieve(ctx context.Context, question string) (*query.Retrieval, error)
}

// QueryRequest is the body of POST /query and POST /search.
type QueryRequest struct {
	Question string `json:"question"`
}

// Server represents the HTTP API server
type Server struct {
	engine  Engine
	metrics *metrics.Metrics
	logger  zerolog.Logger
	server  *http.Server

	mu     sync.Mutex
	addr   string
	ready  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics exposes m on GET /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new API server
func NewServer(addr string, engine Engine, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: zerolog.Nop(),
		addr:   addr,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/query", s.query).Methods(http.MethodPost)
	r.HandleFunc("/search", s.search).Methods(http.MethodPost)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path))
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.requestID(s.logRequests(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the address the server listens on. After Ready is closed it
// is the resolved address, which matters when port 0 was requested.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Ready is closed once the listener is open.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start starts the HTTP server and blocks until the server is shut down
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()
	s.logger.Info().Str("addr", s.Addr()).Msg("Server listening")
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

// Helper functions for HTTP responses
func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	q, err := readQuestion(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Answer(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q, err := readQuestion(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.engine.Retrieve(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Query failed")
	}
	s.respondError(w, status, err)
}

// statusFor maps query errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, query.ErrIndexLoad):
		return http.StatusServiceUnavailable
	case errors.Is(err, query.ErrEmbedding),
		errors.Is(err, query.ErrChat),
		errors.Is(err, query.ErrEmptyResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func readQuestion(r *http.Request) (string, error) {
	var req QueryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return "", errEmptyQuestion
	}
	return q, nil
}
