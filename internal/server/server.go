// Package server exposes tutor sessions over HTTP, server-sent events and
// websockets.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/export"
	"github.com/example/sketchtutor/internal/relay"
	"github.com/example/sketchtutor/internal/render"
	"github.com/example/sketchtutor/internal/session"
	"github.com/example/sketchtutor/internal/theme"
)

// Options tunes the HTTP surface.
type Options struct {
	// AllowOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS.
	AllowOrigin string
	Theme       *theme.Theme
	Cards       render.CardOptions
	PDF         export.Options
	JPEGQuality int
}

// DefaultOptions allows any origin and uses the default theme.
func DefaultOptions() Options {
	return Options{
		AllowOrigin: "*",
		Theme:       theme.Default(),
		Cards:       render.DefaultCardOptions(),
		PDF:         export.DefaultOptions(),
		JPEGQuality: 85,
	}
}

// Server routes requests to sessions held by a Manager.
type Server struct {
	opts     Options
	sessions *session.Manager
	relay    relay.Streamer
	log      *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New builds a server. st answers stateless queries; sessions use the
// streamer they were created with.
func New(sessions *session.Manager, st relay.Streamer, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Theme == nil {
		opts.Theme = theme.Default()
	}
	s := &Server{
		opts:     opts,
		sessions: sessions,
		relay:    st,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /query", s.handleQuery)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSessionState))
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/ws", s.withSession(s.handleSocket))
	s.mux.HandleFunc("GET /api/sessions/{id}/strokes", s.withSession(s.handleGetStrokes))
	s.mux.HandleFunc("PUT /api/sessions/{id}/strokes", s.withSession(s.handlePutStrokes))
	s.mux.HandleFunc("GET /api/sessions/{id}/overlays", s.withSession(s.handleOverlays))
	s.mux.HandleFunc("GET /api/sessions/{id}/image", s.withSession(s.handleImage))
	s.mux.HandleFunc("GET /api/sessions/{id}/export.pdf", s.withSession(s.handleExportPDF))
	s.mux.HandleFunc("POST /api/sessions/{id}/query", s.withSession(s.handleSessionQuery))
}

// Handler returns the routed handler wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.mux))
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully and closes every session.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(l) }()
	s.log.Info("listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errc:
		s.sessions.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.sessions.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.opts.AllowOrigin == "*" || r.Header.Get("Origin") == "" {
		return true
	}
	return r.Header.Get("Origin") == s.opts.AllowOrigin
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AllowOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.opts.AllowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer cannot be hijacked")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	}
	return http.StatusBadRequest
}
