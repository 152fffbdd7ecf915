// Package ws exposes the portal over HTTP: a small JSON API for creating
// sessions and a websocket endpoint that speaks the wire protocol. The
// package holds no game state of its own; every frame is decoded and handed
// to the session it belongs to.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/platform/timeouts"
	"github.com/pixellator/wsz6/internal/portal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering belongs to the deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server hosts the portal's HTTP surface.
type Server struct {
	addr       string
	registry   *portal.Registry
	httpServer *http.Server
}

// NewServer builds a server around a session registry.
func NewServer(addr string, registry *portal.Registry) *Server {
	s := &Server{addr: addr, registry: registry}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s
}

// Handler returns the route table. Exposed separately so tests can mount it
// on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /ws/play/{session}", s.handlePlay)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe runs the HTTP server until the context ends. On
// cancellation it performs a bounded shutdown so in-flight requests are
// drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	zap.L().Info("portal listening", zap.String("addr", s.addr))
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Slug string `json:"slug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	slug := strings.TrimSpace(payload.Slug)
	if slug == "" {
		http.Error(w, "slug is required", http.StatusBadRequest)
		return
	}

	sess, err := s.registry.Create(r.Context(), slug)
	if err != nil {
		if errors.Is(err, formulation.ErrUnknownGame) {
			http.Error(w, "unknown game: "+slug, http.StatusNotFound)
			return
		}
		zap.L().Error("create session", zap.String("slug", slug), zap.Error(err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID(),
		"slug":       sess.Slug(),
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(r.PathValue("session"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Error("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	serveConn(r.Context(), sess, conn)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
