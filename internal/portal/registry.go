// Package portal assembles play-through sessions and routes participant
// traffic to them. A session owns one rule-module instance, one seat table,
// and one engine; the registry maps session identifiers to live sessions so
// the transport layer can stay a thin adapter.
//
// # Message flow
//
// Transports attach a send channel per participant and feed decoded inbound
// frames to Session.Handle. Successful mutations come back asynchronously as
// broadcasts built from engine notifications; rejections go to the requester
// alone as error frames. Bots run inside the session: every state change
// schedules the due bot seats, and their moves travel the same apply path as
// human ones.
package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pixellator/wsz6/internal/bot"
	"github.com/pixellator/wsz6/internal/checkpoint"
	"github.com/pixellator/wsz6/internal/formulation"
	"github.com/pixellator/wsz6/internal/platform/id"
)

// Registry owns the live sessions of one portal process.
type Registry struct {
	loader formulation.Loader
	store  checkpoint.Store

	// BotDelay paces bot moves in sessions created after it is set. It
	// defaults to bot.DefaultDelay; tests set zero for instant moves.
	BotDelay time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry backed by the given rule loader and
// checkpoint store.
func NewRegistry(loader formulation.Loader, store checkpoint.Store) *Registry {
	return &Registry{
		loader:   loader,
		store:    store,
		BotDelay: bot.DefaultDelay,
		sessions: make(map[string]*Session),
	}
}

// Create loads a fresh rule-module instance for slug and assembles a session
// around it. The session identifier doubles as the play-through identifier.
func (r *Registry) Create(ctx context.Context, slug string) (*Session, error) {
	playthroughID, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate playthrough id: %w", err)
	}
	inst, err := r.loader.Load(ctx, slug, playthroughID)
	if err != nil {
		return nil, err
	}

	s := newSession(playthroughID, slug, inst, r.loader, r.store, r.BotDelay)

	r.mu.Lock()
	r.sessions[playthroughID] = s
	r.mu.Unlock()

	zap.L().Info("session created",
		zap.String("playthrough_id", playthroughID), zap.String("slug", slug))
	return s, nil
}

// Get returns the session with the given identifier.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Remove drops a session from the registry and shuts it down.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		s.Close()
		zap.L().Info("session removed", zap.String("playthrough_id", sessionID))
	}
}

// Close shuts down every session. Used at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
