// Package registry implements the process-wide Session Registry: the
// only process-wide mutable state in the server besides the adapter
// logger. create_session returns within ~100ms because it only allocates
// the id, registers the session, and hands the actual spawn/initialize/
// launch orchestration to a goroutine.
package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ctagard/debugger-bridge/internal/adapters"
	"github.com/ctagard/debugger-bridge/internal/apperrors"
	"github.com/ctagard/debugger-bridge/internal/session"
	"github.com/ctagard/debugger-bridge/pkg/types"
)

// Registry is a concurrent map of session id to *session.Session, with a
// background sweep that terminates sessions that have outlived
// sessionTimeout.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	adapters       *adapters.Registry
	maxSessions    int
	sessionTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	logger *log.Logger
}

// New creates a registry backed by the given adapter registry.
func New(adapterRegistry *adapters.Registry, maxSessions int, sessionTimeout time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		sessions:       make(map[string]*session.Session),
		adapters:       adapterRegistry,
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
	}
	go r.sweepLoop()
	return r
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpired()
		}
	}
}

func (r *Registry) sweepExpired() {
	r.mu.RLock()
	expired := make([]*session.Session, 0)
	now := time.Now()
	for _, s := range r.sessions {
		if now.Sub(s.CreatedAt) > r.sessionTimeout {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range expired {
		r.logger.Printf("registry: session %s exceeded timeout, disconnecting", s.ID)
		_ = s.Disconnect()
		r.Remove(s.ID)
	}
}

// CreateSession allocates a session id, registers the session in
// Initializing state, and starts its async orchestration. It returns the
// session id immediately; callers should expect it well within 100ms.
func (r *Registry) CreateSession(language types.Language, program string, args []string, cwd string, stopOnEntry bool) (string, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return "", apperrors.New(apperrors.KindInvalidState, "maximum number of sessions (%d) reached", r.maxSessions)
	}
	adapter, err := r.adapters.Get(language)
	if err != nil {
		r.mu.Unlock()
		return "", apperrors.InvalidParam("language", err.Error())
	}

	s := session.New(language, program, args, cwd, stopOnEntry, r.logger)
	r.sessions[s.ID] = s
	r.mu.Unlock()

	go s.Run(r.ctx, adapter)

	return s.ID, nil
}

// Get returns the session for id, or NotFound.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NotFound(id)
	}
	return s, nil
}

// Remove drops id from the registry. Called by debugger_disconnect
// (whether or not the DAP disconnect succeeded) and by the expiry sweep.
// A session that latches Terminated/Failed on its own is not removed; it
// stays registered until one of those two paths drops it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// List returns every currently registered session, backing the
// debugger://sessions resource.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Shutdown stops the sweep loop and disconnects every session; called at
// server shutdown.
func (r *Registry) Shutdown() {
	r.cancel()
	r.mu.RLock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		_ = s.Disconnect()
	}
}
