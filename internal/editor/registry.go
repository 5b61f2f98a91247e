package editor

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"go.jetify.com/typeid/v2"
	"go.uber.org/zap"
)

const (
	opRegistryGet = "editor.registry.get"

	sessionIDPrefix    = "ses"
	defaultIdleTimeout = 30 * time.Minute
)

var errSessionNotFound = errors.New("editor session not found")

type RegistryConfig struct {
	IdleTimeout time.Duration
	Clock       func() time.Time
	NewID       func() string
	Logger      *zap.Logger
}

// Registry tracks open sessions by id and expires idle ones.
type Registry struct {
	idleTimeout time.Duration
	clock       func() time.Time
	newID       func() string
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(cfg RegistryConfig) *Registry {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return typeid.MustGenerate(sessionIDPrefix).String() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Registry{
		idleTimeout: idle,
		clock:       clock,
		newID:       newID,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a session. cfg.ID and cfg.Clock are filled in by the registry.
func (r *Registry) Create(cfg SessionConfig) (*Session, error) {
	cfg.ID = r.newID()
	cfg.Clock = r.clock
	if cfg.Logger == nil {
		cfg.Logger = r.logger
	}
	session, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()
	r.logger.Info("editor session opened",
		zap.String("session_id", session.ID()),
		zap.String("profile", string(session.Profile())),
		zap.String("user_id", cfg.Principal.UID))
	return session, nil
}

// Get returns the session when principal opened it. Sessions of other users are reported as
// missing.
func (r *Registry) Get(id string, principal auth.Principal) (*Session, error) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || session.Principal().UID != principal.UID {
		return nil, apperr.New(opRegistryGet, "session_not_found", apperr.ErrNotFound, errSessionNotFound)
	}
	return session, nil
}

// Close drops the session. Unknown ids are ignored.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		session.Close()
		r.logger.Info("editor session closed", zap.String("session_id", id))
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the timeout and returns how many it closed. Session
// locks are taken outside r.mu so a slow save never stalls Get or Create.
func (r *Registry) Sweep() int {
	cutoff := r.clock().Add(-r.idleTimeout)

	r.mu.Lock()
	candidates := maps.Clone(r.sessions)
	r.mu.Unlock()

	var idle []string
	for id, session := range candidates {
		if session.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}

	var expired []*Session
	r.mu.Lock()
	for _, id := range idle {
		if session, ok := r.sessions[id]; ok && session == candidates[id] {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("editor sessions expired", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.idleTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
