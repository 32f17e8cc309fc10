// ABOUTME: Registry of live transport sessions keyed by session key.
// ABOUTME: Registering a duplicate key force-closes the previous session.

package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrNoActiveSession is returned when dispatch resolution finds no session
// to deliver to.
var ErrNoActiveSession = errors.New("no active session")

// RegistryConfig holds configuration for creating a Registry.
type RegistryConfig struct {
	Logger *slog.Logger

	// StrictRouting disables the fallback to an arbitrary live session when
	// the requested key has no match.
	StrictRouting bool
}

// Registry tracks live sessions. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	strict bool
	logger *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		strict:   cfg.StrictRouting,
		logger:   logger.With("component", "session-registry"),
	}
}

// Register adds a session under its key. If a session with the same key is
// already registered it is removed and closed first, so a reconnecting
// caller always ends up with exactly one live channel.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	old := r.sessions[s.Key()]
	r.sessions[s.Key()] = s
	r.mu.Unlock()

	if old != nil {
		r.logger.Warn("replacing existing session", "session_key", s.Key())
		// Close outside the lock: the old session's disconnect callback may
		// call back into Evict.
		old.Close()
	}

	r.logger.Info("session registered", "session_key", s.Key())
}

// Lookup returns the session registered under key, if any.
func (r *Registry) Lookup(key string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// ResolveForDispatch finds the session an inbound message should be
// delivered to. An exact key match always wins. When the key has no match
// and strict routing is off, any live session is returned instead; this
// keeps single-caller setups working across reconnects where the caller
// holds a stale key.
func (r *Registry) ResolveForDispatch(key string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	if r.strict {
		return nil, ErrNoActiveSession
	}
	for _, s := range r.sessions {
		r.logger.Warn("session key not found, falling back to live session",
			"requested_key", key,
			"fallback_key", s.Key())
		return s, nil
	}
	return nil, ErrNoActiveSession
}

// Evict removes s from the registry. It is a no-op if the key is absent or
// is held by a different session, so a stale disconnect callback can never
// evict a replacement that registered after it.
func (r *Registry) Evict(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.Key()]
	if !ok || current != s {
		return
	}
	delete(r.sessions, s.Key())
	r.logger.Info("session evicted", "session_key", s.Key())
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Keys returns the keys of all live sessions, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}

// CloseAll closes and removes every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
