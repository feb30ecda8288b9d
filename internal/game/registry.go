package game

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// TokenChecker reports whether an instructor token is currently valid.
// The auth registry implements it.
type TokenChecker interface {
	IsValid(token string) bool
}

// Registry is the sole authority for live sessions. It maps session code to
// session and enforces at most one live session per instructor token:
// creating a new game ends and discards the creator's previous one.
//
// The registry mutex guards only the maps; each session serializes its own
// mutations, so operations on different codes proceed independently.
type Registry struct {
	tokens    TokenChecker
	codes     *CodeGenerator
	broadcast Broadcaster
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byOwner  map[string]string // instructor token -> code
}

// NewRegistry creates an empty session registry.
func NewRegistry(tokens TokenChecker, codes *CodeGenerator, b Broadcaster, logger *zap.Logger) *Registry {
	if b == nil {
		b = NopBroadcaster{}
	}
	return &Registry{
		tokens:    tokens,
		codes:     codes,
		broadcast: b,
		logger:    logger,
		sessions:  make(map[string]*Session),
		byOwner:   make(map[string]string),
	}
}

// Create validates the lesson, allocates a code and stores a new waiting
// session owned by token. Any previous session owned by the same token is
// ended first; its students receive END_GAME.
func (r *Registry) Create(token string, lesson models.Lesson) (string, error) {
	if r.tokens != nil && !r.tokens.IsValid(token) {
		return "", ErrUnauthorized
	}
	if err := lesson.Validate(); err != nil {
		return "", err
	}

	code, err := r.codes.Next()
	if err != nil {
		return "", fmt.Errorf("allocate session code: %w", err)
	}

	session := NewSession(code, token, lesson, r.broadcast)

	r.mu.Lock()
	var replaced *Session
	if oldCode, ok := r.byOwner[token]; ok {
		replaced = r.sessions[oldCode]
		delete(r.sessions, oldCode)
	}
	r.sessions[code] = session
	r.byOwner[token] = code
	r.mu.Unlock()

	if replaced != nil {
		// End after releasing the registry lock so the END_GAME broadcast
		// never runs under it.
		_ = replaced.End()
		r.logger.Info("replaced previous session",
			zap.String("old_code", replaced.Code()), zap.String("code", code))
	}
	r.logger.Info("session created", zap.String("code", code))
	return code, nil
}

// Get returns the session for a code.
func (r *Registry) Get(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	if !ok {
		return nil, ErrNoSuchSession
	}
	return s, nil
}

// GetByOwner returns the session owned by an instructor token.
func (r *Registry) GetByOwner(token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.byOwner[token]
	if !ok {
		return nil, ErrNoSuchSession
	}
	return r.sessions[code], nil
}

// Exists reports whether a code maps to a live session.
func (r *Registry) Exists(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[code]
	return ok
}

// Destroy removes a session from the registry without broadcasting.
// Destroying an unknown code is a no-op.
func (r *Registry) Destroy(code string) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	if ok {
		delete(r.sessions, code)
		if r.byOwner[s.Owner()] == code {
			delete(r.byOwner, s.Owner())
		}
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("session destroyed", zap.String("code", code))
	}
}

// DestroyAllOwnedBy ends and removes every session owned by token. Called on
// logout so revoking a token tears its sessions down with it.
func (r *Registry) DestroyAllOwnedBy(token string) {
	r.mu.Lock()
	var doomed []*Session
	for code, s := range r.sessions {
		if s.Owner() == token {
			doomed = append(doomed, s)
			delete(r.sessions, code)
		}
	}
	delete(r.byOwner, token)
	r.mu.Unlock()

	for _, s := range doomed {
		_ = s.End() // already-ended sessions are fine here
		r.logger.Info("session destroyed on logout", zap.String("code", s.Code()))
	}
}
