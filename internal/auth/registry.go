package auth

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/classpulse/backend/pkg/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnknownToken       = errors.New("unknown auth token")
)

// Registry tracks currently valid instructor tokens. Login mints a token and
// adds it to the live set; logout removes it and runs the registered teardown
// hooks so everything owned by the token dies with it. A token is valid only
// while it is in the live set and its signature and expiry still check out.
type Registry struct {
	username string
	password string // plaintext or a bcrypt hash
	tokens   *TokenService
	logger   *zap.Logger

	mu       sync.RWMutex
	live     map[string]struct{}
	onLogout []func(token string)
}

// NewRegistry creates a registry for the configured admin identity.
func NewRegistry(username, password string, tokens *TokenService, logger *zap.Logger) *Registry {
	return &Registry{
		username: username,
		password: password,
		tokens:   tokens,
		logger:   logger,
		live:     make(map[string]struct{}),
	}
}

// OnLogout registers a hook run after a token is revoked. Hooks run outside
// the registry lock.
func (r *Registry) OnLogout(fn func(token string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLogout = append(r.onLogout, fn)
}

// Login checks the credentials against the configured admin identity and
// mints a fresh token on success.
func (r *Registry) Login(username, password string) (string, error) {
	if username != r.username || !utils.VerifyPassword(password, r.password) {
		return "", ErrInvalidCredentials
	}
	token, err := r.tokens.Generate(username)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.live[token] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("instructor logged in", zap.String("username", username))
	return token, nil
}

// Logout revokes a token and runs the teardown hooks. Revoking an unknown
// token fails with ErrUnknownToken.
func (r *Registry) Logout(token string) error {
	r.mu.Lock()
	if _, ok := r.live[token]; !ok {
		r.mu.Unlock()
		return ErrUnknownToken
	}
	delete(r.live, token)
	hooks := append([]func(string){}, r.onLogout...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(token)
	}
	r.logger.Info("instructor logged out")
	return nil
}

// IsValid reports whether a token is live, well signed and unexpired.
// Pure lookup, no side effects.
func (r *Registry) IsValid(token string) bool {
	r.mu.RLock()
	_, ok := r.live[token]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	_, err := r.tokens.Validate(token)
	return err == nil
}
