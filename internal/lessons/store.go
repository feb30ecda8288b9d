// Package lessons holds each instructor's working lesson between sessions,
// keyed by auth token. Contents are gone on logout and on process restart;
// durable lesson files live with the authoring UI, not here.
package lessons

import (
	"errors"
	"sync"

	"github.com/classpulse/backend/internal/models"
)

var ErrNoLesson = errors.New("no lesson stored")

// Store is an in-memory token -> lesson map.
type Store struct {
	mu      sync.RWMutex
	byToken map[string]models.Lesson
}

// NewStore creates an empty lesson store.
func NewStore() *Store {
	return &Store{byToken: make(map[string]models.Lesson)}
}

// Set validates and stores the instructor's lesson, replacing any previous one.
func (s *Store) Set(token string, lesson models.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[token] = lesson.Clone()
	return nil
}

// Get returns a copy of the stored lesson for a token.
func (s *Store) Get(token string) (models.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lesson, ok := s.byToken[token]
	if !ok {
		return models.Lesson{}, ErrNoLesson
	}
	return lesson.Clone(), nil
}

// Delete drops the lesson for a token. Deleting an absent token is a no-op.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
}
