// Package store provides conversation history adapters.
// Clean Architecture: Adapters implementing ports.ConversationStore.
package store

import (
	"context"
	"sync"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
)

// DefaultMaxHistory caps the turns kept per session.
const DefaultMaxHistory = 50

// InMemoryStore keeps history in process memory. History is lost on restart.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]entities.ChatMessage
	max      int
}

// NewInMemoryStore creates a store keeping at most maxHistory turns per session.
func NewInMemoryStore(maxHistory int) *InMemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &InMemoryStore{
		sessions: make(map[string][]entities.ChatMessage),
		max:      maxHistory,
	}
}

// History returns a copy of the session's turns, oldest first.
func (s *InMemoryStore) History(ctx context.Context, sessionID string) ([]entities.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return entities.LastN(s.sessions[sessionID], s.max), nil
}

// Append adds turns and drops the oldest beyond the cap.
func (s *InMemoryStore) Append(ctx context.Context, sessionID string, msgs ...entities.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], msgs...)
	if len(history) > s.max {
		history = entities.LastN(history, s.max)
	}
	s.sessions[sessionID] = history
	return nil
}

// Clear removes every turn of the session.
func (s *InMemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// SessionCount returns the number of sessions with history.
func (s *InMemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
