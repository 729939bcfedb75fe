package memory

import (
	"context"
	"sync"

	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
)

// Store is a keyed append-only message list with full replace.
type Store interface {
	Messages(ctx context.Context, sessionID string) ([]chat.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...chat.Message) error
	Replace(ctx context.Context, sessionID string, msgs []chat.Message) error
}

// MemoryStore keeps history in process memory. Suitable for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]chat.Message)}
}

// Messages returns a copy of the stored history; unknown sessions are empty.
func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Append adds messages to the end of the session history.
func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...chat.Message) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], msgs...)
	s.mu.Unlock()
	return nil
}

// Replace swaps the whole session history.
func (s *MemoryStore) Replace(_ context.Context, sessionID string, msgs []chat.Message) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	copied := make([]chat.Message, len(msgs))
	copy(copied, msgs)

	s.mu.Lock()
	s.messages[sessionID] = copied
	s.mu.Unlock()
	return nil
}
