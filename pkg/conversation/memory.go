package conversation

import (
	"context"
	"sync"
)

// MemoryStore keeps the user to conversation id mapping in process memory.
// Entries are never evicted and are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]string),
	}
}

// Get returns the conversation id stored for userID
func (s *MemoryStore) Get(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[userID]
	return id, ok, nil
}

// Set overwrites the conversation id for userID. Two concurrent Sets for the
// same user leave whichever ran last.
func (s *MemoryStore) Set(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = conversationID
	return nil
}
