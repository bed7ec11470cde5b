package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// MemorySessionStore is the single-process backend. Values are stored
// serialized so callers never share slices with the map.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64][]byte
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64][]byte)}
}

func (s *MemorySessionStore) Get(_ context.Context, chatID int64) (*types.Session, error) {
	s.mu.RLock()
	data, ok := s.sessions[chatID]
	s.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *MemorySessionStore) Put(_ context.Context, session *types.Session) error {
	session.UpdatedAt = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[session.ChatID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	delete(s.sessions, chatID)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
