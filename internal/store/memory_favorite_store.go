package store

import (
	"context"
	"sync"
)

type MemoryFavoriteStore struct {
	mu        sync.RWMutex
	favorites map[string]bool
}

func NewMemoryFavoriteStore() *MemoryFavoriteStore {
	return &MemoryFavoriteStore{favorites: make(map[string]bool)}
}

func (m *MemoryFavoriteStore) List(ctx context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.favorites))
	for id := range m.favorites {
		out[id] = true
	}
	return out, nil
}

func (m *MemoryFavoriteStore) Set(ctx context.Context, jobID string, favorite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if favorite {
		m.favorites[jobID] = true
	} else {
		delete(m.favorites, jobID)
	}
	return nil
}

func (m *MemoryFavoriteStore) Close() error {
	return nil
}
