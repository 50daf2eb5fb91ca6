package mocks

import "context"

// MockFavoriteStore is a mock implementation of store.FavoriteStore for testing.
type MockFavoriteStore struct {
	ListFunc  func(ctx context.Context) (map[string]bool, error)
	SetFunc   func(ctx context.Context, jobID string, favorite bool) error
	CloseFunc func() error
}

func (m *MockFavoriteStore) List(ctx context.Context) (map[string]bool, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return map[string]bool{}, nil
}

func (m *MockFavoriteStore) Set(ctx context.Context, jobID string, favorite bool) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, jobID, favorite)
	}
	return nil
}

func (m *MockFavoriteStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
