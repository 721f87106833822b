package crawler

import (
	"context"
	"time"

	"sjsage522/dealnotifier/services/cache"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	cache map[string][]byte
}

var _ cache.CacheService = (*MockCacheService)(nil)

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	return nil
}

// MockRenderer returns a fixed page or error and records the URLs it was asked for
type MockRenderer struct {
	Page  string
	Err   error
	Calls []string
}

var _ Renderer = (*MockRenderer)(nil)

func (m *MockRenderer) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	m.Calls = append(m.Calls, url)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Page, nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
