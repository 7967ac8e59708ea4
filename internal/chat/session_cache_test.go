package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheFactory(id uuid.UUID) func() (*Session, error) {
	registry := &fakeRegistry{models: []ModelInfo{{ID: "gpt-4o-mini"}}}
	return func() (*Session, error) {
		return NewSession(id, registry, &manualTransport{}, nil), nil
	}
}

func TestSessionCacheReturnsSameSession(t *testing.T) {
	cache := NewSessionCache(4)
	id := uuid.New()

	first, err := cache.GetSession(id, cacheFactory(id))
	require.NoError(t, err)
	second, err := cache.GetSession(id, cacheFactory(id))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSessionCacheEvictsOldest(t *testing.T) {
	cache := NewSessionCache(2)

	first := uuid.New()
	second := uuid.New()
	third := uuid.New()

	a, err := cache.GetSession(first, cacheFactory(first))
	require.NoError(t, err)
	_, err = cache.GetSession(second, cacheFactory(second))
	require.NoError(t, err)

	// Touch the first entry so the second becomes the eviction candidate.
	touched, err := cache.GetSession(first, cacheFactory(first))
	require.NoError(t, err)
	assert.Same(t, a, touched)

	_, err = cache.GetSession(third, cacheFactory(third))
	require.NoError(t, err)

	_, stillCached := cache.Peek(first)
	assert.True(t, stillCached)
	_, evicted := cache.Peek(second)
	assert.False(t, evicted)
}

func TestSessionCacheRemove(t *testing.T) {
	cache := NewSessionCache(2)
	id := uuid.New()

	_, err := cache.GetSession(id, cacheFactory(id))
	require.NoError(t, err)

	cache.Remove(id)
	_, exists := cache.Peek(id)
	assert.False(t, exists)
}
