package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type sessionEntry struct {
	session      *Session
	lastAccessed time.Time
}

// SessionCache holds live sessions keyed by conversation id, evicting the
// least recently used entry when full. Evicted sessions are simply dropped;
// their sealed messages are already persisted, so a later access rebuilds the
// session from storage via the factory.
type SessionCache struct {
	lock     sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	maxSize  int
}

func NewSessionCache(maxSize int) *SessionCache {
	return &SessionCache{
		sessions: make(map[uuid.UUID]*sessionEntry, maxSize),
		maxSize:  maxSize,
	}
}

// GetSession returns the live session for sessionID, constructing it with
// factory on a miss.
func (cache *SessionCache) GetSession(sessionID uuid.UUID, factory func() (*Session, error)) (*Session, error) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	entry, exists := cache.sessions[sessionID]
	if exists {
		entry.lastAccessed = time.Now()
		return entry.session, nil
	}

	if len(cache.sessions) >= cache.maxSize {
		oldestSessionID := uuid.Nil
		var oldestTime time.Time
		for id, entry := range cache.sessions {
			if oldestSessionID == uuid.Nil || entry.lastAccessed.Before(oldestTime) {
				oldestSessionID = id
				oldestTime = entry.lastAccessed
			}
		}
		delete(cache.sessions, oldestSessionID)
	}

	session, err := factory()
	if err != nil {
		return nil, err
	}
	cache.sessions[sessionID] = &sessionEntry{
		session:      session,
		lastAccessed: time.Now(),
	}
	return session, nil
}

// Peek returns the live session for sessionID without constructing one.
func (cache *SessionCache) Peek(sessionID uuid.UUID) (*Session, bool) {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	entry, exists := cache.sessions[sessionID]
	if exists {
		entry.lastAccessed = time.Now()
		return entry.session, true
	}
	return nil, false
}

// Remove drops the live session for sessionID, if any.
func (cache *SessionCache) Remove(sessionID uuid.UUID) {
	cache.lock.Lock()
	defer cache.lock.Unlock()
	delete(cache.sessions, sessionID)
}
