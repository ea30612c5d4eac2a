package storage

import (
	"context"
	"sync"
)

// InMemoryKeyStore keeps plaintext keys in memory. It backs tests and
// single-process development servers.
type InMemoryKeyStore struct {
	// keys maps key strings to keys for fast lookup
	keys map[string]*APIKey
	// keysByID maps key IDs to keys for ID-based operations
	keysByID map[string]*APIKey
	// keysByClient groups keys by client ID
	keysByClient map[string][]*APIKey
	mutex        sync.RWMutex
}

// NewInMemoryKeyStore creates a new thread-safe in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keys:         make(map[string]*APIKey),
		keysByID:     make(map[string]*APIKey),
		keysByClient: make(map[string][]*APIKey),
	}
}

// FindByKey implements APIKeyStore. The returned key is a copy.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	apiKey, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	keyCopy := *apiKey

	return &keyCopy, true
}

// Add implements APIKeyStore.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[apiKey.Key]; exists {
		return ErrKeyAlreadyExists
	}

	keyCopy := *apiKey

	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByClient[keyCopy.ClientID] = append(s.keysByClient[keyCopy.ClientID], &keyCopy)

	return nil
}

// Update implements APIKeyStore.
func (s *InMemoryKeyStore) Update(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[apiKey.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.removeFromClient(existing.ClientID, existing.ID)

	if existing.Key != apiKey.Key {
		delete(s.keys, existing.Key)
	}

	keyCopy := *apiKey

	s.keys[keyCopy.Key] = &keyCopy
	s.keysByID[keyCopy.ID] = &keyCopy
	s.keysByClient[keyCopy.ClientID] = append(s.keysByClient[keyCopy.ClientID], &keyCopy)

	return nil
}

// Delete implements APIKeyStore. The key is removed outright.
func (s *InMemoryKeyStore) Delete(_ context.Context, keyID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	delete(s.keys, existing.Key)
	delete(s.keysByID, keyID)
	s.removeFromClient(existing.ClientID, keyID)

	return nil
}

// ListByClient implements APIKeyStore. Unknown clients yield an empty slice.
func (s *InMemoryKeyStore) ListByClient(_ context.Context, clientID string) ([]*APIKey, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := s.keysByClient[clientID]

	result := make([]*APIKey, len(keys))
	for i, key := range keys {
		keyCopy := *key
		result[i] = &keyCopy
	}

	return result, nil
}

// removeFromClient drops keyID from the client index. Caller must hold the write lock.
func (s *InMemoryKeyStore) removeFromClient(clientID, keyID string) {
	keys := s.keysByClient[clientID]
	for i, key := range keys {
		if key.ID == keyID {
			s.keysByClient[clientID] = append(keys[:i], keys[i+1:]...)

			break
		}
	}

	if len(s.keysByClient[clientID]) == 0 {
		delete(s.keysByClient, clientID)
	}
}
