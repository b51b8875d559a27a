package access

import (
	"context"
	"sync"

	"fightzone/backend/internal/models"
)

// MemoryStore is an in-memory Store used in tests and local development
// without a redis instance
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.AccessRecord
	grants  map[string]bool
}

// NewMemoryStore creates an empty in-memory access store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.AccessRecord),
		grants:  make(map[string]bool),
	}
}

func (s *MemoryStore) Put(ctx context.Context, sessionID, email string, rec models.AccessRecord) error {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byEmail := rec
	byEmail.Email = ""
	s.records[emailKey(normalized)] = byEmail

	if sessionID != "" {
		bySession := rec
		bySession.Email = normalized
		s.records[sessionKey(sessionID)] = bySession
	}

	return nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*models.AccessRecord, error) {
	return s.get(emailKey(email))
}

func (s *MemoryStore) GetBySession(ctx context.Context, sessionID string) (*models.AccessRecord, error) {
	return s.get(sessionKey(sessionID))
}

func (s *MemoryStore) get(key string) (*models.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	copied := rec
	return &copied, nil
}

func (s *MemoryStore) PutEventGrant(ctx context.Context, email, eventID string) error {
	if models.NormalizeEmail(email) == "" || eventID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[eventKey(email, eventID)] = true
	return nil
}

func (s *MemoryStore) HasEventGrant(ctx context.Context, email, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[eventKey(email, eventID)], nil
}
