package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a Store backed by a map. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	byRef map[string]*Credential // provider ref → credential
	byID  map[string]*Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRef: make(map[string]*Credential),
		byID:  make(map[string]*Credential),
	}
}

var _ Store = (*MemoryStore)(nil)

// Put stores a credential under a provider reference.
func (s *MemoryStore) Put(providerRef string, cred *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef[providerRef] = cred
	s.byID[cred.ID] = cred
}

func (s *MemoryStore) Get(ctx context.Context, providerRef string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.byRef[providerRef]
	if !ok {
		return nil, nil
	}
	copied := *cred
	return &copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byID[cred.ID]; ok {
		*existing = *cred
		return nil
	}
	s.byID[cred.ID] = cred
	return nil
}

func (s *MemoryStore) MarkInvalid(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred, ok := s.byID[id]; ok {
		cred.Valid = false
	}
	return nil
}

func (s *MemoryStore) ListExpiring(ctx context.Context, before time.Time) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, cred := range s.byID {
		if cred.Valid && !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Before(before) {
			copied := *cred
			out = append(out, &copied)
		}
	}
	return out, nil
}
