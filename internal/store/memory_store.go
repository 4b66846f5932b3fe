package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps environments in process memory. Records are copied on the
// way in and out so callers never share an Environment with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, workspaceID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[workspaceID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

func (s *MemoryStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.Identity.WorkspaceID == "" {
		return fmt.Errorf("record must have a workspace ID")
	}

	stored := copyRecord(record)
	stored.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[record.Identity.WorkspaceID] = stored
	s.mu.Unlock()

	record.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[workspaceID]; !ok {
		return ErrNotFound
	}
	delete(s.records, workspaceID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copyRecord(r *Record) *Record {
	return &Record{
		Identity:    r.Identity,
		Environment: r.Environment.Clone(),
		UpdatedAt:   r.UpdatedAt,
	}
}
