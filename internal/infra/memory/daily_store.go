package memory

import (
	"context"
	"sync"

	"vocab-battle/internal/domain"
)

// DailyStore keeps daily challenge records in memory.
type DailyStore struct {
	mu      sync.RWMutex
	records map[string]domain.DailyRecord
}

func NewDailyStore() *DailyStore {
	return &DailyStore{records: make(map[string]domain.DailyRecord)}
}

func (s *DailyStore) Get(_ context.Context, userID string) (domain.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(userID), nil
}

// Update applies fn to the record under the store lock; an error from fn leaves it untouched.
func (s *DailyStore) Update(_ context.Context, userID string, fn func(*domain.DailyRecord) error) (domain.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookup(userID)
	if err := fn(&rec); err != nil {
		return domain.DailyRecord{}, err
	}
	s.records[userID] = rec
	return rec, nil
}

func (s *DailyStore) lookup(userID string) domain.DailyRecord {
	if rec, ok := s.records[userID]; ok {
		return rec
	}
	return domain.DailyRecord{UserID: userID}
}
