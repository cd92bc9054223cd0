package records

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]Record{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) RecordResult(ctx context.Context, winner, loser string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateResult(winner, loser); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	w := s.recordLocked(winner)
	w.Wins++
	w.UpdatedAt = now
	s.records[Key(winner)] = w

	l := s.recordLocked(loser)
	l.Losses++
	l.UpdatedAt = now
	s.records[Key(loser)] = l
	return nil
}

func (s *MemoryStore) recordLocked(name string) Record {
	if record, ok := s.records[Key(name)]; ok {
		return record
	}
	return Record{Name: strings.TrimSpace(name)}
}

func (s *MemoryStore) Get(ctx context.Context, name string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[Key(name)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	s.mu.RUnlock()

	SortStandings(records)
	return records, nil
}
