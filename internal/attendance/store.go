package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store is the document store holding one Record per identity key.
type Store interface {
	// Get returns nil, nil when no record exists for key.
	Get(ctx context.Context, key string) (*Record, error)
	// Create fails with ErrRecordExists when key is taken.
	Create(ctx context.Context, rec Record) error
	// AppendDate adds date to the record's set of dates, creating the record
	// if needed, and sets email and the name when name is not empty.
	AppendDate(ctx context.Context, key, date, name, email string) error
	List(ctx context.Context) ([]Record, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := rec.clone()
	return &out, nil
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	if _, err := checkDates(rec.Dates); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRecord, rec.Key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Key]; ok {
		return ErrRecordExists
	}
	stored := rec.clone()
	s.records[rec.Key] = &stored
	return nil
}

func (s *MemoryStore) AppendDate(_ context.Context, key, date, name, email string) error {
	if !ValidDate(date) {
		return fmt.Errorf("%w: %s: invalid date %q", ErrMalformedRecord, key, date)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{Key: key}
		s.records[key] = rec
	}
	if !rec.Has(date) {
		rec.Dates = append(rec.Dates, date)
	}
	if name != "" {
		rec.Name = name
	}
	rec.Email = email
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
