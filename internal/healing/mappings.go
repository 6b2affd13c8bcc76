package healing

import (
	"context"
	"strings"
	"sync"
)

// MappingStore persists corrections learned from successful healing. It is
// a hint cache: concurrent writers may race and last-writer-wins is fine.
type MappingStore interface {
	Lookup(ctx context.Context, table, column string) (string, bool, error)
	Store(ctx context.Context, table, failed, corrected string) error
}

// MemoryMappings is the in-process MappingStore.
type MemoryMappings struct {
	mu sync.Mutex
	m  map[string]map[string]string
}

func NewMemoryMappings() *MemoryMappings {
	return &MemoryMappings{m: map[string]map[string]string{}}
}

func (s *MemoryMappings) Lookup(ctx context.Context, table, column string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	corrected, ok := s.m[strings.ToLower(table)][strings.ToLower(column)]
	return corrected, ok, nil
}

func (s *MemoryMappings) Store(ctx context.Context, table, failed, corrected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(table)
	if s.m[key] == nil {
		s.m[key] = map[string]string{}
	}
	s.m[key][strings.ToLower(failed)] = corrected
	return nil
}
