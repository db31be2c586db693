// Package memory provides an in-memory PluginStore for development and
// testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/plugwatch/plugwatch/internal/review"
)

// PluginStore keeps records in a slug-keyed map.
type PluginStore struct {
	mu      sync.RWMutex
	records map[string]review.PluginRecord
}

// NewPluginStore constructs a PluginStore.
func NewPluginStore() *PluginStore {
	return &PluginStore{
		records: make(map[string]review.PluginRecord),
	}
}

// Load fetches a record by slug.
func (s *PluginStore) Load(_ context.Context, slug string) (review.PluginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[slug]
	if !ok {
		return review.PluginRecord{}, fmt.Errorf("plugin %s: %w", slug, review.ErrNotFound)
	}
	return cloneRecord(record), nil
}

// Save upserts a record under its slug.
func (s *PluginStore) Save(_ context.Context, record review.PluginRecord) error {
	if record.Slug == "" {
		return fmt.Errorf("%w: empty slug", review.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Slug] = cloneRecord(record)
	return nil
}

// Delete removes a record by slug.
func (s *PluginStore) Delete(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[slug]; !ok {
		return fmt.Errorf("plugin %s: %w", slug, review.ErrNotFound)
	}
	delete(s.records, slug)
	return nil
}

// List returns all records ordered by slug.
func (s *PluginStore) List(_ context.Context) ([]review.PluginRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]review.PluginRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, cloneRecord(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func cloneRecord(record review.PluginRecord) review.PluginRecord {
	cp := record
	cp.Reviews = make([]review.Review, len(record.Reviews))
	copy(cp.Reviews, record.Reviews)
	return cp
}
