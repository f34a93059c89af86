package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rehydra/rehydra/internal/models"
)

// MemoryStore keeps records in a process-local map. Everything is lost on
// process exit; it exists for tests and for deployments that only need
// within-process session continuity.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.StoredMap
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.StoredMap)}
}

// Save upserts the record for id.
func (s *MemoryStore) Save(_ context.Context, id string, enc models.EncryptedMap, meta *SaveMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return ErrNotInitialized
	}

	now := time.Now().UnixMilli()
	createdAt, counts, version := resolveMeta(s.records[id], meta, now)
	s.records[id] = &models.StoredMap{
		EncryptedMap: enc,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
		EntityCounts: cloneCounts(counts),
		ModelVersion: version,
	}
	return nil
}

// Load returns a copy of the stored record.
func (s *MemoryStore) Load(_ context.Context, id string) (*models.StoredMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return nil, ErrNotInitialized
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	out.EntityCounts = cloneCounts(rec.EntityCounts)
	return &out, nil
}

// Delete removes the record, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return false, ErrNotInitialized
	}
	_, ok := s.records[id]
	delete(s.records, id)
	return ok, nil
}

// Exists reports whether a record exists for id.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return false, ErrNotInitialized
	}
	_, ok := s.records[id]
	return ok, nil
}

// List returns identifiers ordered by creation time descending.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return nil, ErrNotInitialized
	}

	type entry struct {
		id        string
		createdAt int64
	}
	entries := make([]entry, 0, len(s.records))
	for id, rec := range s.records {
		if opts.OlderThan > 0 && rec.CreatedAt >= opts.OlderThan {
			continue
		}
		entries = append(entries, entry{id, rec.CreatedAt})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].createdAt != entries[b].createdAt {
			return entries[a].createdAt > entries[b].createdAt
		}
		return entries[a].id < entries[b].id
	})

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// Cleanup deletes records created strictly before olderThan.
func (s *MemoryStore) Cleanup(_ context.Context, olderThan int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return 0, ErrNotInitialized
	}
	count := 0
	for id, rec := range s.records {
		if rec.CreatedAt < olderThan {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
