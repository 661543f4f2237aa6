package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in a map keyed by Ref.Identifier. It mirrors
// SQLiteStore and serves runs that need no persistence, such as tests and
// examples.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	records map[string]memoryRecord[T]
}

type memoryRecord[T any] struct {
	ref      Ref
	snapshot T
	meta     Meta
}

func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{records: map[string]memoryRecord[T]{}}
}

func (s *MemoryStore[T]) Load(_ context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.snapshot, cloneMeta(record.meta), true, nil
}

// Save replaces any snapshot stored under ref. A zero UpdatedAt is stamped
// with the current time.
func (s *MemoryStore[T]) Save(_ context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryRecord[T]{ref: ref, snapshot: snapshot, meta: cloneMeta(meta)}
	return cloneMeta(meta), nil
}

// Runs returns the run ids stored for schema, most recently updated first.
func (s *MemoryStore[T]) Runs(_ context.Context, schema string) ([]string, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, fmt.Errorf("state: schema is required")
	}
	s.mu.RLock()
	var matched []memoryRecord[T]
	for _, record := range s.records {
		if record.ref.Schema == schema {
			matched = append(matched, record)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].meta.UpdatedAt, matched[j].meta.UpdatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return matched[i].ref.RunID < matched[j].ref.RunID
	})
	runs := make([]string, len(matched))
	for i, record := range matched {
		runs[i] = record.ref.RunID
	}
	return runs, nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
