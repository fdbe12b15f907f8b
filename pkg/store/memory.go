package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryStore implements Store in process memory. History is lost on restart.
type MemoryStore struct {
	log    logrus.FieldLogger
	mu     sync.RWMutex
	blends map[string]*Blend
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(log logrus.FieldLogger) *MemoryStore {
	return &MemoryStore{
		log:    log.WithField("component", "store"),
		blends: make(map[string]*Blend, 64),
	}
}

// Start is a no-op.
func (s *MemoryStore) Start(_ context.Context) error {
	s.log.Info("Using in-memory blend history")

	return nil
}

// Stop is a no-op.
func (s *MemoryStore) Stop() error { return nil }

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Migrate is a no-op.
func (s *MemoryStore) Migrate(_ context.Context) error { return nil }

// CreateBlend stores a copy of the blend.
func (s *MemoryStore) CreateBlend(_ context.Context, blend *Blend) error {
	cp := *blend
	cp.Entries = append([]BlendDocument(nil), blend.Entries...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.blends[blend.ID] = &cp

	return nil
}

// GetBlend returns a copy of the blend or nil if not found.
func (s *MemoryStore) GetBlend(_ context.Context, id string) (*Blend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blend, ok := s.blends[id]
	if !ok {
		return nil, nil
	}

	cp := *blend
	cp.Entries = append([]BlendDocument(nil), blend.Entries...)

	return &cp, nil
}

// ListBlends returns blends newest first, without their documents.
func (s *MemoryStore) ListBlends(_ context.Context, opts BlendQueryOpts) ([]*Blend, int, error) {
	s.mu.RLock()

	matched := make([]*Blend, 0, len(s.blends))

	for _, blend := range s.blends {
		if opts.Status != nil && blend.Status != *opts.Status {
			continue
		}

		cp := *blend
		cp.Entries = nil
		matched = append(matched, &cp)
	}

	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)

	if opts.Limit > 0 {
		if opts.Offset >= len(matched) {
			return []*Blend{}, total, nil
		}

		matched = matched[opts.Offset:]

		if opts.Limit < len(matched) {
			matched = matched[:opts.Limit]
		}
	}

	return matched, total, nil
}

// DeleteOldBlends removes blends that finished before the given time.
func (s *MemoryStore) DeleteOldBlends(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64

	for id, blend := range s.blends {
		if blend.FinishedAt.Before(olderThan) {
			delete(s.blends, id)
			count++
		}
	}

	return count, nil
}
