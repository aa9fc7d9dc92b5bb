package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v2"
)

const memoryCacheSize = 100000

// MemoryStore is a process-local Store backed by a TTL cache.
// Suitable for single-instance deployments and tests.
type MemoryStore struct {
	cache *ccache.Cache
	mu    sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: ccache.New(ccache.Configure().MaxSize(memoryCacheSize)),
	}
}

func (s *MemoryStore) Create(_ context.Context, id string, initial State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.cache.Get(id); item != nil && !item.Expired() {
		return ErrConflict
	}
	s.cache.Set(id, initial, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	item := s.cache.Get(id)
	if item == nil || item.Expired() {
		return nil, ErrNotFound
	}
	st := item.Value().(State)
	return &st, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, ttl time.Duration, patches ...Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cache.Get(id)
	if item == nil || item.Expired() {
		return ErrNotFound
	}
	st := item.Value().(State)
	for _, patch := range patches {
		patch(&st)
	}
	s.cache.Set(id, st, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}
