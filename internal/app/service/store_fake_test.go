package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifan077/EphemURL/internal/app/model"
	"github.com/sifan077/EphemURL/internal/app/repository"
)

// memStore is a MappingStore over a map. Hooks run before the default
// behaviour and short-circuit it when they return a non-nil error.
type memStore struct {
	mu     sync.Mutex
	rows   map[string]model.Mapping
	nextID uint64

	inserts atomic.Int64
	finds   atomic.Int64
	deletes atomic.Int64

	insertHook func(ctx context.Context, key string) error
	findHook   func(ctx context.Context, key string) error
	deleteHook func(ctx context.Context) error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]model.Mapping)}
}

func (s *memStore) InsertUnique(ctx context.Context, key, url string, createdAt, expires time.Time) (*model.Mapping, error) {
	s.inserts.Add(1)
	if s.insertHook != nil {
		if err := s.insertHook(ctx, key); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[key]; ok {
		return nil, repository.ErrKeyTaken
	}
	s.nextID++
	m := model.Mapping{ID: s.nextID, Key: key, TargetURL: url, CreatedAt: createdAt, Expires: expires}
	s.rows[key] = m
	return &m, nil
}

func (s *memStore) FindLive(ctx context.Context, key string, now time.Time) (*model.Mapping, error) {
	s.finds.Add(1)
	if s.findHook != nil {
		if err := s.findHook(ctx, key); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[key]
	if !ok || !m.IsLiveAt(now) {
		return nil, repository.ErrMappingNotFound
	}
	return &m, nil
}

func (s *memStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.deletes.Add(1)
	if s.deleteHook != nil {
		if err := s.deleteHook(ctx); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, m := range s.rows {
		if m.Expires.Before(now) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) put(m model.Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.rows[m.Key] = m
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fixedKeys hands out keys from a list, repeating the last one.
type fixedKeys struct {
	mu   sync.Mutex
	keys []string
	n    int
}

func (f *fixedKeys) Generate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.n
	if i >= len(f.keys) {
		i = len(f.keys) - 1
	}
	f.n++
	return f.keys[i], nil
}

func (f *fixedKeys) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingScheduler struct {
	n atomic.Int64
}

func (s *countingScheduler) Schedule() { s.n.Add(1) }

func modelWithKey(key string, expires time.Time) model.Mapping {
	return model.Mapping{Key: key, TargetURL: "example.org", CreatedAt: expires.Add(-time.Hour), Expires: expires}
}
