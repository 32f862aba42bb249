package curriculum

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = val
	return nil
}

type countingStore struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingStore) Content(_ context.Context, p Path) (*Content, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	c := validContent()
	c.Path = p
	return c, nil
}

func TestCachedStore_ReadThrough(t *testing.T) {
	backend := &countingStore{}
	cache := newFakeCache()
	s := NewCachedStore(backend, cache, time.Minute, nil)
	p := validContent().Path

	for i := 0; i < 3; i++ {
		c, err := s.Content(context.Background(), p)
		if err != nil {
			t.Fatalf("Content: %v", err)
		}
		if c.Path != p {
			t.Errorf("path = %v, want %v", c.Path, p)
		}
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
}

func TestCachedStore_CacheErrorFallsThrough(t *testing.T) {
	backend := &countingStore{}
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	s := NewCachedStore(backend, cache, time.Minute, nil)

	if _, err := s.Content(context.Background(), validContent().Path); err != nil {
		t.Fatalf("Content: %v", err)
	}
	if backend.calls.Load() != 1 {
		t.Errorf("backend not consulted")
	}
}

func TestCachedStore_BackendErrorNotCached(t *testing.T) {
	backend := &countingStore{err: ErrContentNotFound}
	cache := newFakeCache()
	s := NewCachedStore(backend, cache, time.Minute, nil)

	_, err := s.Content(context.Background(), validContent().Path)
	if !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("err = %v, want ErrContentNotFound", err)
	}
	if len(cache.data) != 0 {
		t.Error("error result was cached")
	}
}

func TestCachedStore_CollapsesConcurrentMisses(t *testing.T) {
	backend := &countingStore{delay: 50 * time.Millisecond}
	s := NewCachedStore(backend, newFakeCache(), time.Minute, nil)
	p := validContent().Path

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Content(context.Background(), p); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := backend.calls.Load(); got > 2 {
		t.Errorf("backend calls = %d, want concurrent misses collapsed", got)
	}
}
