package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type mapBackend struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMapBackend() *mapBackend {
	return &mapBackend{items: make(map[string][]byte)}
}

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	return v, ok, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[key] = value
	return nil
}

func (b *mapBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, key)
	return nil
}

func TestStore_GetOrLoad_DeduplicatesConcurrentLoads(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := store.GetOrLoad(context.Background(), "countries", loader)
			if err != nil {
				errCh <- err
				return
			}
			if v != "value" {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore[[]string](time.Minute)
	var calls atomic.Int32

	failing := func(context.Context) ([]string, error) {
		calls.Add(1)
		return nil, errors.New("upstream down")
	}
	if _, err := store.GetOrLoad(context.Background(), "goals", failing); err == nil {
		t.Fatalf("expected loader error")
	}

	ok := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"Career"}, nil
	}
	got, err := store.GetOrLoad(context.Background(), "goals", ok)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(got) != 1 || got[0] != "Career" {
		t.Fatalf("unexpected value: %v", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("loader called %d times, want 2", calls.Load())
	}
}

func TestStore_ExpiredEntryFallsBackToBackend(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	store := NewStore[[]string](time.Minute, WithBackend[[]string](backend, "learnhub:"))
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(context.Background(), "topics", []string{"Grammar", "Speaking"})
	if _, ok := backend.items["learnhub:topics"]; !ok {
		t.Fatalf("expected value to be written through to backend")
	}

	now = now.Add(2 * time.Minute)
	got, ok := store.Get(context.Background(), "topics")
	if !ok {
		t.Fatalf("expected backend hit after local expiry")
	}
	if len(got) != 2 || got[1] != "Speaking" {
		t.Fatalf("unexpected value: %v", got)
	}

	store.Delete(context.Background(), "topics")
	if _, ok := store.Get(context.Background(), "topics"); ok {
		t.Fatalf("expected miss after delete")
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")
