package revocation

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemoryStore returns an in-process Store with a background sweep that
// drops expired entries. Call Stop when the store is no longer needed.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go store.sweepLoop(sweepEvery)

	return store
}

func (that *MemoryStore) Revoke(_ context.Context, token string, ttl time.Duration) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.entries[token] = that.now().Add(ttl)

	return nil
}

func (that *MemoryStore) IsRevoked(_ context.Context, token string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	deadline, ok := that.entries[token]
	if !ok {
		return false, nil
	}

	if that.now().After(deadline) {
		delete(that.entries, token)
		return false, nil
	}

	return true, nil
}

// Stop ends the background sweep.
func (that *MemoryStore) Stop() {
	that.once.Do(func() {
		close(that.stop)
	})
}

func (that *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-that.stop:
			return
		case <-ticker.C:
			that.sweep()
		}
	}
}

func (that *MemoryStore) sweep() {
	that.mu.Lock()
	defer that.mu.Unlock()

	now := that.now()
	for token, deadline := range that.entries {
		if now.After(deadline) {
			delete(that.entries, token)
		}
	}
}
