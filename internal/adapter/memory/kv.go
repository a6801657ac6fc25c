package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// KV implements adapter.KVStore in process memory.
type KV struct {
	entries map[string]kvEntry
	mu      sync.Mutex
	now     func() time.Time
}

func NewKV() *KV {
	return &KV{entries: make(map[string]kvEntry), now: time.Now}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	if !e.expiresAt.IsZero() && k.now().After(e.expiresAt) {
		delete(k.entries, key)
		return nil, adapter.ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := kvEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = k.now().Add(ttl)
	}

	k.mu.Lock()
	k.entries[key] = e
	k.mu.Unlock()
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	delete(k.entries, key)
	k.mu.Unlock()
	return nil
}
