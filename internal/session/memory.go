package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jun/dijitalmektup/internal/model"
)

// MemoryLocker implements Locker using an in-memory map. It serves tests and
// single-process deployments.
type MemoryLocker struct {
	locks       map[string]*model.LockSession
	mu          sync.Mutex
	ttlDuration time.Duration
}

// NewMemoryLocker creates a new MemoryLocker with the default TTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:       make(map[string]*model.LockSession),
		ttlDuration: DefaultTTL,
	}
}

func (m *MemoryLocker) AcquireLock(ctx context.Context, resource, holder string) (*model.LockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if existing, ok := m.locks[resource]; ok {
		// Allow if expired or same holder
		if existing.ExpiresAt > now && existing.Holder != holder {
			return nil, ErrLocked
		}
	}

	s := &model.LockSession{
		Resource:  resource,
		Holder:    holder,
		ExpiresAt: now + int64(m.ttlDuration.Seconds()),
	}
	m.locks[resource] = s
	copied := *s
	return &copied, nil
}

func (m *MemoryLocker) Heartbeat(ctx context.Context, resource, holder string) (*model.LockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[resource]
	if !ok || existing.Holder != holder {
		return nil, fmt.Errorf("lock on %s not held by %s", resource, holder)
	}

	existing.ExpiresAt = time.Now().Unix() + int64(m.ttlDuration.Seconds())
	copied := *existing
	return &copied, nil
}

func (m *MemoryLocker) ReleaseLock(ctx context.Context, resource, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[resource]
	if !ok || existing.Holder != holder {
		return fmt.Errorf("lock on %s not held by %s", resource, holder)
	}

	delete(m.locks, resource)
	return nil
}

func (m *MemoryLocker) GetLockStatus(ctx context.Context, resource string) (*model.LockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[resource]
	if !ok || existing.ExpiresAt < time.Now().Unix() {
		return nil, nil
	}
	copied := *existing
	return &copied, nil
}
