package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	s, err := m.AcquireLock(ctx, "themes:user1", "req-1")
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if s.Resource != "themes:user1" || s.Holder != "req-1" {
		t.Errorf("Session mismatch: got %+v", s)
	}

	if err := m.ReleaseLock(ctx, "themes:user1", "req-1"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	status, _ := m.GetLockStatus(ctx, "themes:user1")
	if status != nil {
		t.Error("Expected nil lock status after release")
	}
}

func TestMemoryLocker_DoubleAcquire(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	if _, err := m.AcquireLock(ctx, "r", "h1"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if _, err := m.AcquireLock(ctx, "r", "h1"); err != nil {
		t.Errorf("Same holder should be able to re-acquire: %v", err)
	}
	if _, err := m.AcquireLock(ctx, "r", "h2"); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked for another holder, got %v", err)
	}
}

func TestMemoryLocker_ExpiredLock(t *testing.T) {
	m := NewMemoryLocker()
	m.ttlDuration = -1 * time.Second // already expired
	ctx := context.Background()

	if _, err := m.AcquireLock(ctx, "r", "h1"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if _, err := m.AcquireLock(ctx, "r", "h2"); err != nil {
		t.Errorf("Expired lock should be taken over: %v", err)
	}
	if status, _ := m.GetLockStatus(ctx, "r"); status != nil {
		t.Error("Expected expired lock to report nil status")
	}
}

func TestMemoryLocker_Heartbeat(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	m.ttlDuration = time.Second
	s, _ := m.AcquireLock(ctx, "r", "h1")

	m.ttlDuration = time.Hour
	updated, err := m.Heartbeat(ctx, "r", "h1")
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if updated.ExpiresAt <= s.ExpiresAt {
		t.Errorf("Expected heartbeat to extend expiry: original=%d, updated=%d", s.ExpiresAt, updated.ExpiresAt)
	}

	if _, err := m.Heartbeat(ctx, "r", "h2"); err == nil {
		t.Error("Expected heartbeat from a non-holder to fail")
	}
}

func TestMemoryLocker_ReleaseLock_WrongHolder(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	_, _ = m.AcquireLock(ctx, "r", "h1")
	if err := m.ReleaseLock(ctx, "r", "h2"); err == nil {
		t.Error("Expected error when releasing lock owned by another holder")
	}
}

func TestWithLock_Serializes(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := WithLock(ctx, m, "themes:u", string(rune('a'+i)), func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected at most one holder at a time, saw %d", maxSeen)
	}
	if status, _ := m.GetLockStatus(ctx, "themes:u"); status != nil {
		t.Errorf("Expected lock to be released, got %+v", status)
	}
}

func TestWithLock_ContextCancelled(t *testing.T) {
	m := NewMemoryLocker()
	_, _ = m.AcquireLock(context.Background(), "r", "other")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := WithLock(ctx, m, "r", "me", func() error { called = true; return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if called {
		t.Error("fn must not run without the lock")
	}
}

func TestWithLock_NilLocker(t *testing.T) {
	called := false
	if err := WithLock(context.Background(), nil, "r", "h", func() error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("Expected fn to run")
	}
}
