package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jun/dijitalmektup/internal/model"
)

// ErrLocked is returned when another holder owns an unexpired lock.
var ErrLocked = errors.New("resource is locked by another holder")

// Locker defines the interface for short-lived resource locks.
// Implementations serialize read-modify-write cycles on per-user documents
// such as the custom theme list.
type Locker interface {
	// AcquireLock attempts to acquire a lock on a resource for the given holder.
	AcquireLock(ctx context.Context, resource, holder string) (*model.LockSession, error)

	// Heartbeat extends the lock TTL if the holder owns the lock.
	Heartbeat(ctx context.Context, resource, holder string) (*model.LockSession, error)

	// ReleaseLock removes the lock if the holder owns it.
	ReleaseLock(ctx context.Context, resource, holder string) error

	// GetLockStatus retrieves the current lock, or nil when the resource is free.
	GetLockStatus(ctx context.Context, resource string) (*model.LockSession, error)
}

const retryInterval = 50 * time.Millisecond

// WithLock runs fn while holding the lock on resource. It polls until the lock
// is acquired or ctx is done. A nil locker runs fn unguarded.
func WithLock(ctx context.Context, locker Locker, resource, holder string, fn func() error) error {
	if locker == nil {
		return fn()
	}

	for {
		_, err := locker.AcquireLock(ctx, resource, holder)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrLocked) {
			return fmt.Errorf("acquire %s: %w", resource, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	defer func() {
		// Release with a fresh context so a cancelled request does not leave the lock behind.
		_ = locker.ReleaseLock(context.WithoutCancel(ctx), resource, holder)
	}()
	return fn()
}
