package adapter

import (
	"context"
	"strings"

	"github.com/jun/dijitalmektup/internal/model"
)

// ObjectProvider defines how to get an ObjectStore for a specific user.
type ObjectProvider interface {
	// GetObjectStore returns the ObjectStore holding the given user's assets.
	GetObjectStore(ctx context.Context, userID string) (ObjectStore, error)
}

// StaticProvider serves the same ObjectStore to every user.
type StaticProvider struct {
	Store ObjectStore
}

func (p StaticProvider) GetObjectStore(ctx context.Context, userID string) (ObjectStore, error) {
	return p.Store, nil
}

// HybridProvider delegates to the demo provider for demo users and to the
// primary provider for everyone else.
type HybridProvider struct {
	Primary ObjectProvider
	Demo    ObjectProvider
}

func (h *HybridProvider) GetObjectStore(ctx context.Context, userID string) (ObjectStore, error) {
	if strings.HasPrefix(userID, model.DemoUserPrefix) {
		return h.Demo.GetObjectStore(ctx, userID)
	}
	return h.Primary.GetObjectStore(ctx, userID)
}
