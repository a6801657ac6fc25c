package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jun/dijitalmektup/internal/adapter"
)

const maxDemoObjectSize = 4 * 1024 * 1024 // 4MB

type object struct {
	data        []byte
	contentType string
}

// Objects implements adapter.ObjectStore in memory. Objects are served by the
// API under /objects/{key}, so URLs are built from baseURL.
type Objects struct {
	baseURL string

	objects map[string]object
	mu      sync.RWMutex
}

// NewObjects creates an empty store whose URLs start with baseURL.
func NewObjects(baseURL string) *Objects {
	return &Objects{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (o *Objects) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if len(data) > maxDemoObjectSize {
		return "", fmt.Errorf("object too large (%d bytes): %w", len(data), adapter.ErrLimitExceeded)
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	o.mu.Lock()
	o.objects[key] = object{data: copied, contentType: contentType}
	o.mu.Unlock()

	return o.URL(key), nil
}

func (o *Objects) DeleteObject(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return adapter.ErrNotFound
	}
	delete(o.objects, key)
	return nil
}

// GetObject returns the stored bytes and content type.
func (o *Objects) GetObject(key string) ([]byte, string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	obj, ok := o.objects[key]
	if !ok {
		return nil, "", adapter.ErrNotFound
	}
	return obj.data, obj.contentType, nil
}

// Keys lists stored keys.
func (o *Objects) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	keys := make([]string, 0, len(o.objects))
	for k := range o.objects {
		keys = append(keys, k)
	}
	return keys
}

// URL is the public address of key.
func (o *Objects) URL(key string) string {
	return o.baseURL + "/objects/" + key
}
