package adapter

import (
	"context"
	"time"

	"github.com/jun/dijitalmektup/internal/model"
)

// LetterQuery filters ListLetters. Empty fields match everything.
type LetterQuery struct {
	Owner      string
	From       string
	To         string
	DraftsOnly bool
	Limit      int
}

// Matches applies the query to a single letter.
func (q LetterQuery) Matches(l *model.Letter) bool {
	if q.Owner != "" && l.Owner != q.Owner {
		return false
	}
	if q.From != "" && l.From != q.From {
		return false
	}
	if q.To != "" && l.To != q.To {
		return false
	}
	if q.DraftsOnly && l.To != "" {
		return false
	}
	return true
}

// LetterStore persists letter records.
// This abstraction allows switching between document stores (Firestore, DynamoDB, SQL)
// without changing the letter service.
type LetterStore interface {
	// CreateLetter inserts the letter if no record with its ID exists.
	// It returns ErrAlreadyExists otherwise; the write is atomic.
	CreateLetter(ctx context.Context, letter *model.Letter) error

	// GetLetter retrieves a letter by ID or returns ErrNotFound.
	GetLetter(ctx context.Context, id string) (*model.Letter, error)

	// ListLetters returns matching letters ordered by timestamp, newest first.
	ListLetters(ctx context.Context, query LetterQuery) ([]model.Letter, error)

	// DeleteLetter removes a letter by ID.
	DeleteLetter(ctx context.Context, id string) error
}

// ObjectStore holds binary letter assets (theme images, overlays, drawings).
type ObjectStore interface {
	// PutObject writes data under key, overwriting any previous object, and
	// returns a URL from which the object can be fetched.
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// DeleteObject removes the object or returns ErrNotFound.
	DeleteObject(ctx context.Context, key string) error
}

// KVStore is a small key/value store for per-user documents and caches.
type KVStore interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; a zero ttl keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
}

// PubSub fans messages out to subscribers of a channel.
type PubSub interface {
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe invokes handler for every message until ctx is cancelled.
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error
}
