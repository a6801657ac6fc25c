// Package identity keeps the signed-in user of a client and signs users in
// and out through a federated provider.
package identity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/jun/dijitalmektup/internal/model"
)

// Session holds the current user and notifies subscribers when it changes.
type Session struct {
	mu     sync.Mutex
	user   *model.User
	subs   map[int]func(*model.User)
	nextID int
}

func NewSession() *Session {
	return &Session{subs: make(map[int]func(*model.User))}
}

// Current returns a copy of the signed-in user, or nil.
func (s *Session) Current() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.user)
}

// Subscribe registers fn for every later change and returns a function that
// removes it.
func (s *Session) Subscribe(fn func(*model.User)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Set replaces the current user and notifies subscribers. Callbacks run
// after the lock is released and may call back into the session.
func (s *Session) Set(u *model.User) {
	s.mu.Lock()
	s.user = clone(u)
	subs := make([]func(*model.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(clone(u))
	}
}

func clone(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// LoadFile restores a user saved by Persist. A missing file is no user.
func LoadFile(path string) (*model.User, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, err
	}
	if u.UID == "" {
		return nil, nil
	}
	return &u, nil
}

// Persist writes the user to path on every change, removing the file when the
// user signs out. onError receives write failures and may be nil.
func Persist(s *Session, path string, onError func(error)) (stop func()) {
	return s.Subscribe(func(u *model.User) {
		if err := writeFile(path, u); err != nil && onError != nil {
			onError(err)
		}
	})
}

func writeFile(path string, u *model.User) error {
	if u == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
