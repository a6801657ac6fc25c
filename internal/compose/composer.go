package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/session"
)

// ErrConflict is returned when a draft was saved elsewhere since it was read.
var ErrConflict = fmt.Errorf("draft was modified concurrently: %w", adapter.ErrPreconditionFailed)

// namespace for letter ids derived from draft revisions
var letterIDSpace = uuid.MustParse("6f1c1a52-4d7e-4f0c-9a55-1c0d8d7b2e61")

// CheckConflict reports whether the revision a client last read differs from
// the stored one.
func CheckConflict(localRevision, remoteRevision string) bool {
	return localRevision != remoteRevision
}

func draftKey(uid string) string {
	return "letterDraft:" + uid
}

// FeedbackFunc returns the animation player of a user. It may return nil.
type FeedbackFunc func(uid string) *editor.Feedback

// Composer loads, saves and sends drafts.
type Composer struct {
	kv       adapter.KVStore
	letters  *letter.Service
	locker   session.Locker
	feedback FeedbackFunc
	log      *logger.Logger
	now      func() time.Time
}

func NewComposer(kv adapter.KVStore, letters *letter.Service, locker session.Locker, feedback FeedbackFunc, log *logger.Logger) *Composer {
	return &Composer{
		kv:       kv,
		letters:  letters,
		locker:   locker,
		feedback: feedback,
		log:      log,
		now:      time.Now,
	}
}

// Load returns the stored draft of uid, or a fresh one.
func (c *Composer) Load(ctx context.Context, uid string) (*Draft, error) {
	raw, err := c.kv.Get(ctx, draftKey(uid))
	if errors.Is(err, adapter.ErrNotFound) {
		return NewDraft(), nil
	}
	if err != nil {
		return nil, apperror.Persistence("load draft", err)
	}

	var s model.DraftSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		c.log.With("user", uid).Error(err, "discarding unreadable draft")
		return NewDraft(), nil
	}
	return FromSnapshot(s), nil
}

func (c *Composer) store(ctx context.Context, uid string, d *Draft) error {
	d.mu.Lock()
	d.revision = uuid.NewString()
	d.updatedAt = c.now().UnixMilli()
	d.mu.Unlock()

	raw, err := json.Marshal(d.Snapshot())
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, draftKey(uid), raw, 0); err != nil {
		return apperror.Persistence("save draft", err)
	}
	return nil
}

// Update applies fn to the stored draft and saves the result. When
// ifRevision is set and the stored revision differs, ErrConflict is returned
// and nothing is written.
func (c *Composer) Update(ctx context.Context, uid, ifRevision string, fn func(d *Draft) error) (*Draft, error) {
	var updated *Draft
	err := session.WithLock(ctx, c.locker, "draft:"+uid, uuid.NewString(), func() error {
		d, err := c.Load(ctx, uid)
		if err != nil {
			return err
		}
		if ifRevision != "" && CheckConflict(ifRevision, d.Revision()) {
			return ErrConflict
		}
		if err := fn(d); err != nil {
			return err
		}
		if err := c.store(ctx, uid, d); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Save replaces the stored draft with d and plays the send animation.
func (c *Composer) Save(ctx context.Context, uid string, d *Draft, ifRevision string) (*Draft, error) {
	snapshot := d.Snapshot()
	saved, err := c.Update(ctx, uid, ifRevision, func(stored *Draft) error {
		next := FromSnapshot(snapshot)
		stored.mu.Lock()
		stored.letters = next.letters
		stored.currentTheme = next.currentTheme
		stored.currentFont = next.currentFont
		stored.currentPage = next.currentPage
		stored.pageSettings = next.pageSettings
		stored.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.playSend(uid)
	return saved, nil
}

// Discard deletes the stored draft. onComplete runs after the delete
// animation.
func (c *Composer) Discard(ctx context.Context, uid string, onComplete func()) error {
	if err := c.kv.Delete(ctx, draftKey(uid)); err != nil {
		return apperror.Persistence("discard draft", err)
	}
	if f := c.player(uid); f != nil {
		f.Delete(onComplete)
	} else if onComplete != nil {
		onComplete()
	}
	return nil
}

// Send turns the stored draft into a letter from uid to the recipient and
// starts a new draft. Empty letters are rejected before anything is written.
// A draft saved while the letter was being written is kept.
func (c *Composer) Send(ctx context.Context, uid, to, title string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", apperror.Validation("to", "recipient is required")
	}

	d, err := c.Load(ctx, uid)
	if err != nil {
		return "", err
	}
	if err := letter.ValidateSendable(d.Pages()); err != nil {
		return "", err
	}

	input := d.LetterDraft(uid)
	input.ID = c.letterID(uid, "send", d.Revision())
	input.From = uid
	input.To = to
	input.Title = title
	if strings.TrimSpace(input.Title) == "" {
		input.Title = model.DefaultTitle
	}

	id, err := c.letters.Create(ctx, input)
	if err != nil {
		return "", err
	}
	c.playSend(uid)

	_, err = c.Update(ctx, uid, d.Revision(), func(d *Draft) error {
		d.Reset()
		return nil
	})
	switch {
	case errors.Is(err, ErrConflict):
		c.log.With("user", uid).Warn("draft changed while sending, keeping it")
	case err != nil:
		c.log.With("user", uid).Error(err, "letter sent but draft was not reset")
	}
	return id, nil
}

// SaveToStore stores the draft as a letter without recipient.
func (c *Composer) SaveToStore(ctx context.Context, uid string) (string, error) {
	d, err := c.Load(ctx, uid)
	if err != nil {
		return "", err
	}
	input := d.LetterDraft(uid)
	input.ID = c.letterID(uid, "store", d.Revision())
	return c.letters.Create(ctx, input)
}

// Edit opens a stored letter of uid as the current draft.
func (c *Composer) Edit(ctx context.Context, uid, letterID string) (*Draft, error) {
	l, err := c.letters.GetFor(ctx, uid, letterID)
	if err != nil {
		return nil, err
	}
	opened := FromLetter(l)
	return c.Update(ctx, uid, "", func(d *Draft) error {
		s := opened.Snapshot()
		d.mu.Lock()
		d.letters = s.Letters
		d.currentTheme = s.CurrentTheme
		d.currentFont = s.Font
		d.currentPage = 0
		d.pageSettings = s.PageSettings
		d.mu.Unlock()
		return nil
	})
}

// letterID derives the letter id from the draft revision so that retrying a
// send of the same draft does not create a second letter.
func (c *Composer) letterID(uid, op, revision string) string {
	if revision == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(letterIDSpace, []byte(op+":"+uid+":"+revision)).String()
}

func (c *Composer) player(uid string) *editor.Feedback {
	if c.feedback == nil {
		return nil
	}
	return c.feedback(uid)
}

func (c *Composer) playSend(uid string) {
	if f := c.player(uid); f != nil {
		f.Send(nil)
	}
}
