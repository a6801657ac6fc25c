// Package letter creates, lists and deletes letters together with the images
// they reference in object storage.
package letter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/cleanup"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/mq"
	"github.com/jun/dijitalmektup/internal/notify"
	"github.com/jun/dijitalmektup/internal/theme"
	"github.com/jun/dijitalmektup/internal/validation"
)

// Service is the letter store façade used by the API.
type Service struct {
	store    adapter.LetterStore
	objects  adapter.ObjectProvider
	themes   *theme.Registry
	cleanup  mq.MessageQueue
	notifier *notify.Notifier
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithThemes resolves custom theme identifiers through the owner's registry.
func WithThemes(r *theme.Registry) Option {
	return func(s *Service) { s.themes = r }
}

// WithCleanupQueue sends objects that could not be deleted to q.
func WithCleanupQueue(q mq.MessageQueue) Option {
	return func(s *Service) { s.cleanup = q }
}

func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store adapter.LetterStore, objects adapter.ObjectProvider, opts ...Option) *Service {
	s := &Service{
		store:   store,
		objects: objects,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSendable rejects a letter whose pages are all blank.
func ValidateSendable(pages []string) error {
	for _, p := range pages {
		if !markup.IsBlank(p) {
			return nil
		}
	}
	return apperror.Validation("content", "letter is empty")
}

// Create stores the draft as a letter and returns its id.
//
// The draft's id is the idempotency key: binary payloads are uploaded first
// under keys derived from it, then the record is written in one insert. A
// repeated call with the same id returns without writing anything.
func (s *Service) Create(ctx context.Context, draft model.LetterDraft) (string, error) {
	if err := validation.Struct(draft); err != nil {
		return "", err
	}

	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := s.log.WithFields(map[string]any{"letter": id, "owner": draft.Owner})

	existing, err := s.store.GetLetter(ctx, id)
	switch {
	case err == nil:
		if existing.Owner != draft.Owner {
			return "", apperror.Validation("id", "already used by another letter")
		}
		log.Debug("letter already created")
		return id, nil
	case !errors.Is(err, adapter.ErrNotFound):
		return "", apperror.Persistence("create", err)
	}

	objects, err := s.objects.GetObjectStore(ctx, draft.Owner)
	if err != nil {
		return "", apperror.Persistence("create", fmt.Errorf("resolving object store: %w", err))
	}
	st := newStager(objects, log)

	letter, err := s.assemble(ctx, st, id, draft)
	if err != nil {
		st.compensate(ctx)
		return "", apperror.Persistence("create", err)
	}

	if err := s.store.CreateLetter(ctx, letter); err != nil {
		if errors.Is(err, adapter.ErrAlreadyExists) {
			// a concurrent call with the same id won; its record references
			// the same object keys, so nothing is rolled back
			return id, nil
		}
		st.compensate(ctx)
		return "", apperror.Persistence("create", err)
	}

	log.Info("letter created")
	s.notifier.LetterReceived(ctx, letter)
	return id, nil
}

func (s *Service) assemble(ctx context.Context, st *stager, id string, draft model.LetterDraft) (*model.Letter, error) {
	catalog := s.catalog(ctx, draft.Owner)

	globalTheme, err := st.theme(ctx, globalThemeKey(id), draft.Theme, catalog)
	if err != nil {
		return nil, fmt.Errorf("uploading theme: %w", err)
	}

	pages := make([]model.Page, len(draft.Content))
	for i, html := range draft.Content {
		setting := draft.PageSettings[i]

		pageTheme := globalTheme
		if setting.Paper != "" {
			pageTheme, err = st.theme(ctx, pageThemeKey(id, i), setting.Paper, catalog)
			if err != nil {
				return nil, fmt.Errorf("uploading theme of page %d: %w", i+1, err)
			}
		}

		pages[i] = model.Page{
			HTML:  markup.Canonicalize(html),
			Font:  firstNonEmpty(setting.Font, draft.Font, model.DefaultFont),
			Theme: pageTheme,
			Color: firstNonEmpty(setting.Color, model.DefaultColor),
		}
	}

	overlay := draft.ImageOverlay
	if overlay != "" {
		if overlay, err = st.put(ctx, overlayKey(id), overlay); err != nil {
			return nil, fmt.Errorf("uploading overlay: %w", err)
		}
	}

	var drawings []model.Drawing
	if len(draft.Drawings) > 0 {
		drawings = make([]model.Drawing, len(draft.Drawings))
		for i, d := range draft.Drawings {
			if d.URL, err = st.put(ctx, drawingKey(id, i), d.URL); err != nil {
				return nil, fmt.Errorf("uploading drawing %d: %w", i, err)
			}
			drawings[i] = d
		}
	}

	timestamp := draft.Timestamp
	if timestamp == 0 {
		timestamp = s.now().UnixMilli()
	}

	return &model.Letter{
		ID:           id,
		Title:        draft.Title,
		Content:      pages,
		Theme:        globalTheme,
		Font:         draft.Font,
		From:         draft.From,
		To:           draft.To,
		Owner:        draft.Owner,
		Stickers:     draft.Stickers,
		Drawings:     drawings,
		ImageOverlay: overlay,
		Timestamp:    timestamp,
	}, nil
}

func (s *Service) catalog(ctx context.Context, owner string) *theme.Catalog {
	if s.themes == nil {
		return theme.NewCatalog(nil)
	}
	return s.themes.Catalog(ctx, owner)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// List returns matching letters, newest first. Store failures are logged and
// yield an empty list.
func (s *Service) List(ctx context.Context, query adapter.LetterQuery) []model.Letter {
	letters, err := s.store.ListLetters(ctx, query)
	if err != nil {
		s.log.Error(err, "failed to list letters")
		return []model.Letter{}
	}
	if letters == nil {
		return []model.Letter{}
	}
	for i := range letters {
		letters[i].Normalize()
	}
	return letters
}

// Sent lists letters sent by uid.
func (s *Service) Sent(ctx context.Context, uid string) []model.Letter {
	return s.List(ctx, adapter.LetterQuery{From: uid})
}

// Received lists letters addressed to uid.
func (s *Service) Received(ctx context.Context, uid string) []model.Letter {
	return s.List(ctx, adapter.LetterQuery{To: uid})
}

// Drafts lists letters uid saved without a recipient.
func (s *Service) Drafts(ctx context.Context, uid string) []model.Letter {
	return s.List(ctx, adapter.LetterQuery{Owner: uid, DraftsOnly: true})
}

// All lists every letter uid created or received.
func (s *Service) All(ctx context.Context, uid string) []model.Letter {
	seen := make(map[string]struct{})
	out := []model.Letter{}
	for _, q := range []adapter.LetterQuery{{Owner: uid}, {To: uid}} {
		for _, l := range s.List(ctx, q) {
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}

// Get fetches one letter with legacy pages migrated.
func (s *Service) Get(ctx context.Context, id string) (*model.Letter, error) {
	l, err := s.store.GetLetter(ctx, id)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, apperror.NotFound("get", "letter "+id+" not found")
		}
		return nil, apperror.Persistence("get", err)
	}
	l.Normalize()
	return l, nil
}

// GetFor fetches a letter uid may see.
func (s *Service) GetFor(ctx context.Context, uid, id string) (*model.Letter, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.VisibleTo(uid) {
		return nil, apperror.NotFound("get", "letter "+id+" not found")
	}
	return l, nil
}

// Delete removes a letter uid can see. Its objects are deleted first on a
// best-effort basis; objects that cannot be removed are queued for cleanup.
func (s *Service) Delete(ctx context.Context, uid, id string) error {
	l, err := s.GetFor(ctx, uid, id)
	if err != nil {
		return err
	}
	log := s.log.WithFields(map[string]any{"letter": id, "user": uid})

	owner := firstNonEmpty(l.Owner, l.From, uid)
	s.deleteObjects(ctx, owner, l, log)

	if err := s.store.DeleteLetter(ctx, id); err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return apperror.NotFound("delete", "letter "+id+" not found")
		}
		return apperror.Persistence("delete", err)
	}
	log.Info("letter deleted")

	for _, other := range []string{l.From, l.To} {
		if other != "" && other != uid {
			s.notifier.LetterDeleted(ctx, other, id)
		}
	}
	return nil
}

func (s *Service) deleteObjects(ctx context.Context, owner string, l *model.Letter, log *logger.Logger) {
	objects, err := s.objects.GetObjectStore(ctx, owner)
	if err != nil {
		log.Error(err, "failed to resolve object store, skipping object cleanup")
		return
	}

	for _, key := range objectKeys(l) {
		err := objects.DeleteObject(ctx, key)
		if err == nil || errors.Is(err, adapter.ErrNotFound) {
			continue
		}
		log.With("key", key).Error(err, "failed to delete letter object")
		s.enqueueCleanup(ctx, cleanup.Task{Key: key, Owner: owner, LetterID: l.ID}, log)
	}
}

func (s *Service) enqueueCleanup(ctx context.Context, task cleanup.Task, log *logger.Logger) {
	if s.cleanup == nil {
		return
	}
	if err := cleanup.Enqueue(ctx, s.cleanup, task); err != nil {
		log.With("key", task.Key).Error(err, "failed to enqueue object cleanup")
	}
}

// Search returns uid's letters whose title or text contains q, ignoring case.
func (s *Service) Search(ctx context.Context, uid, q string) []model.Letter {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := []model.Letter{}
	if needle == "" {
		return out
	}
	for _, l := range s.All(ctx, uid) {
		if matches(&l, needle) {
			out = append(out, l)
		}
	}
	return out
}

func matches(l *model.Letter, needle string) bool {
	if strings.Contains(strings.ToLower(l.Title), needle) {
		return true
	}
	for _, p := range l.Content {
		if strings.Contains(strings.ToLower(markup.PlainText(p.HTML)), needle) {
			return true
		}
	}
	return false
}
