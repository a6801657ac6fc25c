// Package theme resolves paper theme identifiers to background image URLs and
// keeps each user's uploaded custom themes.
package theme

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/session"
)

const (
	// DefaultURL is the background used whenever an identifier cannot be resolved.
	DefaultURL = "/images/paper3.jpeg"
	// CustomPrefix marks identifiers of user uploaded themes.
	CustomPrefix = "custom-"

	customThemesKey = "letter-app-custom-themes"
)

// Builtin describes a theme shipped with the application.
type Builtin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

var builtins = []Builtin{
	// paper1 is served from the paper3 image until its own asset ships.
	{ID: "paper1.jpeg", Name: "Klasik", Description: "Geleneksel mektup kağıdı", URL: "/images/paper3.jpeg"},
	{ID: "paper2.jpeg", Name: "Vintage", Description: "Eskitilmiş, nostaljik tasarım", URL: "/images/paper2.jpeg"},
	{ID: "paper3.jpeg", Name: "Modern", Description: "Sade ve şık tasarım", URL: "/images/paper3.jpeg"},
}

// Builtins lists the shipped themes.
func Builtins() []Builtin {
	out := make([]Builtin, len(builtins))
	copy(out, builtins)
	return out
}

func builtinURL(id string) (string, bool) {
	for _, b := range builtins {
		if id == b.ID || id == strings.TrimSuffix(b.ID, ".jpeg") {
			return b.URL, true
		}
	}
	return "", false
}

// IsReference reports whether s is already a URL or path rather than an identifier.
func IsReference(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(s, "/")
}

// Catalog is a snapshot of the themes visible to one user.
type Catalog struct {
	custom map[string]string
}

// NewCatalog builds a catalog over the given custom themes.
func NewCatalog(custom []model.CustomTheme) *Catalog {
	c := &Catalog{custom: make(map[string]string, len(custom))}
	for _, t := range custom {
		c.custom[t.ID] = t.URL
	}
	return c
}

// Resolve maps an identifier to a background URL. It never returns "".
func (c *Catalog) Resolve(id string) string {
	if url, ok := builtinURL(id); ok {
		return url
	}
	if strings.HasPrefix(id, CustomPrefix) && c != nil {
		if url := c.custom[id]; url != "" {
			return url
		}
	}
	return DefaultURL
}

// Registry stores custom themes per owner in a KV store.
type Registry struct {
	kv     adapter.KVStore
	locker session.Locker
	log    *logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	lastID int64
}

// NewRegistry creates a Registry. A nil kv yields empty lists and failing adds.
func NewRegistry(kv adapter.KVStore, locker session.Locker, log *logger.Logger) *Registry {
	return &Registry{kv: kv, locker: locker, log: log, now: time.Now}
}

func storageKey(owner string) string {
	return customThemesKey + ":" + owner
}

// ListCustom returns the owner's custom themes. Missing, unreadable or corrupt
// entries yield an empty list.
func (r *Registry) ListCustom(ctx context.Context, owner string) []model.CustomTheme {
	themes, err := r.load(ctx, owner)
	if err != nil {
		r.log.With("owner", owner).Error(err, "failed to read custom themes")
		return []model.CustomTheme{}
	}
	return themes
}

func (r *Registry) load(ctx context.Context, owner string) ([]model.CustomTheme, error) {
	if r.kv == nil {
		return []model.CustomTheme{}, nil
	}
	raw, err := r.kv.Get(ctx, storageKey(owner))
	if errors.Is(err, adapter.ErrNotFound) {
		return []model.CustomTheme{}, nil
	}
	if err != nil {
		return nil, err
	}

	var themes []model.CustomTheme
	if err := json.Unmarshal(raw, &themes); err != nil {
		return nil, fmt.Errorf("corrupt custom theme list: %w", err)
	}
	if themes == nil {
		themes = []model.CustomTheme{}
	}
	return themes, nil
}

// AddCustom appends a theme and persists the whole list.
func (r *Registry) AddCustom(ctx context.Context, owner, name, url string) (model.CustomTheme, error) {
	if r.kv == nil {
		return model.CustomTheme{}, errors.New("custom themes are not available")
	}

	created := model.CustomTheme{
		ID:          r.nextID(),
		Name:        name,
		URL:         url,
		DateCreated: r.now().UTC().Format(time.RFC3339Nano),
	}

	err := session.WithLock(ctx, r.locker, "themes:"+owner, created.ID, func() error {
		themes, err := r.load(ctx, owner)
		if err != nil {
			// A corrupt list is replaced rather than blocking new uploads.
			r.log.With("owner", owner).Warn("replacing unreadable custom theme list")
			themes = []model.CustomTheme{}
		}
		themes = append(themes, created)

		raw, err := json.Marshal(themes)
		if err != nil {
			return err
		}
		return r.kv.Set(ctx, storageKey(owner), raw, 0)
	})
	if err != nil {
		return model.CustomTheme{}, fmt.Errorf("failed to save custom theme: %w", err)
	}
	return created, nil
}

// nextID returns custom-<unix ms>, bumped past the previous id on collision.
func (r *Registry) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := r.now().UnixMilli()
	if ms <= r.lastID {
		ms = r.lastID + 1
	}
	r.lastID = ms
	return CustomPrefix + strconv.FormatInt(ms, 10)
}

// Catalog loads the owner's custom themes into a resolver snapshot.
func (r *Registry) Catalog(ctx context.Context, owner string) *Catalog {
	return NewCatalog(r.ListCustom(ctx, owner))
}
