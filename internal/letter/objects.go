package letter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/dataurl"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/theme"
)

func globalThemeKey(id string) string { return fmt.Sprintf("themes/%s_global_theme.png", id) }

func pageThemeKey(id string, n int) string { return fmt.Sprintf("themes/%s_page_%d_theme.png", id, n) }

func overlayKey(id string) string { return fmt.Sprintf("images/%s_overlay.png", id) }

func drawingKey(id string, n int) string { return fmt.Sprintf("drawings/%s_%d.png", id, n) }

// legacyThemeKey held the single theme of letters written before per-page themes.
func legacyThemeKey(id string) string { return fmt.Sprintf("themes/%s_theme.png", id) }

// objectKeys lists every key the letter may have objects under.
func objectKeys(l *model.Letter) []string {
	var keys []string
	if l.Legacy {
		keys = append(keys, legacyThemeKey(l.ID))
	} else {
		keys = append(keys, globalThemeKey(l.ID))
		for i := range l.Content {
			keys = append(keys, pageThemeKey(l.ID, i))
		}
		if l.ImageOverlay != "" {
			keys = append(keys, overlayKey(l.ID))
		}
	}
	for i := range l.Drawings {
		keys = append(keys, drawingKey(l.ID, i))
	}
	return keys
}

// stager uploads the binary payloads of one letter. Theme payloads are
// identified by digest so a paper used on several pages is stored once;
// overlays and drawings always get their own key.
type stager struct {
	store    adapter.ObjectStore
	log      *logger.Logger
	byDigest map[string]string
	keys     []string
}

func newStager(store adapter.ObjectStore, log *logger.Logger) *stager {
	return &stager{store: store, log: log, byDigest: make(map[string]string)}
}

// put uploads value under key when it is a data URL and returns the URL to
// reference. Any other value is returned unchanged.
func (s *stager) put(ctx context.Context, key, value string) (string, error) {
	if !dataurl.Is(value) {
		return value, nil
	}
	d, err := dataurl.Parse(value)
	if err != nil {
		return "", err
	}
	url, err := s.store.PutObject(ctx, key, d.Data, d.MediaType)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	s.keys = append(s.keys, key)
	return url, nil
}

// putTheme is put for theme keys, reusing an earlier theme upload of the
// same payload.
func (s *stager) putTheme(ctx context.Context, key, value string) (string, error) {
	if !dataurl.Is(value) {
		return value, nil
	}
	digest := dataurl.Digest(value)
	if url, ok := s.byDigest[digest]; ok {
		return url, nil
	}
	url, err := s.put(ctx, key, value)
	if err != nil {
		return "", err
	}
	s.byDigest[digest] = url
	return url, nil
}

// theme turns a theme value into a URL: data URLs are uploaded, URLs and
// paths are kept and identifiers are resolved through the catalog.
func (s *stager) theme(ctx context.Context, key, value string, catalog *theme.Catalog) (string, error) {
	switch {
	case dataurl.Is(value):
		return s.putTheme(ctx, key, value)
	case theme.IsReference(value):
		return value, nil
	default:
		// custom themes resolve to the data URL they were uploaded as
		return s.putTheme(ctx, key, catalog.Resolve(value))
	}
}

// compensate deletes everything uploaded so far.
func (s *stager) compensate(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range s.keys {
		if err := s.store.DeleteObject(ctx, key); err != nil && !errors.Is(err, adapter.ErrNotFound) {
			s.log.With("key", key).Error(err, "failed to remove staged object")
		}
	}
	s.keys = nil
}
