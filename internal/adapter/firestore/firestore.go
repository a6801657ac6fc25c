package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const lettersCollection = "letters"

// LetterStore implements adapter.LetterStore on a Firestore collection.
type LetterStore struct {
	client     *firestore.Client
	collection string
}

func NewLetterStore(client *firestore.Client) *LetterStore {
	return &LetterStore{client: client, collection: lettersCollection}
}

func (s *LetterStore) CreateLetter(ctx context.Context, letter *model.Letter) error {
	_, err := s.client.Collection(s.collection).Doc(letter.ID).Create(ctx, toDoc(letter))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return adapter.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create letter: %w", err)
	}
	return nil
}

func (s *LetterStore) GetLetter(ctx context.Context, id string) (*model.Letter, error) {
	snap, err := s.client.Collection(s.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get letter: %w", err)
	}
	if !snap.Exists() {
		return nil, adapter.ErrNotFound
	}
	return fromDoc(snap.Ref.ID, snap.Data()), nil
}

func (s *LetterStore) ListLetters(ctx context.Context, query adapter.LetterQuery) ([]model.Letter, error) {
	q := s.client.Collection(s.collection).Query
	if query.Owner != "" {
		q = q.Where("owner", "==", query.Owner)
	}
	if query.From != "" {
		q = q.Where("from", "==", query.From)
	}
	if query.To != "" {
		q = q.Where("to", "==", query.To)
	}
	q = q.OrderBy("timestamp", firestore.Desc)
	// Drafts are filtered after the fetch, so the limit can only be pushed down without them.
	if query.Limit > 0 && !query.DraftsOnly {
		q = q.Limit(query.Limit)
	}

	letters := []model.Letter{}
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list letters: %w", err)
		}
		l := fromDoc(snap.Ref.ID, snap.Data())
		if !query.Matches(l) {
			continue
		}
		letters = append(letters, *l)
		if query.Limit > 0 && len(letters) == query.Limit {
			break
		}
	}
	return letters, nil
}

func (s *LetterStore) DeleteLetter(ctx context.Context, id string) error {
	if _, err := s.client.Collection(s.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete letter: %w", err)
	}
	return nil
}

func toDoc(l *model.Letter) map[string]interface{} {
	pages := make([]interface{}, len(l.Content))
	for i, p := range l.Content {
		pages[i] = map[string]interface{}{
			"html":  p.HTML,
			"font":  p.Font,
			"theme": p.Theme,
			"color": p.Color,
		}
	}

	stickers := make([]interface{}, len(l.Stickers))
	for i, st := range l.Stickers {
		stickers[i] = map[string]interface{}{
			"id":       st.ID,
			"url":      st.URL,
			"position": map[string]interface{}{"x": st.Position.X, "y": st.Position.Y},
			"size":     st.Size,
		}
	}

	drawings := make([]interface{}, len(l.Drawings))
	for i, d := range l.Drawings {
		drawings[i] = map[string]interface{}{
			"url":    d.URL,
			"x":      d.X,
			"y":      d.Y,
			"width":  d.Width,
			"height": d.Height,
		}
	}

	doc := map[string]interface{}{
		"title":     l.Title,
		"content":   pages,
		"theme":     l.Theme,
		"font":      l.Font,
		"from":      l.From,
		"to":        l.To,
		"owner":     l.Owner,
		"stickers":  stickers,
		"drawings":  drawings,
		"timestamp": l.Timestamp,
	}
	if l.ImageOverlay != "" {
		doc["imageOverlay"] = l.ImageOverlay
	}
	return doc
}

// fromDoc decodes a stored document. Older documents hold pages as bare HTML
// strings and may store the timestamp as a Firestore timestamp.
func fromDoc(id string, data map[string]interface{}) *model.Letter {
	l := &model.Letter{
		ID:           id,
		Title:        str(data["title"]),
		Theme:        str(data["theme"]),
		Font:         str(data["font"]),
		From:         str(data["from"]),
		To:           str(data["to"]),
		Owner:        str(data["owner"]),
		ImageOverlay: str(data["imageOverlay"]),
		Timestamp:    millis(data["timestamp"]),
		Content:      []model.Page{},
	}

	if raw, ok := data["content"].([]interface{}); ok {
		for _, item := range raw {
			switch v := item.(type) {
			case string:
				l.Content = append(l.Content, model.NewLegacyPage(v))
			case map[string]interface{}:
				l.Content = append(l.Content, model.Page{
					HTML:  str(v["html"]),
					Font:  str(v["font"]),
					Theme: str(v["theme"]),
					Color: str(v["color"]),
				})
			}
		}
	}

	if raw, ok := data["stickers"].([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			st := model.Sticker{ID: str(m["id"]), URL: str(m["url"]), Size: num(m["size"])}
			if pos, ok := m["position"].(map[string]interface{}); ok {
				st.Position = model.Point{X: num(pos["x"]), Y: num(pos["y"])}
			}
			l.Stickers = append(l.Stickers, st)
		}
	}

	if raw, ok := data["drawings"].([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			l.Drawings = append(l.Drawings, model.Drawing{
				URL:    str(m["url"]),
				X:      num(m["x"]),
				Y:      num(m["y"]),
				Width:  num(m["width"]),
				Height: num(m["height"]),
			})
		}
	}

	l.Normalize()
	return l
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func millis(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case time.Time:
		return t.UnixMilli()
	default:
		return 0
	}
}
