package letter

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/adapter/memory"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/notify"
	"github.com/jun/dijitalmektup/internal/session"
	"github.com/jun/dijitalmektup/internal/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	redPNG  = "data:image/png;base64,cmVk"
	bluePNG = "data:image/png;base64,Ymx1ZQ=="
)

type fixture struct {
	svc     *Service
	store   *memory.LetterStore
	objects *memory.Objects
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := memory.NewLetterStore(nil, "")
	objects := memory.NewObjects("http://localhost:8080")
	svc := NewService(store, adapter.StaticProvider{Store: objects}, opts...)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return fixture{svc: svc, store: store, objects: objects}
}

func sortedKeys(o *memory.Objects) []string {
	keys := o.Keys()
	sort.Strings(keys)
	return keys
}

func TestCreate_ResolvesBuiltinTheme(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, model.LetterDraft{
		Content: []string{"Hello", "World"},
		Theme:   "paper1",
		Font:    "Dancing Script",
		Owner:   "alice",
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Content, 2)
	for _, p := range got.Content {
		assert.Equal(t, "/images/paper3.jpeg", p.Theme)
		assert.Equal(t, "Dancing Script", p.Font)
		assert.Equal(t, model.DefaultColor, p.Color)
	}
	assert.Equal(t, int64(1700000000000), got.Timestamp)
	assert.Empty(t, f.objects.Keys(), "no uploads for a built-in theme")
}

func TestCreate_RoundTripCanonicalizesPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := []string{"  <p>Sevgili</p>\n", "", "<p><br></p>", "   "}
	id, err := f.svc.Create(ctx, model.LetterDraft{Content: input, Theme: "paper2", Owner: "alice"})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Content, len(input))
	assert.Equal(t, "<p>Sevgili</p>", got.Content[0].HTML)
	for _, p := range got.Content[1:] {
		assert.Equal(t, markup.EmptyPage, p.HTML)
	}
	assert.Equal(t, model.DefaultFont, got.Content[0].Font)
}

func TestCreate_PageSettingsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, model.LetterDraft{
		Content: []string{"a", "b"},
		Theme:   "paper3",
		Font:    "serif",
		Owner:   "alice",
		PageSettings: model.PageSettings{
			1: {Font: "cursive", Paper: "paper2.jpeg", Color: "#ff0000"},
		},
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Page{HTML: "a", Font: "serif", Theme: "/images/paper3.jpeg", Color: model.DefaultColor}, got.Content[0])
	assert.Equal(t, model.Page{HTML: "b", Font: "cursive", Theme: "/images/paper2.jpeg", Color: "#ff0000"}, got.Content[1])
}

func TestCreate_UploadsBinaryPayloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, model.LetterDraft{
		ID:      id,
		Content: []string{"a", "b", "c"},
		Theme:   redPNG,
		Owner:   "alice",
		PageSettings: model.PageSettings{
			1: {Paper: redPNG},
			2: {Paper: bluePNG},
		},
		ImageOverlay: bluePNG,
		Drawings:     []model.Drawing{{URL: redPNG, Width: 10, Height: 10}, {URL: "https://cdn.example.com/d.png"}},
	})
	require.NoError(t, err)

	// identical themes are stored once, overlays and drawings keep their own keys
	assert.Equal(t, []string{
		"drawings/" + id + "_0.png",
		"images/" + id + "_overlay.png",
		"themes/" + id + "_global_theme.png",
		"themes/" + id + "_page_2_theme.png",
	}, sortedKeys(f.objects))

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	globalURL := f.objects.URL("themes/" + id + "_global_theme.png")
	assert.Equal(t, globalURL, got.Theme)
	assert.Equal(t, globalURL, got.Content[0].Theme)
	assert.Equal(t, globalURL, got.Content[1].Theme)
	assert.Equal(t, f.objects.URL("themes/"+id+"_page_2_theme.png"), got.Content[2].Theme)
	assert.Equal(t, f.objects.URL("images/"+id+"_overlay.png"), got.ImageOverlay)
	assert.Equal(t, f.objects.URL("drawings/"+id+"_0.png"), got.Drawings[0].URL)
	assert.Equal(t, "https://cdn.example.com/d.png", got.Drawings[1].URL)

	data, contentType, err := f.objects.GetObject("themes/" + id + "_global_theme.png")
	require.NoError(t, err)
	assert.Equal(t, "red", string(data))
	assert.Equal(t, "image/png", contentType)
}

func TestCreate_OverlayAndDrawingSharingThemeBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, model.LetterDraft{
		ID:           id,
		Content:      []string{"a"},
		Theme:        redPNG,
		Owner:        "alice",
		ImageOverlay: redPNG,
		Drawings:     []model.Drawing{{URL: redPNG}},
	})
	require.NoError(t, err)

	for _, key := range []string{overlayKey(id), drawingKey(id, 0)} {
		data, _, err := f.objects.GetObject(key)
		require.NoError(t, err, key)
		assert.Equal(t, "red", string(data))
	}

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.objects.URL(overlayKey(id)), got.ImageOverlay)
	assert.Equal(t, f.objects.URL(drawingKey(id, 0)), got.Drawings[0].URL)
}

func TestCreate_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := model.LetterDraft{ID: uuid.NewString(), Content: []string{"x"}, Theme: redPNG, Owner: "alice"}

	first, err := f.svc.Create(ctx, draft)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, draft)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.svc.All(ctx, "alice"), 1)
	assert.Len(t, f.objects.Keys(), 1)
}

func TestCreate_WithoutIDCreatesDistinctLetters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := model.LetterDraft{Content: []string{"x"}, Owner: "alice"}

	first, err := f.svc.Create(ctx, draft)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, draft)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCreate_RejectsForeignID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, model.LetterDraft{ID: id, Content: []string{"x"}, Owner: "alice"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, model.LetterDraft{ID: id, Content: []string{"y"}, Owner: "mallory"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		draft model.LetterDraft
	}{
		{"bad id", model.LetterDraft{ID: "not-a-uuid", Owner: "alice"}},
		{"no owner", model.LetterDraft{Content: []string{"x"}}},
		{"bad color", model.LetterDraft{Owner: "alice", PageSettings: model.PageSettings{0: {Color: "red"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.draft)
			assert.True(t, apperror.Is(err, apperror.KindValidation), "got %v", err)
		})
	}
}

type failingCreateStore struct {
	*memory.LetterStore
}

func (failingCreateStore) CreateLetter(ctx context.Context, letter *model.Letter) error {
	return errors.New("write failed")
}

func TestCreate_CompensatesOnStoreFailure(t *testing.T) {
	objects := memory.NewObjects("")
	svc := NewService(failingCreateStore{memory.NewLetterStore(nil, "")}, adapter.StaticProvider{Store: objects})

	_, err := svc.Create(context.Background(), model.LetterDraft{
		Content:      []string{"x"},
		Theme:        redPNG,
		ImageOverlay: bluePNG,
		Owner:        "alice",
	})
	assert.True(t, apperror.Is(err, apperror.KindPersistence))
	assert.Empty(t, objects.Keys(), "staged objects should be removed")
}

// flakyObjects fails every PutObject after the first `ok` calls.
type flakyObjects struct {
	*memory.Objects
	ok int
}

func (f *flakyObjects) PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.ok == 0 {
		return "", errors.New("quota")
	}
	f.ok--
	return f.Objects.PutObject(ctx, key, data, contentType)
}

func TestCreate_CompensatesOnUploadFailure(t *testing.T) {
	objects := &flakyObjects{Objects: memory.NewObjects(""), ok: 1}
	store := memory.NewLetterStore(nil, "")
	svc := NewService(store, adapter.StaticProvider{Store: objects})

	_, err := svc.Create(context.Background(), model.LetterDraft{
		Content:      []string{"x"},
		Theme:        redPNG,
		ImageOverlay: bluePNG,
		Owner:        "alice",
	})
	assert.True(t, apperror.Is(err, apperror.KindPersistence))
	assert.Empty(t, objects.Keys())

	letters, err := store.ListLetters(context.Background(), adapter.LetterQuery{})
	require.NoError(t, err)
	assert.Empty(t, letters, "no partial record is written")
}

func TestCreate_UploadsCustomTheme(t *testing.T) {
	registry := theme.NewRegistry(memory.NewKV(), session.NewMemoryLocker(), nil)
	custom, err := registry.AddCustom(context.Background(), "alice", "Beach", bluePNG)
	require.NoError(t, err)

	f := newFixture(t, WithThemes(registry))
	id, err := f.svc.Create(context.Background(), model.LetterDraft{Content: []string{"x"}, Theme: custom.ID, Owner: "alice"})
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, f.objects.URL("themes/"+id+"_global_theme.png"), got.Theme)
}

func TestCreate_NotifiesRecipient(t *testing.T) {
	ps := memory.NewPubSub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan notify.Event, 1)
	require.NoError(t, ps.Subscribe(ctx, notify.Channel("bob"), func(message []byte) {
		var e notify.Event
		if json.Unmarshal(message, &e) == nil {
			events <- e
		}
	}))

	f := newFixture(t, WithNotifier(notify.NewNotifier(ps, nil)))
	_, err := f.svc.Create(ctx, model.LetterDraft{Content: []string{"x"}, Owner: "alice", From: "alice", To: "bob"})
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Equal(t, notify.TypeLetterReceived, e.Type)
	default:
		t.Fatal("recipient was not notified")
	}
}

func TestLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mk := func(ts int64, from, to, owner string) string {
		id, err := f.svc.Create(ctx, model.LetterDraft{Content: []string{"x"}, From: from, To: to, Owner: owner, Timestamp: ts})
		require.NoError(t, err)
		return id
	}
	sent := mk(1, "alice", "bob", "alice")
	received := mk(3, "bob", "alice", "bob")
	draft := mk(2, "", "", "alice")
	mk(4, "bob", "carol", "bob")

	ids := func(letters []model.Letter) []string {
		out := make([]string, len(letters))
		for i, l := range letters {
			out[i] = l.ID
		}
		return out
	}

	assert.Equal(t, []string{sent}, ids(f.svc.Sent(ctx, "alice")))
	assert.Equal(t, []string{received}, ids(f.svc.Received(ctx, "alice")))
	assert.Equal(t, []string{draft}, ids(f.svc.Drafts(ctx, "alice")))
	assert.Equal(t, []string{received, draft, sent}, ids(f.svc.All(ctx, "alice")))
}

type failingListStore struct {
	*memory.LetterStore
}

func (failingListStore) ListLetters(ctx context.Context, q adapter.LetterQuery) ([]model.Letter, error) {
	return nil, errors.New("unavailable")
}

func TestList_FailureYieldsEmpty(t *testing.T) {
	svc := NewService(failingListStore{memory.NewLetterStore(nil, "")}, adapter.StaticProvider{Store: memory.NewObjects("")})
	got := svc.List(context.Background(), adapter.LetterQuery{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDelete_Structured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, model.LetterDraft{
		Content:      []string{"a", "b"},
		Theme:        redPNG,
		PageSettings: model.PageSettings{1: {Paper: bluePNG}},
		ImageOverlay: bluePNG,
		Drawings:     []model.Drawing{{URL: "data:image/png;base64,ZHJhdw=="}},
		Owner:        "alice",
		From:         "alice",
		To:           "bob",
	})
	require.NoError(t, err)
	require.NotEmpty(t, f.objects.Keys())

	require.NoError(t, f.svc.Delete(ctx, "bob", id))
	assert.Empty(t, f.objects.Keys())

	_, err = f.svc.Get(ctx, id)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestDelete_LegacyRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.PutRaw(memory.LetterItem{
		PK:    "old",
		Owner: "alice",
		Body:  `{"content":["<p>eski</p>"],"theme":"https://x/themes/old_theme.png","owner":"alice","drawings":[{"url":"https://x/d0"},{"url":"https://x/d1"}],"timestamp":1}`,
	})
	for _, key := range []string{"themes/old_theme.png", "drawings/old_0.png", "drawings/old_1.png", "unrelated.png"} {
		_, err := f.objects.PutObject(ctx, key, []byte("x"), "image/png")
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Delete(ctx, "alice", "old"))
	assert.Equal(t, []string{"unrelated.png"}, f.objects.Keys())
}

type undeletableObjects struct {
	*memory.Objects
}

func (undeletableObjects) DeleteObject(ctx context.Context, key string) error {
	return errors.New("permission denied")
}

func TestDelete_ObjectFailureIsQueued(t *testing.T) {
	store := memory.NewLetterStore(nil, "")
	objects := undeletableObjects{memory.NewObjects("")}
	queue := memory.NewQueue(10, time.Millisecond)
	svc := NewService(store, adapter.StaticProvider{Store: objects}, WithCleanupQueue(queue))
	ctx := context.Background()

	id, err := svc.Create(ctx, model.LetterDraft{Content: []string{"a"}, Owner: "alice", Drawings: []model.Drawing{{URL: "https://x/d"}}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "alice", id))
	// global theme, one page theme and one drawing
	assert.Equal(t, 3, queue.Len())

	_, err = svc.Get(ctx, id)
	assert.True(t, apperror.Is(err, apperror.KindNotFound), "document is deleted regardless")
}

func TestDelete_NotVisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Create(ctx, model.LetterDraft{Content: []string{"a"}, Owner: "alice"})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, "mallory", id)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = f.svc.Get(ctx, id)
	assert.NoError(t, err)
}

func TestValidateSendable(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		ok    bool
	}{
		{"no pages", nil, false},
		{"empty strings", []string{"", "  "}, false},
		{"empty paragraphs", []string{"<p><br></p>", " <p><br></p> "}, false},
		{"one page with text", []string{"", "<p>Merhaba</p>"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSendable(tt.pages)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.Is(err, apperror.KindValidation))
			}
		})
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, model.LetterDraft{Title: "Doğum günün", Content: []string{"<p>İyi ki doğdun</p>"}, Owner: "alice"})
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, model.LetterDraft{Content: []string{"<p>Denize <b>gidelim</b></p>"}, Owner: "bob", From: "bob", To: "alice"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, model.LetterDraft{Content: []string{"<p>gidelim</p>"}, Owner: "carol"})
	require.NoError(t, err)

	byTitle := f.svc.Search(ctx, "alice", "GÜNÜN")
	require.Len(t, byTitle, 1)
	assert.Equal(t, a, byTitle[0].ID)

	byText := f.svc.Search(ctx, "alice", "gidelim")
	require.Len(t, byText, 1)
	assert.Equal(t, b, byText[0].ID)

	assert.Empty(t, f.svc.Search(ctx, "alice", "  "))
}
