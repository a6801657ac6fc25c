package handler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jun/dijitalmektup/internal/adapter/memory"
	"github.com/jun/dijitalmektup/internal/handler"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/session"
	"github.com/jun/dijitalmektup/internal/sticker"
	"github.com/jun/dijitalmektup/internal/theme"
)

const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg=="

func TestThemeHandler_AddAndList(t *testing.T) {
	registry := theme.NewRegistry(memory.NewKV(), session.NewMemoryLocker(), nil)
	h := handler.NewThemeHandler(registry, testAuth, nil)
	ctx := context.Background()

	resp, _ := h.AddTheme(ctx, makeRequest("POST", "/themes", `{"name":"Lavanta","url":"`+pngDataURL+`"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d: %s", resp.StatusCode, resp.Body)
	}

	resp, _ = h.AddTheme(ctx, makeRequest("POST", "/themes", `{"name":"Bozuk","url":"https://example.com/a.png"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non data URL, got %d", resp.StatusCode)
	}

	resp, _ = h.ListThemes(ctx, makeRequest("GET", "/themes", ""))
	var themes handler.ThemesResponse
	if err := json.Unmarshal([]byte(resp.Body), &themes); err != nil {
		t.Fatalf("Failed to unmarshal themes: %v", err)
	}
	if len(themes.Builtin) != 3 || themes.Default != theme.DefaultURL {
		t.Errorf("Unexpected built-in themes: %+v", themes)
	}
	if len(themes.Custom) != 1 || themes.Custom[0].Name != "Lavanta" {
		t.Errorf("Expected the uploaded theme, got %+v", themes.Custom)
	}

	resp, _ = h.ListThemes(ctx, makeRequestAs(otherUserID, "GET", "/themes", ""))
	if err := json.Unmarshal([]byte(resp.Body), &themes); err != nil {
		t.Fatalf("Failed to unmarshal themes: %v", err)
	}
	if len(themes.Custom) != 0 {
		t.Errorf("Custom themes leaked to another user: %+v", themes.Custom)
	}
}

type fakeStickers struct {
	items []model.Media
	err   error
	kind  sticker.Kind
	query string
}

func (f *fakeStickers) Search(ctx context.Context, kind sticker.Kind, q string, offset int) ([]model.Media, error) {
	f.kind, f.query = kind, q
	return f.items, f.err
}

func TestStickerHandler_Search(t *testing.T) {
	fake := &fakeStickers{items: []model.Media{{ID: "g1"}, {ID: "g2"}}}
	h := handler.NewStickerHandler(fake, testAuth, nil)

	req := makeRequest("GET", "/stickers", "")
	req.QueryStringParameters = map[string]string{"q": "kalp", "type": "gifs", "offset": "10"}
	resp, _ := h.Search(context.Background(), req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	var out handler.StickersResponse
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("Failed to unmarshal stickers: %v", err)
	}
	if len(out.Items) != 2 || out.NextOffset != 12 {
		t.Errorf("Unexpected page: %+v", out)
	}
	if fake.kind != sticker.KindGIFs || fake.query != "kalp" {
		t.Errorf("Unexpected search: %s %q", fake.kind, fake.query)
	}
}

func TestStickerHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"disabled", sticker.ErrDisabled, http.StatusNotImplemented},
		{"upstream", errors.New("giphy down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewStickerHandler(&fakeStickers{err: tt.err}, testAuth, nil)
			resp, _ := h.Search(context.Background(), makeRequest("GET", "/stickers", ""))
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestObjectHandler_Get(t *testing.T) {
	objects := memory.NewObjects("http://localhost:8080/api")
	if _, err := objects.PutObject(context.Background(), "themes/l1_global_theme.png", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	h := handler.NewObjectHandler(objects, nil)

	req := makeRequest("GET", "/objects/themes/l1_global_theme.png", "")
	req.PathParameters["key"] = "themes/l1_global_theme.png"
	resp, _ := h.Get(context.Background(), req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	if resp.Headers["Content-Type"] != "image/png" || !resp.IsBase64Encoded {
		t.Errorf("Unexpected headers: %+v", resp.Headers)
	}
	if data, _ := base64.StdEncoding.DecodeString(resp.Body); string(data) != "png-bytes" {
		t.Errorf("Unexpected body %q", data)
	}

	req.PathParameters["key"] = "themes/missing.png"
	if resp, _ := h.Get(context.Background(), req); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
