package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/handler"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
)

func decodeSnapshot(t *testing.T, resp events.APIGatewayProxyResponse) model.DraftSnapshot {
	t.Helper()
	var s model.DraftSnapshot
	if err := json.Unmarshal([]byte(resp.Body), &s); err != nil {
		t.Fatalf("Failed to unmarshal draft: %v (%s)", err, resp.Body)
	}
	return s
}

func pageRequest(method, n, body string) events.APIGatewayProxyRequest {
	req := makeRequest(method, "/draft/pages/"+n, body)
	req.PathParameters["n"] = n
	return req
}

func TestDraftHandler_GetFresh(t *testing.T) {
	h := handler.NewDraftHandler(newServices().composer, testAuth, nil)

	resp, err := h.Get(context.Background(), makeRequest("GET", "/draft", ""))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	s := decodeSnapshot(t, resp)
	if len(s.Letters) != 1 || s.Revision != "" {
		t.Errorf("Expected one empty unsaved page, got %+v", s)
	}
	if _, ok := resp.Headers["ETag"]; ok {
		t.Error("Unsaved draft must not carry an ETag")
	}
}

func TestDraftHandler_EditPages(t *testing.T) {
	h := handler.NewDraftHandler(newServices().composer, testAuth, nil)
	ctx := context.Background()

	resp, _ := h.UpdatePage(ctx, pageRequest("PUT", "0", `{"html":"<p>Sevgili dostum,</p>"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	s := decodeSnapshot(t, resp)
	if s.Letters[0] != "<p>Sevgili dostum,</p>" || s.Revision == "" {
		t.Errorf("Unexpected draft after edit: %+v", s)
	}
	if resp.Headers["ETag"] != `"`+s.Revision+`"` {
		t.Errorf("Expected ETag for revision %s, got %s", s.Revision, resp.Headers["ETag"])
	}

	resp, _ = h.UpdatePage(ctx, pageRequest("PUT", "0", `{"html":"<p>Nasılsın?</p>","append":true}`))
	s = decodeSnapshot(t, resp)
	if s.Letters[0] != "<p>Sevgili dostum,</p><p>Nasılsın?</p>" {
		t.Errorf("Expected appended content, got %q", s.Letters[0])
	}

	resp, _ = h.AddPage(ctx, makeRequest("POST", "/draft/pages", ""))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d", resp.StatusCode)
	}
	s = decodeSnapshot(t, resp)
	if len(s.Letters) != 2 || s.CurrentPage != 1 {
		t.Errorf("Expected second page to be current, got %+v", s)
	}

	resp, _ = h.UpdatePage(ctx, pageRequest("PUT", "1", `{"markdown":"**Kucaklar**"}`))
	s = decodeSnapshot(t, resp)
	if !strings.Contains(s.Letters[1], "<strong>Kucaklar</strong>") {
		t.Errorf("Expected rendered markdown, got %q", s.Letters[1])
	}

	resp, _ = h.DeletePage(ctx, pageRequest("DELETE", "0", ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	s = decodeSnapshot(t, resp)
	if len(s.Letters) != 1 || !strings.Contains(s.Letters[0], "Kucaklar") {
		t.Errorf("Expected only the second page to remain, got %+v", s.Letters)
	}

	if resp, _ := h.UpdatePage(ctx, pageRequest("PUT", "5", `{"html":"<p>x</p>"}`)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing page, got %d", resp.StatusCode)
	}
}

func TestDraftHandler_PageFull(t *testing.T) {
	h := handler.NewDraftHandler(newServices().composer, testAuth, nil)
	ctx := context.Background()
	if resp, _ := h.UpdatePage(ctx, pageRequest("PUT", "0", `{"html":"<p>kısa</p>"}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}

	long := "<p>" + strings.Repeat("a", 1200) + "</p>"
	resp, _ := h.UpdatePage(ctx, pageRequest("PUT", "0", `{"html":"`+long+`"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for overflowing page, got %d", resp.StatusCode)
	}

	resp, _ = h.Get(ctx, makeRequest("GET", "/draft", ""))
	if s := decodeSnapshot(t, resp); s.Letters[0] != "<p>kısa</p>" {
		t.Errorf("Rejected edit changed the page: %q", s.Letters[0])
	}
}

func TestDraftHandler_RevisionConflict(t *testing.T) {
	h := handler.NewDraftHandler(newServices().composer, testAuth, nil)
	ctx := context.Background()

	resp, _ := h.Put(ctx, makeRequest("PUT", "/draft", `{"letters":["<p>ilk</p>"],"currentTheme":"paper1","font":"serif"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	first := decodeSnapshot(t, resp).Revision

	resp, _ = h.Put(ctx, makeRequest("PUT", "/draft", `{"letters":["<p>ikinci</p>"],"revision":"`+first+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	second := decodeSnapshot(t, resp).Revision

	stale := makeRequest("PATCH", "/draft", `{"font":"cursive"}`)
	stale.Headers["If-Match"] = `"` + first + `"`
	if resp, _ := h.Patch(ctx, stale); resp.StatusCode != http.StatusPreconditionFailed {
		t.Errorf("Expected 412 for stale revision, got %d", resp.StatusCode)
	}

	check := func(rev string) handler.CheckResponse {
		resp, _ := h.Check(ctx, makeRequest("POST", "/draft/check", `{"revision":"`+rev+`"}`))
		var out handler.CheckResponse
		if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
			t.Fatalf("Failed to unmarshal check: %v", err)
		}
		return out
	}
	if c := check(first); !c.HasConflict || c.Revision != second {
		t.Errorf("Expected conflict against %s, got %+v", second, c)
	}
	if c := check(second); c.HasConflict {
		t.Errorf("Expected no conflict, got %+v", c)
	}
}

func TestDraftHandler_Patch(t *testing.T) {
	h := handler.NewDraftHandler(newServices().composer, testAuth, nil)
	ctx := context.Background()
	h.AddPage(ctx, makeRequest("POST", "/draft/pages", ""))

	resp, _ := h.Patch(ctx, makeRequest("PATCH", "/draft", `{"theme":"paper2","font":"cursive","currentPage":0,"pageSettings":{"1":{"color":"#aa0000"}}}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	s := decodeSnapshot(t, resp)
	if s.CurrentTheme != "paper2" || s.Font != "cursive" || s.CurrentPage != 0 {
		t.Errorf("Unexpected draft: %+v", s)
	}
	if s.PageSettings[1].Color != "#aa0000" {
		t.Errorf("Expected page 2 color override, got %+v", s.PageSettings)
	}

	if resp, _ := h.Patch(ctx, makeRequest("PATCH", "/draft", `{"pageSettings":{"0":{"color":"red"}}}`)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid color, got %d", resp.StatusCode)
	}
	if resp, _ := h.Patch(ctx, makeRequest("PATCH", "/draft", `{"currentPage":7}`)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing page, got %d", resp.StatusCode)
	}
}

func TestDraftHandler_SendAndSave(t *testing.T) {
	svc := newServices()
	h := handler.NewDraftHandler(svc.composer, testAuth, nil)
	ctx := context.Background()

	if resp, _ := h.Send(ctx, makeRequest("POST", "/draft/send", `{"to":"`+otherUserID+`"}`)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty draft, got %d", resp.StatusCode)
	}
	if resp, _ := h.Send(ctx, makeRequest("POST", "/draft/send", `{"title":"x"}`)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without recipient, got %d", resp.StatusCode)
	}

	h.UpdatePage(ctx, pageRequest("PUT", "0", `{"html":"<p>Özledim</p>"}`))
	resp, _ := h.Save(ctx, makeRequest("POST", "/draft/save", ""))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d: %s", resp.StatusCode, resp.Body)
	}
	if drafts := svc.letters.Drafts(ctx, testUserID); len(drafts) != 1 {
		t.Errorf("Expected 1 saved draft, got %d", len(drafts))
	}

	resp, _ = h.Send(ctx, makeRequest("POST", "/draft/send", `{"to":"`+otherUserID+`","title":"Özlem"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 Created, got %d: %s", resp.StatusCode, resp.Body)
	}
	received := svc.letters.Received(ctx, otherUserID)
	if len(received) != 1 || received[0].Title != "Özlem" || received[0].From != testUserID {
		t.Fatalf("Unexpected received letters: %+v", received)
	}

	resp, _ = h.Get(ctx, makeRequest("GET", "/draft", ""))
	if s := decodeSnapshot(t, resp); !markup.IsBlank(strings.Join(s.Letters, "")) {
		t.Errorf("Expected draft to be reset after send, got %+v", s.Letters)
	}
}

func TestDraftHandler_OpenAndDiscard(t *testing.T) {
	svc := newServices()
	h := handler.NewDraftHandler(svc.composer, testAuth, nil)
	ctx := context.Background()

	id, err := svc.letters.Create(ctx, model.LetterDraft{Content: []string{"<p>eski mektup</p>"}, Owner: testUserID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, _ := h.Open(ctx, makeRequest("POST", "/draft/open", `{"letterId":"`+id+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", resp.StatusCode, resp.Body)
	}
	if s := decodeSnapshot(t, resp); s.Letters[0] != "<p>eski mektup</p>" {
		t.Errorf("Expected letter content in draft, got %q", s.Letters[0])
	}

	other := makeRequestAs(otherUserID, "POST", "/draft/open", `{"letterId":"`+id+`"}`)
	if resp, _ := h.Open(ctx, other); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for a stranger, got %d", resp.StatusCode)
	}

	if resp, _ := h.Delete(ctx, makeRequest("DELETE", "/draft", "")); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", resp.StatusCode)
	}
	resp, _ = h.Get(ctx, makeRequest("GET", "/draft", ""))
	if s := decodeSnapshot(t, resp); s.Revision != "" {
		t.Errorf("Expected a fresh draft after discard, got %+v", s)
	}
}
