package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/compose"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/markup"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/validation"
)

// DraftHandler exposes the composer: the letter a user is currently writing.
type DraftHandler struct {
	composer *compose.Composer
	auth     Authenticator
	log      *logger.Logger
}

func NewDraftHandler(c *compose.Composer, a Authenticator, log *logger.Logger) *DraftHandler {
	return &DraftHandler{composer: c, auth: a, log: log}
}

// ifRevision reads the expected revision from If-Match, falling back to the
// body value.
func ifRevision(req events.APIGatewayProxyRequest, fromBody string) string {
	if v := strings.Trim(getHeader(req, "If-Match"), `"`); v != "" {
		return v
	}
	return fromBody
}

func draftResponse(status int, d *compose.Draft) events.APIGatewayProxyResponse {
	resp := jsonResponse(status, d.Snapshot())
	if rev := d.Revision(); rev != "" {
		resp.Headers["ETag"] = `"` + rev + `"`
	}
	return resp
}

func pageIndex(req events.APIGatewayProxyRequest) (int, error) {
	n, err := strconv.Atoi(req.PathParameters["n"])
	if err != nil {
		return 0, apperror.Validation("page", "must be a page number")
	}
	return n, nil
}

// Get returns the stored draft, or a fresh one.
func (h *DraftHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	d, err := h.composer.Load(ctx, user.UID)
	if err != nil {
		return errorResponse(h.log, err, "failed to load draft"), nil
	}
	return draftResponse(http.StatusOK, d), nil
}

// Put replaces the whole draft.
func (h *DraftHandler) Put(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body model.DraftSnapshot
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid draft"), nil
	}
	saved, err := h.composer.Save(ctx, user.UID, compose.FromSnapshot(body), ifRevision(req, body.Revision))
	if err != nil {
		return errorResponse(h.log, err, "failed to save draft"), nil
	}
	return draftResponse(http.StatusOK, saved), nil
}

// PatchDraftRequest changes letter-wide settings. Nil fields are left alone;
// a zero page setting clears that page's override.
type PatchDraftRequest struct {
	Theme        *string            `json:"theme"`
	Font         *string            `json:"font"`
	CurrentPage  *int               `json:"currentPage"`
	PageSettings model.PageSettings `json:"pageSettings" validate:"dive"`
	Revision     string             `json:"revision"`
}

// Patch updates theme, font, current page or page settings.
func (h *DraftHandler) Patch(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body PatchDraftRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid draft update"), nil
	}
	if err := validation.Struct(body); err != nil {
		return errorResponse(h.log, err, "invalid draft update"), nil
	}

	updated, err := h.composer.Update(ctx, user.UID, ifRevision(req, body.Revision), func(d *compose.Draft) error {
		if body.Theme != nil {
			d.SetTheme(*body.Theme)
		}
		if body.Font != nil {
			d.SetFont(*body.Font)
		}
		for i, s := range body.PageSettings {
			d.SetPageSetting(i, s)
		}
		if body.CurrentPage != nil {
			if !editor.NewLetterEditor(d).ChangePage(*body.CurrentPage) {
				return apperror.Validation("currentPage", "page does not exist")
			}
		}
		return nil
	})
	if err != nil {
		return errorResponse(h.log, err, "failed to update draft"), nil
	}
	return draftResponse(http.StatusOK, updated), nil
}

// Delete discards the draft.
func (h *DraftHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	if err := h.composer.Discard(ctx, user.UID, nil); err != nil {
		return errorResponse(h.log, err, "failed to discard draft"), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"success": true}), nil
}

// AddPage appends an empty page and makes it current.
func (h *DraftHandler) AddPage(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	updated, err := h.composer.Update(ctx, user.UID, ifRevision(req, ""), func(d *compose.Draft) error {
		editor.NewLetterEditor(d).AddPage()
		return nil
	})
	if err != nil {
		return errorResponse(h.log, err, "failed to add page"), nil
	}
	return draftResponse(http.StatusCreated, updated), nil
}

// UpdatePageRequest carries the new content of one page, either as HTML or
// as markdown. With Append the content is added at the end of the page.
type UpdatePageRequest struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Append   bool   `json:"append"`
	Revision string `json:"revision"`
}

// UpdatePage edits one page through the page editor. Content that does not
// fit is rejected with 409 and the page is left unchanged.
func (h *DraftHandler) UpdatePage(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	n, err := pageIndex(req)
	if err != nil {
		return errorResponse(h.log, err, "invalid page"), nil
	}

	var body UpdatePageRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid page update"), nil
	}
	content := body.HTML
	if body.Markdown != "" {
		if content, err = markup.RenderMarkdown(body.Markdown); err != nil {
			return errorResponse(h.log, apperror.Validation("markdown", err.Error()), "invalid page update"), nil
		}
	}

	updated, err := h.composer.Update(ctx, user.UID, ifRevision(req, body.Revision), func(d *compose.Draft) error {
		le := editor.NewLetterEditor(d)
		if !le.ChangePage(n) {
			return apperror.Validation("page", "page does not exist")
		}
		page := le.Active()
		var accepted bool
		if body.Append {
			accepted = page.Insert(content)
		} else {
			accepted = page.Input(content)
		}
		if !accepted {
			return errPageFull
		}
		return nil
	})
	if err != nil {
		return errorResponse(h.log, err, "failed to update page"), nil
	}
	return draftResponse(http.StatusOK, updated), nil
}

// DeletePage removes page n. The only page is cleared instead.
func (h *DraftHandler) DeletePage(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	n, err := pageIndex(req)
	if err != nil {
		return errorResponse(h.log, err, "invalid page"), nil
	}

	updated, err := h.composer.Update(ctx, user.UID, ifRevision(req, ""), func(d *compose.Draft) error {
		if n < 0 || n >= len(d.Pages()) {
			return apperror.Validation("page", "page does not exist")
		}
		d.SetCurrentPage(n)
		d.DeletePage()
		return nil
	})
	if err != nil {
		return errorResponse(h.log, err, "failed to delete page"), nil
	}
	return draftResponse(http.StatusOK, updated), nil
}

// SendRequest is the body of POST /draft/send.
type SendRequest struct {
	To    string `json:"to" validate:"required"`
	Title string `json:"title" validate:"max=255"`
}

// Send turns the draft into a letter to the recipient.
func (h *DraftHandler) Send(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body SendRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid send request"), nil
	}
	if err := validation.Struct(body); err != nil {
		return errorResponse(h.log, err, "invalid send request"), nil
	}

	id, err := h.composer.Send(ctx, user.UID, body.To, body.Title)
	if err != nil {
		return errorResponse(h.log, err, "failed to send letter"), nil
	}
	return jsonResponse(http.StatusCreated, map[string]string{"id": id}), nil
}

// Save stores the draft as a letter without recipient.
func (h *DraftHandler) Save(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	id, err := h.composer.SaveToStore(ctx, user.UID)
	if err != nil {
		return errorResponse(h.log, err, "failed to save letter"), nil
	}
	return jsonResponse(http.StatusCreated, map[string]string{"id": id}), nil
}

// OpenRequest is the body of POST /draft/open.
type OpenRequest struct {
	LetterID string `json:"letterId" validate:"required"`
}

// Open loads a stored letter into the draft for editing.
func (h *DraftHandler) Open(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body OpenRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid open request"), nil
	}
	if err := validation.Struct(body); err != nil {
		return errorResponse(h.log, err, "invalid open request"), nil
	}

	d, err := h.composer.Edit(ctx, user.UID, body.LetterID)
	if err != nil {
		return errorResponse(h.log, err, "failed to open letter"), nil
	}
	return draftResponse(http.StatusOK, d), nil
}

// CheckRequest is the body of POST /draft/check.
type CheckRequest struct {
	Revision string `json:"revision"`
}

// CheckResponse reports whether the client's copy is stale.
type CheckResponse struct {
	HasConflict bool   `json:"hasConflict"`
	Revision    string `json:"revision"`
}

// Check compares the client's revision with the stored draft.
func (h *DraftHandler) Check(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body CheckRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid check request"), nil
	}
	d, err := h.composer.Load(ctx, user.UID)
	if err != nil {
		return errorResponse(h.log, err, "failed to load draft"), nil
	}
	return jsonResponse(http.StatusOK, CheckResponse{
		HasConflict: compose.CheckConflict(body.Revision, d.Revision()),
		Revision:    d.Revision(),
	}), nil
}
