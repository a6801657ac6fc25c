package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/export"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

// LetterHandler serves stored letters.
type LetterHandler struct {
	letters  *letter.Service
	exporter *export.Exporter
	auth     Authenticator
	log      *logger.Logger
}

// NewLetterHandler creates a new LetterHandler. exporter may be nil, which
// disables the export endpoint.
func NewLetterHandler(letters *letter.Service, exporter *export.Exporter, a Authenticator, log *logger.Logger) *LetterHandler {
	return &LetterHandler{letters: letters, exporter: exporter, auth: a, log: log}
}

// List returns the letters of one mailbox: all, sent, received or drafts.
func (h *LetterHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var letters []model.Letter
	switch box := req.QueryStringParameters["box"]; box {
	case "", "all":
		letters = h.letters.All(ctx, user.UID)
	case "sent":
		letters = h.letters.Sent(ctx, user.UID)
	case "received":
		letters = h.letters.Received(ctx, user.UID)
	case "drafts":
		letters = h.letters.Drafts(ctx, user.UID)
	default:
		return errorResponse(h.log, apperror.Validation("box", "unknown mailbox "+strconv.Quote(box)), "invalid list request"), nil
	}

	if limit, err := strconv.Atoi(req.QueryStringParameters["limit"]); err == nil && limit > 0 && limit < len(letters) {
		letters = letters[:limit]
	}
	return jsonResponse(http.StatusOK, letters), nil
}

// Create stores a letter from a full draft. The caller becomes the owner and,
// unless it is a draft, the sender.
func (h *LetterHandler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var draft model.LetterDraft
	if err := decodeBody(req, &draft); err != nil {
		return errorResponse(h.log, err, "invalid letter"), nil
	}
	draft.Owner = user.UID
	draft.From = ""
	if draft.To != "" {
		draft.From = user.UID
		if err := letter.ValidateSendable(draft.Content); err != nil {
			return errorResponse(h.log, err, "invalid letter"), nil
		}
	}

	id, err := h.letters.Create(ctx, draft)
	if err != nil {
		return errorResponse(h.log, err, "failed to create letter"), nil
	}
	return jsonResponse(http.StatusCreated, map[string]string{"id": id}), nil
}

// Search finds the caller's letters by title and text.
func (h *LetterHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	q := req.QueryStringParameters["q"]
	if q == "" {
		return errorResponse(h.log, apperror.Validation("q", "is required"), "invalid search"), nil
	}
	return jsonResponse(http.StatusOK, h.letters.Search(ctx, user.UID, q)), nil
}

// Get returns one letter the caller may read.
func (h *LetterHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	l, err := h.letters.GetFor(ctx, user.UID, req.PathParameters["id"])
	if err != nil {
		return errorResponse(h.log, err, "failed to get letter"), nil
	}
	return jsonResponse(http.StatusOK, l), nil
}

// Delete removes a letter and its images.
func (h *LetterHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	if err := h.letters.Delete(ctx, user.UID, req.PathParameters["id"]); err != nil {
		return errorResponse(h.log, err, "failed to delete letter"), nil
	}
	return jsonResponse(http.StatusOK, map[string]bool{"success": true}), nil
}

// Export returns the letter as a zip of page images.
func (h *LetterHandler) Export(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	if h.exporter == nil {
		return textResponse(http.StatusNotImplemented, "Export is not available"), nil
	}

	l, err := h.letters.GetFor(ctx, user.UID, req.PathParameters["id"])
	if err != nil {
		return errorResponse(h.log, err, "failed to get letter"), nil
	}

	var buf bytes.Buffer
	if err := h.exporter.Export(ctx, l, &buf); err != nil {
		if errors.Is(err, export.ErrNotReady) {
			h.log.With("letter", l.ID).Warn(err.Error())
			return jsonResponse(http.StatusServiceUnavailable, map[string]string{"error": export.ErrNotReady.Error()}), nil
		}
		return errorResponse(h.log, err, "failed to export letter"), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(buf.Bytes()),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":        "application/zip",
			"Content-Disposition": fmt.Sprintf(`attachment; filename="mektup-%s.zip"`, l.ID),
		},
	}, nil
}
