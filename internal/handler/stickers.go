package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/sticker"
)

type stickerSearcher interface {
	Search(ctx context.Context, kind sticker.Kind, q string, offset int) ([]model.Media, error)
}

// StickerHandler proxies GIF and sticker search so the API key stays server side.
type StickerHandler struct {
	stickers stickerSearcher
	auth     Authenticator
	log      *logger.Logger
}

func NewStickerHandler(s stickerSearcher, a Authenticator, log *logger.Logger) *StickerHandler {
	return &StickerHandler{stickers: s, auth: a, log: log}
}

// StickersResponse is one page of search results.
type StickersResponse struct {
	Items      []model.Media `json:"items"`
	NextOffset int           `json:"nextOffset"`
}

// Search handles GET /stickers?q=&type=gifs|stickers&offset=.
func (h *StickerHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, fail := currentUser(ctx, h.auth, req); fail != nil {
		return *fail, nil
	}

	offset, _ := strconv.Atoi(req.QueryStringParameters["offset"])
	if offset < 0 {
		offset = 0
	}

	items, err := h.stickers.Search(ctx, sticker.ParseKind(req.QueryStringParameters["type"]), req.QueryStringParameters["q"], offset)
	if err != nil {
		if errors.Is(err, sticker.ErrDisabled) {
			return textResponse(http.StatusNotImplemented, "Sticker search is not configured"), nil
		}
		return errorResponse(h.log, err, "failed to search stickers"), nil
	}
	if items == nil {
		items = []model.Media{}
	}
	return jsonResponse(http.StatusOK, StickersResponse{Items: items, NextOffset: offset + len(items)}), nil
}
