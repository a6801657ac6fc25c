package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/theme"
	"github.com/jun/dijitalmektup/internal/validation"
)

// ThemeHandler serves built-in and custom paper themes.
type ThemeHandler struct {
	registry themeRegistry
	auth     Authenticator
	log      *logger.Logger
}

type themeRegistry interface {
	ListCustom(ctx context.Context, owner string) []model.CustomTheme
	AddCustom(ctx context.Context, owner, name, url string) (model.CustomTheme, error)
}

func NewThemeHandler(registry themeRegistry, a Authenticator, log *logger.Logger) *ThemeHandler {
	return &ThemeHandler{registry: registry, auth: a, log: log}
}

// ThemesResponse lists the themes a user can pick from.
type ThemesResponse struct {
	Builtin []theme.Builtin     `json:"builtin"`
	Custom  []model.CustomTheme `json:"custom"`
	Default string              `json:"default"`
}

// ListThemes returns the built-in themes and the caller's uploads.
func (h *ThemeHandler) ListThemes(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}
	return jsonResponse(http.StatusOK, ThemesResponse{
		Builtin: theme.Builtins(),
		Custom:  h.registry.ListCustom(ctx, user.UID),
		Default: theme.DefaultURL,
	}), nil
}

// AddThemeRequest is the body of POST /themes.
type AddThemeRequest struct {
	Name string `json:"name" validate:"required,max=60"`
	URL  string `json:"url" validate:"required,image_dataurl"`
}

// AddTheme stores an uploaded paper image for the caller.
func (h *ThemeHandler) AddTheme(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.auth, req)
	if fail != nil {
		return *fail, nil
	}

	var body AddThemeRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid theme"), nil
	}
	if err := validation.Struct(body); err != nil {
		return errorResponse(h.log, err, "invalid theme"), nil
	}

	t, err := h.registry.AddCustom(ctx, user.UID, body.Name, body.URL)
	if err != nil {
		return errorResponse(h.log, err, "failed to add theme"), nil
	}
	return jsonResponse(http.StatusCreated, t), nil
}
