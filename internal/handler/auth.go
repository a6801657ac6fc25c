package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/auth"
	"github.com/jun/dijitalmektup/internal/identity"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/validation"
)

const stateCookie = "oauth_state"

// AuthHandler handles authentication requests.
type AuthHandler struct {
	authService   *auth.AuthService
	authenticator *auth.Authenticator
	letters       *letter.Service
	frontendURL   string
	devMode       bool
	profile       identity.ProfileFunc
	log           *logger.Logger
}

// NewAuthHandler creates a new AuthHandler. letters is used to seed the demo
// mailbox and may be nil.
func NewAuthHandler(s *auth.AuthService, a *auth.Authenticator, letters *letter.Service, frontendURL string, devMode bool, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService:   s,
		authenticator: a,
		letters:       letters,
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		devMode:       devMode,
		profile:       identity.GoogleProfile,
		log:           log,
	}
}

func (h *AuthHandler) stateCookieHeader(value string, maxAge int) string {
	sameSite := "Lax"
	if !h.devMode {
		sameSite = "None"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure", stateCookie, value, maxAge, sameSite)
}

func cookieValue(req events.APIGatewayProxyRequest, name string) string {
	for _, part := range strings.Split(getHeader(req, "Cookie"), ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, name+"="); ok {
			return v
		}
	}
	return ""
}

// Login initiates the Google OAuth2 flow. The state is bound to the browser
// with a short-lived cookie.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.authService.GenerateAuthURL(state),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {h.stateCookieHeader(state, 600)},
		},
	}, nil
}

// Callback handles the OAuth2 callback from Google.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	code := req.QueryStringParameters["code"]
	if code == "" {
		return textResponse(http.StatusBadRequest, "Missing code"), nil
	}
	state := req.QueryStringParameters["state"]
	if state == "" || state != cookieValue(req, stateCookie) {
		h.log.Warn("oauth callback with mismatched state")
		return textResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		h.log.Error(err, "failed to exchange code")
		return textResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	profile, err := h.profile(ctx, h.authService.Config().TokenSource(ctx, token))
	if err != nil {
		h.log.Error(err, "failed to get user info")
		return textResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	// A missing refresh token on repeat logins is expected; the stored one is kept.
	if err := h.authService.SaveUser(ctx, *profile, token); err != nil {
		h.log.With("user", profile.UID).Error(err, "failed to save user")
	}

	signed, err := h.authenticator.IssueSession(*profile)
	if err != nil {
		h.log.Error(err, "failed to sign session")
		return textResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	h.log.With("user", profile.UID).Info("user logged in")
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": h.frontendURL + "/?success=true",
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {
				auth.SessionCookieHeader(signed, auth.SessionMaxAge(), h.devMode),
				h.stateCookieHeader("", 0),
			},
		},
	}, nil
}

// welcomeLetter is placed in every demo mailbox.
var welcomeLetter = []string{
	`<h2>Dijital Mektup'a hoş geldin!</h2><p>Burada sayfa sayfa mektup yazabilir, kağıdını ve yazı tipini seçebilir, sevdiklerine gönderebilirsin.</p>`,
	`<p><strong>İpuçları</strong></p><ul><li>Her sayfa en fazla 1150 karakter alır; dolunca yeni sayfa ekle.</li><li>Kendi kağıt temalarını yükleyebilirsin.</li><li>Mektubunu resim arşivi olarak indirebilirsin.</li></ul>`,
}

// DemoLogin issues a short session for a throwaway user without Google OAuth.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user := model.User{
		UID:         model.DemoUserPrefix + uuid.NewString(),
		DisplayName: "Demo Kullanıcı",
		Email:       "demo@dijitalmektup.local",
	}
	log := h.log.With("user", user.UID)

	if err := h.authService.SaveUser(ctx, user, nil); err != nil {
		log.Error(err, "failed to save demo user")
		return textResponse(http.StatusInternalServerError, "Failed to create demo user"), nil
	}

	if h.letters != nil {
		_, err := h.letters.Create(ctx, model.LetterDraft{
			Title:   "Hoş geldin 💌",
			Content: welcomeLetter,
			Theme:   "paper2",
			Font:    "cursive",
			From:    "dijitalmektup",
			To:      user.UID,
			Owner:   user.UID,
		})
		if err != nil {
			// the demo still works with an empty mailbox
			log.Error(err, "failed to seed welcome letter")
		}
	}

	signed, err := h.authenticator.IssueSession(user)
	if err != nil {
		log.Error(err, "failed to sign session")
		return textResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": fmt.Sprintf("%s/?token=%s", h.frontendURL, signed),
		},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {auth.SessionCookieHeader(signed, auth.SessionMaxAge(), h.devMode)},
		},
	}, nil
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {auth.SessionCookieHeader("", 0, h.devMode)},
	}
	return resp, nil
}

// GetUser returns the current user's profile.
func (h *AuthHandler) GetUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.authenticator, req)
	if fail != nil {
		return *fail, nil
	}

	record, err := h.authService.GetUser(ctx, user.UID)
	if err != nil {
		// users signed in with a Firebase ID token have no stored record
		return jsonResponse(http.StatusOK, user), nil
	}
	return jsonResponse(http.StatusOK, record.Profile()), nil
}

// UpdateUserRequest is the body of PATCH /auth/user.
type UpdateUserRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,max=80"`
	PhotoURL    string `json:"photoUrl" validate:"omitempty,url"`
}

// UpdateUser changes the display name or photo of the current user.
func (h *AuthHandler) UpdateUser(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, fail := currentUser(ctx, h.authenticator, req)
	if fail != nil {
		return *fail, nil
	}

	var body UpdateUserRequest
	if err := decodeBody(req, &body); err != nil {
		return errorResponse(h.log, err, "invalid user update"), nil
	}
	if err := validation.Struct(body); err != nil {
		return errorResponse(h.log, err, "invalid user update"), nil
	}

	record, err := h.authService.UpdateProfile(ctx, user.UID, body.DisplayName, body.PhotoURL)
	if err != nil {
		h.log.With("user", user.UID).Error(err, "failed to update user")
		return textResponse(http.StatusInternalServerError, "Failed to update user settings"), nil
	}
	return jsonResponse(http.StatusOK, record.Profile()), nil
}
