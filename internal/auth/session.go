package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jun/dijitalmektup/internal/model"
)

const (
	// SessionCookie carries the session JWT for browser clients.
	SessionCookie = "session_token"
	sessionTTL    = 24 * time.Hour
)

// ErrUnauthenticated is returned when a request carries no valid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenVerifier verifies Firebase ID tokens. *firebase.google.com/go/v4/auth.Client
// satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Authenticator issues session JWTs and resolves the caller of a request.
type Authenticator struct {
	secret   []byte
	verifier TokenVerifier
	now      func() time.Time
}

// NewAuthenticator creates an Authenticator. verifier may be nil, in which case
// only session JWTs are accepted.
func NewAuthenticator(jwtSecret string, verifier TokenVerifier) *Authenticator {
	return &Authenticator{secret: []byte(jwtSecret), verifier: verifier, now: time.Now}
}

// IssueSession signs a session JWT for the user.
func (a *Authenticator) IssueSession(user model.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":     user.UID,
		"email":   user.Email,
		"name":    user.DisplayName,
		"picture": user.PhotoURL,
		"exp":     a.now().Add(sessionTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// SessionCookieHeader formats the Set-Cookie value for a session token.
// A zero maxAge clears the cookie.
func SessionCookieHeader(token string, maxAge int, devMode bool) string {
	sameSite := "Lax"
	if !devMode {
		sameSite = "None"
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure", SessionCookie, token, maxAge, sameSite)
}

// SessionMaxAge is the cookie lifetime in seconds.
func SessionMaxAge() int {
	return int(sessionTTL.Seconds())
}

// Authenticate resolves the user from request headers. Session JWTs are tried
// first, then Firebase ID tokens when a verifier is configured.
func (a *Authenticator) Authenticate(ctx context.Context, headers map[string]string) (*model.User, error) {
	raw := BearerToken(headers)
	if raw == "" {
		return nil, fmt.Errorf("no authorization token found: %w", ErrUnauthenticated)
	}

	user, jwtErr := a.parseSession(raw)
	if jwtErr == nil {
		return user, nil
	}

	if a.verifier != nil {
		tok, err := a.verifier.VerifyIDToken(ctx, raw)
		if err == nil {
			return userFromFirebase(tok), nil
		}
	}
	return nil, fmt.Errorf("invalid token: %v: %w", jwtErr, ErrUnauthenticated)
}

func (a *Authenticator) parseSession(raw string) (*model.User, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("invalid token claims")
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	picture, _ := claims["picture"].(string)
	return &model.User{UID: sub, DisplayName: name, Email: email, PhotoURL: picture}, nil
}

func userFromFirebase(tok *fbauth.Token) *model.User {
	user := &model.User{UID: tok.UID}
	if v, ok := tok.Claims["name"].(string); ok {
		user.DisplayName = v
	}
	if v, ok := tok.Claims["email"].(string); ok {
		user.Email = v
	}
	if v, ok := tok.Claims["picture"].(string); ok {
		user.PhotoURL = v
	}
	return user
}

// BearerToken extracts the token from the Authorization header or the session cookie.
func BearerToken(headers map[string]string) string {
	// Helper for case-insensitive header lookup
	getHeader := func(name string) string {
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}

	// 1. Check Authorization Header (Bearer <token>)
	authHeader := getHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	// 2. Check Cookie
	// Cookie format: session_token=xxx; ...
	for _, part := range strings.Split(getHeader("Cookie"), ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, SessionCookie+"=") {
			return strings.TrimPrefix(part, SessionCookie+"=")
		}
	}
	return ""
}
