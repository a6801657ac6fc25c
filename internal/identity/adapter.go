package identity

import (
	"context"
	"errors"

	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

// ErrCancelled is returned when the user aborts the sign-in.
var ErrCancelled = errors.New("sign-in cancelled")

// Provider performs the interactive federated sign-in.
type Provider interface {
	SignIn(ctx context.Context) (*model.User, error)
	SignOut(ctx context.Context) error
}

// Adapter connects a Provider to a Session.
type Adapter struct {
	session  *Session
	provider Provider
	log      *logger.Logger
}

func NewAdapter(session *Session, provider Provider, log *logger.Logger) *Adapter {
	return &Adapter{session: session, provider: provider, log: log}
}

func (a *Adapter) Session() *Session {
	return a.session
}

// Login signs in and publishes the user. On failure the session is left as
// it was.
func (a *Adapter) Login(ctx context.Context) error {
	u, err := a.provider.SignIn(ctx)
	if err != nil {
		a.log.Error(err, "login failed")
		return err
	}
	if u == nil || u.UID == "" {
		err := errors.New("provider returned no user")
		a.log.Error(err, "login failed")
		return err
	}
	a.session.Set(u)
	a.log.With("user", u.UID).Info("logged in")
	return nil
}

// Logout signs out. The session is cleared even when the provider fails.
func (a *Adapter) Logout(ctx context.Context) error {
	err := a.provider.SignOut(ctx)
	if err != nil {
		a.log.Error(err, "provider sign-out failed")
	}
	a.session.Set(nil)
	return err
}

// StaticProvider signs in a fixed user.
type StaticProvider struct {
	User       *model.User
	SignInErr  error
	SignOutErr error
}

func (p *StaticProvider) SignIn(ctx context.Context) (*model.User, error) {
	if p.SignInErr != nil {
		return nil, p.SignInErr
	}
	return clone(p.User), nil
}

func (p *StaticProvider) SignOut(ctx context.Context) error {
	return p.SignOutErr
}
