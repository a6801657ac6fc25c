package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jun/dijitalmektup/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const revokeURL = "https://oauth2.googleapis.com/revoke"

// ProfileFunc fetches the signed-in user with an authorized token source.
type ProfileFunc func(ctx context.Context, ts oauth2.TokenSource) (*model.User, error)

// LoopbackProvider runs the Google OAuth flow for command line clients: the
// consent page redirects to a listener on 127.0.0.1 that receives the code.
type LoopbackProvider struct {
	Config *oauth2.Config
	// Open shows the consent URL to the user, usually by launching a browser.
	Open    func(url string) error
	Profile ProfileFunc
	// RevokeURL defaults to Google's token revocation endpoint.
	RevokeURL string
	Client    *http.Client

	token *oauth2.Token
}

// NewLoopbackProvider returns a provider for the installed-app client.
func NewLoopbackProvider(clientID, clientSecret string, open func(string) error) *LoopbackProvider {
	return &LoopbackProvider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		Open:    open,
		Profile: GoogleProfile,
	}
}

func (p *LoopbackProvider) SignIn(ctx context.Context) (*model.User, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	cfg := *p.Config
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res result
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch")
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrCancelled, q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("callback without code")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window.")
		}
		select {
		case done <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go srv.Serve(ln)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if p.Open != nil {
		if err := p.Open(authURL); err != nil {
			return nil, fmt.Errorf("opening consent page: %w", err)
		}
	}

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, res.err
	}

	if p.Client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.Client)
	}
	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	profile := p.Profile
	if profile == nil {
		profile = GoogleProfile
	}
	u, err := profile(ctx, cfg.TokenSource(ctx, tok))
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	p.token = tok
	return u, nil
}

// SignOut revokes the token obtained by the last sign-in.
func (p *LoopbackProvider) SignOut(ctx context.Context) error {
	tok := p.token
	p.token = nil
	if tok == nil {
		return nil
	}

	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}
	endpoint := p.RevokeURL
	if endpoint == "" {
		endpoint = revokeURL
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(url.Values{"token": {value}}.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoking token: status %d", resp.StatusCode)
	}
	return nil
}

// GoogleProfile reads the user from the Google userinfo endpoint.
func GoogleProfile(ctx context.Context, ts oauth2.TokenSource) (*model.User, error) {
	svc, err := goauth2.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &model.User{
		UID:         info.Id,
		DisplayName: info.Name,
		Email:       info.Email,
		PhotoURL:    info.Picture,
	}, nil
}
