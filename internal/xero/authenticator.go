// Package xero talks to the Xero identity service and accounting API.
package xero

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/pesio-ai/be-ar-invoicing/internal/config"
)

// Authenticator runs the OAuth2 authorization code flow with PKCE.
type Authenticator struct {
	oauth      *oauth2.Config
	revokeURL  string
	httpClient *http.Client
}

// NewAuthenticator creates an authenticator for the configured Xero app.
func NewAuthenticator(cfg config.XeroConfig) *Authenticator {
	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		revokeURL:  cfg.RevokeURL,
		httpClient: http.DefaultClient,
	}
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthCodeURL is the consent page URL for state and verifier.
func (a *Authenticator) AuthCodeURL(state, verifier string) string {
	return a.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for tokens.
func (a *Authenticator) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := a.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires and calls
// onRefresh with every new token so it can be persisted.
func (a *Authenticator) TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token) error) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	return &persistingTokenSource{
		base:      a.oauth.TokenSource(ctx, tok),
		last:      tok.AccessToken,
		onRefresh: onRefresh,
	}
}

// Revoke invalidates a refresh token and every access token issued from it.
func (a *Authenticator) Revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{"token": {refreshToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.SetBasicAuth(a.oauth.ClientID, a.oauth.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revoke token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// IsRefreshRejected reports whether err is the token endpoint refusing the
// refresh token, meaning the user has to consent again.
func IsRefreshRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	switch re.ErrorCode {
	case "invalid_grant", "unauthorized_client", "invalid_client":
		return true
	}
	return re.Response != nil && re.Response.StatusCode == http.StatusBadRequest && re.ErrorCode == ""
}

type persistingTokenSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	last      string
	onRefresh func(*oauth2.Token) error
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if s.onRefresh != nil {
			if err := s.onRefresh(tok); err != nil {
				return nil, fmt.Errorf("persist refreshed token: %w", err)
			}
		}
	}
	return tok, nil
}
