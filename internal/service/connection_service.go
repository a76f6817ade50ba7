package service

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
	"github.com/pesio-ai/be-ar-invoicing/internal/repository"
	"github.com/pesio-ai/be-ar-invoicing/internal/xero"
)

const tenantTypeOrganisation = "ORGANISATION"

// ConnectionStatus is the stored connection as reported to callers.
type ConnectionStatus struct {
	Connected  bool
	TenantName string
	TenantID   string
}

// Completion describes a finished callback. Origin and Relay are filled in
// whenever the state could be verified so the callback page can notify the
// opener even when authorization failed.
type Completion struct {
	Origin     string
	Relay      string
	TenantName string
}

// ConnectionService owns the Xero connection: authorization, status,
// token refresh and disconnect.
type ConnectionService struct {
	store          ConnectionStore
	pending        PendingStore
	oauth          OAuthProvider
	api            XeroAPI
	signer         *StateSigner
	publicOrigin   string
	allowedOrigins map[string]struct{}
	onChange       []func(connected bool)
	log            *logger.Logger
}

// ConnectionOptions configures a ConnectionService.
type ConnectionOptions struct {
	// PublicURL is where the dashboard is served. Its origin is the default
	// target of the callback page's postMessage.
	PublicURL string
	// AllowedOrigins may request authorization in addition to PublicURL.
	AllowedOrigins []string
}

// NewConnectionService creates a new connection service
func NewConnectionService(
	store ConnectionStore,
	pending PendingStore,
	oauth OAuthProvider,
	api XeroAPI,
	signer *StateSigner,
	opts ConnectionOptions,
	log *logger.Logger,
) *ConnectionService {
	public := originOf(opts.PublicURL)
	allowed := map[string]struct{}{public: {}}
	for _, o := range opts.AllowedOrigins {
		if o = originOf(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &ConnectionService{
		store:          store,
		pending:        pending,
		oauth:          oauth,
		api:            api,
		signer:         signer,
		publicOrigin:   public,
		allowedOrigins: allowed,
		log:            log.Component("xero_connection"),
	}
}

// OnChange registers fn to be called whenever the connection is created or
// removed.
func (s *ConnectionService) OnChange(fn func(connected bool)) {
	s.onChange = append(s.onChange, fn)
}

func (s *ConnectionService) notify(connected bool) {
	for _, fn := range s.onChange {
		fn(connected)
	}
}

// Status reports whether a connection is stored. It never calls Xero.
func (s *ConnectionService) Status(ctx context.Context) (*ConnectionStatus, error) {
	c, err := s.store.Get(ctx)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNoCredentials {
			return &ConnectionStatus{Connected: false}, nil
		}
		return nil, err
	}
	return &ConnectionStatus{Connected: true, TenantName: c.TenantName, TenantID: c.TenantID}, nil
}

// BeginAuthorization starts a consent flow and returns the Xero consent URL.
// relay is an optional loopback URL the callback page posts its result to.
// origin is the window that opened the popup; unknown origins fall back to
// the public origin.
func (s *ConnectionService) BeginAuthorization(ctx context.Context, relay, origin string) (string, error) {
	if relay != "" {
		if err := validateRelay(relay); err != nil {
			return "", err
		}
	}
	if _, ok := s.allowedOrigins[originOf(origin)]; !ok {
		origin = s.publicOrigin
	} else {
		origin = originOf(origin)
	}

	nonce := uuid.NewString()
	verifier := xero.NewVerifier()
	if err := s.pending.Save(ctx, nonce, repository.PendingAuthorization{Verifier: verifier, CreatedAt: time.Now().UTC()}); err != nil {
		return "", err
	}
	state, err := s.signer.Sign(nonce, relay, origin)
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("nonce", nonce).
		Bool("relay", relay != "").
		Str("origin", origin).
		Msg("Xero authorization started")

	return s.oauth.AuthCodeURL(state, verifier), nil
}

// CompleteAuthorization finishes a consent flow from the callback query.
// providerError is the error parameter Xero sends when consent is refused.
func (s *ConnectionService) CompleteAuthorization(ctx context.Context, code, state, providerError string) (*Completion, error) {
	completion := &Completion{Origin: s.publicOrigin}

	claims, err := s.signer.Verify(state)
	if err != nil {
		return completion, err
	}
	completion.Origin = claims.Origin
	completion.Relay = claims.Relay

	pending, err := s.pending.Consume(ctx, claims.Nonce())
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNotFound {
			return completion, errors.InvalidInput("state", "authorization request was already used or has expired")
		}
		return completion, err
	}

	if providerError != "" {
		s.log.Warn().Str("error", providerError).Msg("Xero authorization refused")
		if providerError == "access_denied" {
			return completion, errors.New(errors.ErrCodeForbidden, "access was denied")
		}
		return completion, errors.New(errors.ErrCodeAuthentication, "authorization failed: "+providerError)
	}
	if code == "" {
		return completion, errors.InvalidInput("code", "authorization code is missing")
	}

	tok, err := s.oauth.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		return completion, errors.Wrap(err, errors.ErrCodeAuthentication, "failed to exchange authorization code")
	}

	conns, err := s.api.Connections(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return completion, mapXeroError(err)
	}
	tenant, ok := pickOrganisation(conns)
	if !ok {
		return completion, errors.New(errors.ErrCodeForbidden, "no Xero organisation was authorized")
	}

	conn := &repository.XeroConnection{
		ConnectionID: tenant.ID,
		TenantID:     tenant.TenantID,
		TenantName:   tenant.TenantName,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if err := s.store.Save(ctx, conn); err != nil {
		return completion, err
	}
	completion.TenantName = tenant.TenantName

	s.log.Info().
		Str("tenant_id", tenant.TenantID).
		Str("tenant_name", tenant.TenantName).
		Msg("Xero connected")
	s.notify(true)

	return completion, nil
}

// Session returns an authorized session for the stored connection. Refreshed
// tokens are written back to the store.
func (s *ConnectionService) Session(ctx context.Context) (xero.Session, error) {
	c, err := s.store.Get(ctx)
	if err != nil {
		return xero.Session{}, err
	}
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.Expiry,
	}
	// Xero rotates refresh tokens; a refresh is persisted even if the
	// request is cancelled.
	persistCtx := context.WithoutCancel(ctx)
	tokens := s.oauth.TokenSource(ctx, tok, func(t *oauth2.Token) error {
		s.log.Debug().Time("expiry", t.Expiry).Msg("Xero token refreshed")
		return s.store.UpdateTokens(persistCtx, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry)
	})
	return xero.Session{Tokens: tokens, TenantID: c.TenantID}, nil
}

// Disconnect removes the connection. Revocation at Xero is best effort; the
// local connection is always removed.
func (s *ConnectionService) Disconnect(ctx context.Context) error {
	c, err := s.store.Get(ctx)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeNoCredentials {
			return nil
		}
		return err
	}

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken, TokenType: c.TokenType})
	if c.ConnectionID != "" {
		if err := s.api.DeleteConnection(ctx, tokens, c.ConnectionID); err != nil {
			s.log.Warn().Err(err).Str("connection_id", c.ConnectionID).Msg("Failed to remove Xero connection")
		}
	}
	if c.RefreshToken != "" {
		if err := s.oauth.Revoke(ctx, c.RefreshToken); err != nil {
			s.log.Warn().Err(err).Msg("Failed to revoke Xero refresh token")
		}
	}
	if err := s.store.Delete(ctx); err != nil {
		return err
	}

	s.log.Info().Str("tenant_id", c.TenantID).Msg("Xero disconnected")
	s.notify(false)
	return nil
}

func pickOrganisation(conns []xero.Connection) (xero.Connection, bool) {
	for _, c := range conns {
		if strings.EqualFold(c.TenantType, tenantTypeOrganisation) {
			return c, true
		}
	}
	return xero.Connection{}, false
}

// validateRelay accepts only plain-http loopback URLs.
func validateRelay(relay string) error {
	u, err := url.Parse(relay)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return errors.InvalidInput("relay", "relay must be an http loopback URL")
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.InvalidInput("relay", "relay must be an http loopback URL")
	}
	return nil
}

func originOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
