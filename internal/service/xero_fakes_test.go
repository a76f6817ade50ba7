package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/pesio-ai/be-ar-invoicing/internal/errors"
	"github.com/pesio-ai/be-ar-invoicing/internal/repository"
	"github.com/pesio-ai/be-ar-invoicing/internal/xero"
)

type memConnectionStore struct {
	mu      sync.Mutex
	conn    *repository.XeroConnection
	updates int
}

func (m *memConnectionStore) Get(ctx context.Context) (*repository.XeroConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, apperrors.New(apperrors.ErrCodeNoCredentials, "Xero is not connected")
	}
	c := *m.conn
	return &c, nil
}

func (m *memConnectionStore) Save(ctx context.Context, c *repository.XeroConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *c
	m.conn = &saved
	return nil
}

func (m *memConnectionStore) UpdateTokens(ctx context.Context, access, refresh, tokenType string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return apperrors.New(apperrors.ErrCodeNoCredentials, "Xero is not connected")
	}
	m.updates++
	m.conn.AccessToken, m.conn.RefreshToken, m.conn.TokenType, m.conn.Expiry = access, refresh, tokenType, expiry
	return nil
}

func (m *memConnectionStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = nil
	return nil
}

type memPendingStore struct {
	mu      sync.Mutex
	pending map[string]repository.PendingAuthorization
}

func newMemPendingStore() *memPendingStore {
	return &memPendingStore{pending: make(map[string]repository.PendingAuthorization)}
}

func (m *memPendingStore) Save(ctx context.Context, nonce string, p repository.PendingAuthorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[nonce]; ok {
		return apperrors.New(apperrors.ErrCodeConflict, "duplicate nonce")
	}
	m.pending[nonce] = p
	return nil
}

func (m *memPendingStore) Consume(ctx context.Context, nonce string) (*repository.PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[nonce]
	if !ok {
		return nil, apperrors.NotFound("authorization", nonce)
	}
	delete(m.pending, nonce)
	return &p, nil
}

// fakeOAuth records the state and verifier of the last consent URL.
type fakeOAuth struct {
	state       string
	verifier    string
	exchangeErr error
	revoked     []string
	refreshed   *oauth2.Token
	refreshErr  error
}

func (f *fakeOAuth) AuthCodeURL(state, verifier string) string {
	f.state, f.verifier = state, verifier
	return "https://login.xero.com/identity/connect/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if verifier != f.verifier {
		return nil, fmt.Errorf("verifier mismatch")
	}
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, TokenType: "Bearer", Expiry: time.Now().Add(30 * time.Minute)}, nil
}

func (f *fakeOAuth) TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token) error) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		if f.refreshErr != nil {
			return nil, f.refreshErr
		}
		if f.refreshed != nil {
			if err := onRefresh(f.refreshed); err != nil {
				return nil, err
			}
			return f.refreshed, nil
		}
		return tok, nil
	})
}

func (f *fakeOAuth) Revoke(ctx context.Context, refreshToken string) error {
	f.revoked = append(f.revoked, refreshToken)
	return nil
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// fakeXero is an in-memory accounting API.
type fakeXero struct {
	mu          sync.Mutex
	connections []xero.Connection
	deleted     []string
	contacts    []xero.Contact
	invoices    map[string]xero.Invoice
	history     map[string][]string
	created     int
	updated     int
	createErr   error
	connectErr  error
	lastTenant  string
	nextInvoice int
}

func newFakeXero() *fakeXero {
	return &fakeXero{
		connections: []xero.Connection{{ID: "conn-1", TenantID: "tenant-1", TenantType: "ORGANISATION", TenantName: "Demo Co"}},
		invoices:    make(map[string]xero.Invoice),
		history:     make(map[string][]string),
	}
}

func (f *fakeXero) Connections(ctx context.Context, tokens oauth2.TokenSource) ([]xero.Connection, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	if _, err := tokens.Token(); err != nil {
		return nil, err
	}
	return f.connections, nil
}

func (f *fakeXero) DeleteConnection(ctx context.Context, tokens oauth2.TokenSource, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeXero) FindContactByEmail(ctx context.Context, s xero.Session, email string) (*xero.Contact, error) {
	if _, err := s.Tokens.Token(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTenant = s.TenantID
	for _, c := range f.contacts {
		if c.EmailAddress == email {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeXero) CreateContact(ctx context.Context, s xero.Session, c xero.Contact) (*xero.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ContactID = fmt.Sprintf("contact-%d", len(f.contacts)+1)
	f.contacts = append(f.contacts, c)
	return &c, nil
}

func (f *fakeXero) CreateInvoice(ctx context.Context, s xero.Session, inv xero.Invoice) (*xero.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	f.nextInvoice++
	inv.InvoiceID = fmt.Sprintf("xinv-%d", f.nextInvoice)
	inv.InvoiceNumber = fmt.Sprintf("INV-%04d", f.nextInvoice)
	f.invoices[inv.InvoiceID] = inv
	return &inv, nil
}

func (f *fakeXero) UpdateInvoice(ctx context.Context, s xero.Session, inv xero.Invoice) (*xero.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.invoices[inv.InvoiceID]
	if !ok {
		return nil, &xero.APIError{StatusCode: 404, Message: "invoice not found"}
	}
	f.updated++
	inv.InvoiceNumber = prev.InvoiceNumber
	f.invoices[inv.InvoiceID] = inv
	return &inv, nil
}

func (f *fakeXero) AddHistory(ctx context.Context, s xero.Session, invoiceID, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[invoiceID] = append(f.history[invoiceID], note)
	return nil
}
