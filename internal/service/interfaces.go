package service

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/pesio-ai/be-ar-invoicing/internal/repository"
	"github.com/pesio-ai/be-ar-invoicing/internal/xero"
)

// ConnectionStore persists the Xero connection.
type ConnectionStore interface {
	Get(ctx context.Context) (*repository.XeroConnection, error)
	Save(ctx context.Context, c *repository.XeroConnection) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken, tokenType string, expiry time.Time) error
	Delete(ctx context.Context) error
}

// PendingStore keeps one-time authorization state between connect and
// callback.
type PendingStore interface {
	Save(ctx context.Context, nonce string, p repository.PendingAuthorization) error
	Consume(ctx context.Context, nonce string) (*repository.PendingAuthorization, error)
}

// OAuthProvider runs the provider's OAuth2 flow.
type OAuthProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token) error) oauth2.TokenSource
	Revoke(ctx context.Context, refreshToken string) error
}

// XeroAPI is the accounting API surface the services use.
type XeroAPI interface {
	Connections(ctx context.Context, tokens oauth2.TokenSource) ([]xero.Connection, error)
	DeleteConnection(ctx context.Context, tokens oauth2.TokenSource, connectionID string) error
	FindContactByEmail(ctx context.Context, s xero.Session, email string) (*xero.Contact, error)
	CreateContact(ctx context.Context, s xero.Session, c xero.Contact) (*xero.Contact, error)
	CreateInvoice(ctx context.Context, s xero.Session, inv xero.Invoice) (*xero.Invoice, error)
	UpdateInvoice(ctx context.Context, s xero.Session, inv xero.Invoice) (*xero.Invoice, error)
	AddHistory(ctx context.Context, s xero.Session, invoiceID, note string) error
}

// ContractStore reads contracts.
type ContractStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]*repository.Contract, error)
}

// InvoiceLinkStore tracks which invoice covers which contract.
type InvoiceLinkStore interface {
	FindByContracts(ctx context.Context, contractIDs []string) ([]*repository.InvoiceLink, error)
	FindByInvoice(ctx context.Context, xeroInvoiceID string) ([]*repository.InvoiceLink, error)
	Save(ctx context.Context, links []*repository.InvoiceLink) error
}

// EventPublisher publishes invoice events.
type EventPublisher interface {
	PublishInvoiceEvent(eventType, invoiceID, tenantID string, payload map[string]any)
}
