package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/httpclient"
)

const (
	statusPath     = "/api/v1/xero/status"
	connectPath    = "/api/v1/xero/connect"
	disconnectPath = "/api/v1/xero/disconnect"
	invoicesPath   = "/api/v1/invoices/xero"
)

// AccountingClient is the HTTP client for the accounting endpoints.
type AccountingClient struct {
	client *httpclient.Client
}

// NewAccountingClient creates a client for the backend at baseURL.
func NewAccountingClient(baseURL string, opts ...httpclient.Option) *AccountingClient {
	return &AccountingClient{client: httpclient.NewClient(baseURL, opts...)}
}

// CheckStatus reports whether a Xero organisation is connected. It has no
// side effects. Failures come back as *classifier.Error.
func (c *AccountingClient) CheckStatus(ctx context.Context) (ConnectionStatus, error) {
	var status ConnectionStatus
	if err := c.client.Get(ctx, statusPath, &status); err != nil {
		return ConnectionStatus{}, classifier.Wrap(fmt.Errorf("check connection status: %w", err))
	}
	return status, nil
}

// CreateInvoice submits one invoice request.
func (c *AccountingClient) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	var resp CreateInvoiceResponse
	if err := c.client.Post(ctx, invoicesPath, req, &resp); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &resp, nil
}

// Disconnect invalidates the stored Xero credentials.
func (c *AccountingClient) Disconnect(ctx context.Context) error {
	if err := c.client.Post(ctx, disconnectPath, nil, nil); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// AuthorizationURL is the page that starts the Xero consent flow. When
// relayURL is set the completion page also reports to it.
func (c *AccountingClient) AuthorizationURL(relayURL string) string {
	u := c.client.BaseURL() + connectPath
	if relayURL == "" {
		return u
	}
	return u + "?" + url.Values{"relay": {relayURL}}.Encode()
}
