package client

import "context"

// AccountingAPI is the dashboard backend's accounting integration as seen by
// the batch tool.
type AccountingAPI interface {
	CheckStatus(ctx context.Context) (ConnectionStatus, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	Disconnect(ctx context.Context) error
	AuthorizationURL(relayURL string) string
}
