package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ar-invoicing/internal/database"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
)

// InvoiceLink records which Xero invoice covers a contract.
type InvoiceLink struct {
	ContractID    string
	XeroInvoiceID string
	InvoiceNumber string
	RecipientKey  string
	UpdatedAt     time.Time
}

// InvoiceLinkRepository handles contract to Xero invoice links.
type InvoiceLinkRepository struct {
	db *database.DB
}

// NewInvoiceLinkRepository creates a new invoice link repository
func NewInvoiceLinkRepository(db *database.DB) *InvoiceLinkRepository {
	return &InvoiceLinkRepository{db: db}
}

// FindByContracts returns the links of any of the given contracts.
func (r *InvoiceLinkRepository) FindByContracts(ctx context.Context, contractIDs []string) ([]*InvoiceLink, error) {
	query := `
		SELECT contract_id::text, xero_invoice_id, invoice_number, recipient_key, updated_at
		FROM xero_invoice_links
		WHERE contract_id::text = ANY($1)
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, contractIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice links")
	}
	return scanLinks(rows)
}

func scanLinks(rows pgx.Rows) ([]*InvoiceLink, error) {
	defer rows.Close()

	links := make([]*InvoiceLink, 0)
	for rows.Next() {
		l := &InvoiceLink{}
		if err := rows.Scan(&l.ContractID, &l.XeroInvoiceID, &l.InvoiceNumber, &l.RecipientKey, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan invoice link")
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read invoice links")
	}
	return links, nil
}

// FindByInvoice returns every contract link of one Xero invoice.
func (r *InvoiceLinkRepository) FindByInvoice(ctx context.Context, xeroInvoiceID string) ([]*InvoiceLink, error) {
	query := `
		SELECT contract_id::text, xero_invoice_id, invoice_number, recipient_key, updated_at
		FROM xero_invoice_links
		WHERE xero_invoice_id = $1
		ORDER BY contract_id
	`

	rows, err := r.db.Query(ctx, query, xeroInvoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get invoice links")
	}
	return scanLinks(rows)
}

// Save links every contract to the invoice and marks the contracts
// invoiced, in one transaction.
func (r *InvoiceLinkRepository) Save(ctx context.Context, links []*InvoiceLink) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		upsert := `
			INSERT INTO xero_invoice_links (contract_id, xero_invoice_id, invoice_number, recipient_key, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (contract_id) DO UPDATE
			SET xero_invoice_id = EXCLUDED.xero_invoice_id,
			    invoice_number = EXCLUDED.invoice_number,
			    recipient_key = EXCLUDED.recipient_key,
			    updated_at = NOW()
		`

		batch := &pgx.Batch{}
		ids := make([]string, 0, len(links))
		for _, l := range links {
			batch.Queue(upsert, l.ContractID, l.XeroInvoiceID, l.InvoiceNumber, l.RecipientKey)
			ids = append(ids, l.ContractID)
		}
		batch.Queue(`UPDATE contracts SET status = 'invoiced', invoiced_at = COALESCE(invoiced_at, NOW()), updated_at = NOW() WHERE id::text = ANY($1)`, ids)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to save invoice links")
		}
		return nil
	})
}
