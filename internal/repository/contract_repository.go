package repository

import (
	"context"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/database"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
)

// Contract is a brokerage contract with its counterparties resolved.
type Contract struct {
	ID             string
	ContractNumber string
	Commodity      string
	Payer          billing.Payer
	Status         billing.Status
	// BrokerageCents is the full brokerage amount in minor units.
	BrokerageCents int64
	Currency       string
	Buyer          billing.Party
	Seller         billing.Party
}

// Record returns the billing snapshot of the contract.
func (c *Contract) Record() billing.Record {
	return billing.Record{
		ID:             c.ID,
		ContractNumber: c.ContractNumber,
		Payer:          c.Payer,
		Buyer:          c.Buyer,
		Seller:         c.Seller,
		Status:         c.Status,
	}
}

// ContractRepository reads contracts for invoicing.
type ContractRepository struct {
	db database.Querier
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db database.Querier) *ContractRepository {
	return &ContractRepository{db: db}
}

// GetByIDs returns the live contracts with the given ids, in the order the
// ids were given. Any missing id is a not-found error.
func (r *ContractRepository) GetByIDs(ctx context.Context, ids []string) ([]*Contract, error) {
	query := `
		SELECT c.id::text, c.contract_number, COALESCE(c.commodity, ''), COALESCE(c.payer, 'none'),
		       c.status, c.brokerage_cents, c.currency,
		       COALESCE(b.name, ''), COALESCE(b.email, ''),
		       COALESCE(s.name, ''), COALESCE(s.email, '')
		FROM contracts c
		LEFT JOIN buyers b ON b.id = c.buyer_id
		LEFT JOIN sellers s ON s.id = c.seller_id
		WHERE c.id::text = ANY($1) AND c.deleted_at IS NULL
		ORDER BY array_position($1, c.id::text)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get contracts")
	}
	defer rows.Close()

	contracts := make([]*Contract, 0, len(ids))
	for rows.Next() {
		c := &Contract{}
		err := rows.Scan(
			&c.ID,
			&c.ContractNumber,
			&c.Commodity,
			&c.Payer,
			&c.Status,
			&c.BrokerageCents,
			&c.Currency,
			&c.Buyer.Name,
			&c.Buyer.Email,
			&c.Seller.Name,
			&c.Seller.Email,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan contract")
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read contracts")
	}

	if len(contracts) != len(ids) {
		found := make(map[string]struct{}, len(contracts))
		for _, c := range contracts {
			found[c.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return nil, errors.NotFound("contract", id)
			}
		}
	}
	return contracts, nil
}
