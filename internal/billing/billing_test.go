package billing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() Fields {
	return Fields{InvoiceDate: "2026-10-01", DueDate: "2026-10-31", Reference: "OCT"}
}

func record(id string, payer Payer) Record {
	return Record{
		ID:     id,
		Payer:  payer,
		Status: StatusActive,
		Buyer:  Party{Name: "Buyer Co", Email: "ap@buyer.example"},
		Seller: Party{Name: "Seller Co", Email: "ar@seller.example"},
	}
}

func TestPayerNormalize(t *testing.T) {
	assert.Equal(t, PayerNone, Payer("").Normalize())
	assert.Equal(t, PayerSeller, Payer(" Seller ").Normalize())
	assert.Equal(t, PayerNone, Payer("nobody").Normalize())
	assert.True(t, PayerSplit.SellerResponsible())
	assert.False(t, Payer("").SellerResponsible())
}

func TestRecipient(t *testing.T) {
	side, party := record("1", PayerSplit).Recipient()
	assert.Equal(t, SideSeller, side)
	assert.Equal(t, "Seller Co", party.Name)

	side, party = record("2", PayerNone).Recipient()
	assert.Equal(t, SideBuyer, side)
	assert.Equal(t, "Buyer Co", party.Name)
}

func TestPreflightAcceptsValidSelection(t *testing.T) {
	records := []Record{record("1", PayerBuyer), record("2", PayerSeller)}
	records[1].Status = StatusInvoiced
	assert.NoError(t, Preflight(records, validFields()))
}

func TestPreflightCollectsViolations(t *testing.T) {
	missingEmail := record("2", PayerSeller)
	missingEmail.Seller.Email = "  "
	draft := record("3", PayerBuyer)
	draft.Status = StatusDraft

	records := []Record{record("1", PayerBuyer), record("1", PayerBuyer), missingEmail, draft}
	fields := Fields{InvoiceDate: "2026-10-31", DueDate: "2026-10-01"}

	err := Preflight(records, fields)

	var pe *PreflightError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Violations, 4)
	msg := err.Error()
	assert.Contains(t, msg, "more than once")
	assert.Contains(t, msg, "seller.email")
	assert.Contains(t, msg, `"draft" is not invoiceable`)
	assert.Contains(t, msg, "dueDate is before invoiceDate")
}

func TestPreflightRejectsEmptyAndMalformedDates(t *testing.T) {
	err := Preflight(nil, Fields{InvoiceDate: "01/10/2026"})
	var pe *PreflightError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Violations, 3)
}

func TestDecodeSelection(t *testing.T) {
	doc := `
invoiceDate: "2026-10-01"
dueDate: "2026-10-31"
reference: OCT
notes: monthly run
records:
  - id: c1
    contractNumber: CN-1
    payer: split
    status: delivered
    buyer: {name: B, email: b@example.com}
    seller: {name: S, email: s@example.com}
`
	sel, err := DecodeSelection(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "OCT", sel.Fields.Reference)
	assert.Equal(t, "monthly run", sel.Fields.Notes)
	require.Len(t, sel.Records, 1)
	assert.Equal(t, PayerSplit, sel.Records[0].Payer)
	assert.Equal(t, "s@example.com", sel.Records[0].Seller.Email)
}

func TestDecodeSelectionRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeSelection(strings.NewReader("records: []\ninvoice_date: x\n"))
	assert.Error(t, err)
}
