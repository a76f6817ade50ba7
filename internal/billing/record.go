// Package billing holds the immutable record snapshot that invoicing works on
// and the checks a selection must pass before anything is sent upstream.
package billing

import (
	"strings"
)

// Payer says which side of a contract pays the brokerage.
type Payer string

const (
	PayerBuyer  Payer = "buyer"
	PayerSeller Payer = "seller"
	PayerSplit  Payer = "split"
	PayerNone   Payer = "none"
)

// Normalize maps the empty value to PayerNone.
func (p Payer) Normalize() Payer {
	switch Payer(strings.ToLower(strings.TrimSpace(string(p)))) {
	case PayerBuyer:
		return PayerBuyer
	case PayerSeller:
		return PayerSeller
	case PayerSplit:
		return PayerSplit
	default:
		return PayerNone
	}
}

// SellerResponsible reports whether the seller identity receives the invoice.
func (p Payer) SellerResponsible() bool {
	n := p.Normalize()
	return n == PayerSeller || n == PayerSplit
}

// Status is a contract's lifecycle status.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDelivered Status = "delivered"
	StatusInvoiced  Status = "invoiced"
	StatusCancelled Status = "cancelled"
)

// Invoiceable reports whether a contract in this status may be invoiced.
// An already invoiced contract updates its existing invoice.
func (s Status) Invoiceable() bool {
	switch Status(strings.ToLower(string(s))) {
	case StatusActive, StatusCompleted, StatusDelivered, StatusInvoiced:
		return true
	}
	return false
}

// Party is a counterparty identity.
type Party struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// Record is a snapshot of one billable contract.
type Record struct {
	ID             string `json:"id" yaml:"id"`
	ContractNumber string `json:"contractNumber" yaml:"contractNumber"`
	Payer          Payer  `json:"payer" yaml:"payer"`
	Buyer          Party  `json:"buyer" yaml:"buyer"`
	Seller         Party  `json:"seller" yaml:"seller"`
	Status         Status `json:"status" yaml:"status"`
}

// Side is which party of a record receives its invoice.
type Side string

const (
	SideBuyer  Side = "buyer"
	SideSeller Side = "seller"
)

// Recipient returns the side and party responsible for paying the record.
func (r Record) Recipient() (Side, Party) {
	if r.Payer.SellerResponsible() {
		return SideSeller, r.Seller
	}
	return SideBuyer, r.Buyer
}
