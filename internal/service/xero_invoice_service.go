package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
	"github.com/pesio-ai/be-ar-invoicing/internal/grouping"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
	"github.com/pesio-ai/be-ar-invoicing/internal/repository"
	"github.com/pesio-ai/be-ar-invoicing/internal/xero"
)

// SessionProvider returns an authorized Xero session.
type SessionProvider interface {
	Session(ctx context.Context) (xero.Session, error)
}

// XeroInvoiceOptions configures invoice lines.
type XeroInvoiceOptions struct {
	SalesAccountCode string
	Currency         string
}

// XeroInvoiceService writes brokerage invoices to Xero.
type XeroInvoiceService struct {
	contracts ContractStore
	links     InvoiceLinkStore
	sessions  SessionProvider
	api       XeroAPI
	events    EventPublisher
	opts      XeroInvoiceOptions
	log       *logger.Logger
}

// NewXeroInvoiceService creates a new Xero invoice service
func NewXeroInvoiceService(
	contracts ContractStore,
	links InvoiceLinkStore,
	sessions SessionProvider,
	api XeroAPI,
	events EventPublisher,
	opts XeroInvoiceOptions,
	log *logger.Logger,
) *XeroInvoiceService {
	return &XeroInvoiceService{
		contracts: contracts,
		links:     links,
		sessions:  sessions,
		api:       api,
		events:    events,
		opts:      opts,
		log:       log.Component("xero_invoices"),
	}
}

// CreateInvoice creates one draft receivable invoice for contracts that
// share a recipient. When any of the contracts is already on an invoice for
// the same recipient, that invoice is rewritten to cover the union of its
// contracts and the requested ones.
func (s *XeroInvoiceService) CreateInvoice(ctx context.Context, req *client.CreateInvoiceRequest) (*client.CreateInvoiceResponse, error) {
	ids := dedupe(req.ContractIDs)
	if len(ids) == 0 {
		return nil, errors.InvalidInput("contractIds", "at least one contract is required")
	}
	fields := billing.Fields{
		InvoiceDate: req.InvoiceDate,
		DueDate:     req.DueDate,
		Reference:   req.Reference,
		Notes:       req.Notes,
	}

	contracts, err := s.contracts.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	key, err := singleRecipient(contracts, fields)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingInvoice(ctx, ids, key)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		linked, err := s.links.FindByInvoice(ctx, existing)
		if err != nil {
			return nil, err
		}
		extra := make([]string, 0, len(linked))
		for _, l := range linked {
			extra = append(extra, l.ContractID)
		}
		if merged := dedupe(append(ids, extra...)); len(merged) > len(ids) {
			ids = merged
			if contracts, err = s.contracts.GetByIDs(ctx, ids); err != nil {
				return nil, err
			}
			if mergedKey, err := singleRecipient(contracts, fields); err != nil {
				return nil, err
			} else if mergedKey != key {
				return nil, errors.New(errors.ErrCodeConflict, "existing invoice covers contracts of another recipient")
			}
		}
	}

	session, err := s.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}

	_, party := contracts[0].Record().Recipient()
	contact, err := s.contact(ctx, session, party)
	if err != nil {
		return nil, err
	}

	inv := xero.Invoice{
		InvoiceID:       existing,
		Type:            xero.InvoiceTypeReceivable,
		Contact:         xero.Contact{ContactID: contact.ContactID},
		Date:            req.InvoiceDate,
		DueDate:         req.DueDate,
		Reference:       req.Reference,
		Status:          xero.StatusDraft,
		CurrencyCode:    s.currency(contracts),
		LineAmountTypes: xero.LineAmountsExclusive,
		LineItems:       s.lines(contracts),
	}

	var written *xero.Invoice
	if existing != "" {
		written, err = s.api.UpdateInvoice(ctx, session, inv)
	} else {
		written, err = s.api.CreateInvoice(ctx, session, inv)
	}
	if err != nil {
		return nil, mapXeroError(err)
	}

	if note := strings.TrimSpace(req.Notes); note != "" {
		if err := s.api.AddHistory(ctx, session, written.InvoiceID, note); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", written.InvoiceID).Msg("Failed to add invoice note")
		}
	}

	links := make([]*repository.InvoiceLink, 0, len(contracts))
	for _, c := range contracts {
		links = append(links, &repository.InvoiceLink{
			ContractID:    c.ID,
			XeroInvoiceID: written.InvoiceID,
			InvoiceNumber: written.InvoiceNumber,
			RecipientKey:  string(key),
		})
	}
	var warning string
	if err := s.links.Save(ctx, links); err != nil {
		s.log.Error().
			Err(err).
			Str("invoice_id", written.InvoiceID).
			Str("invoice_number", written.InvoiceNumber).
			Strs("contract_ids", ids).
			Msg("Xero invoice written but contract links not saved")
		warning = fmt.Sprintf("invoice %s was written to Xero but is not linked to its contracts; edit it in Xero instead of invoicing these contracts again", written.InvoiceNumber)
	}

	eventType := client.EventInvoiceCreated
	if existing != "" {
		eventType = client.EventInvoiceUpdated
	}
	s.events.PublishInvoiceEvent(eventType, written.InvoiceID, session.TenantID, map[string]any{
		"invoice_number": written.InvoiceNumber,
		"contract_ids":   ids,
		"recipient":      party.Email,
		"total":          written.Total,
	})

	s.log.Info().
		Str("invoice_id", written.InvoiceID).
		Str("invoice_number", written.InvoiceNumber).
		Str("recipient_key", string(key)).
		Int("contract_count", len(ids)).
		Bool("is_update", existing != "").
		Msg("Xero invoice written")

	return &client.CreateInvoiceResponse{
		InvoiceID:     written.InvoiceID,
		InvoiceNumber: written.InvoiceNumber,
		ContractIDs:   ids,
		IsUpdate:      existing != "",
		Warning:       warning,
	}, nil
}

// singleRecipient runs preflight and requires every contract to share one
// recipient.
func singleRecipient(contracts []*repository.Contract, fields billing.Fields) (grouping.Key, error) {
	records := make([]billing.Record, len(contracts))
	for i, c := range contracts {
		records[i] = c.Record()
	}
	if err := billing.Preflight(records, fields); err != nil {
		var pe *billing.PreflightError
		if stderrors.As(err, &pe) && len(pe.Violations) > 0 {
			v := pe.Violations[0]
			return "", &errors.Error{Code: errors.ErrCodeInvalidInput, Field: v.Field, Message: err.Error(), Cause: err}
		}
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, err.Error())
	}
	groups := grouping.Partition(records)
	if groups.Len() != 1 {
		return "", errors.InvalidInput("contractIds", fmt.Sprintf("contracts resolve to %d different recipients", groups.Len()))
	}
	return groups.Keys()[0], nil
}

// existingInvoice returns the most recent invoice of key covering any of ids.
func (s *XeroInvoiceService) existingInvoice(ctx context.Context, ids []string, key grouping.Key) (string, error) {
	links, err := s.links.FindByContracts(ctx, ids)
	if err != nil {
		return "", err
	}
	for _, l := range links {
		if l.RecipientKey == string(key) {
			return l.XeroInvoiceID, nil
		}
	}
	return "", nil
}

func (s *XeroInvoiceService) contact(ctx context.Context, session xero.Session, party billing.Party) (*xero.Contact, error) {
	found, err := s.api.FindContactByEmail(ctx, session, party.Email)
	if err != nil {
		return nil, mapXeroError(err)
	}
	if found != nil {
		return found, nil
	}
	name := strings.TrimSpace(party.Name)
	if name == "" {
		name = party.Email
	}
	created, err := s.api.CreateContact(ctx, session, xero.Contact{Name: name, EmailAddress: party.Email})
	if err != nil {
		return nil, mapXeroError(err)
	}
	return created, nil
}

func (s *XeroInvoiceService) lines(contracts []*repository.Contract) []xero.LineItem {
	items := make([]xero.LineItem, 0, len(contracts))
	for _, c := range contracts {
		cents := c.BrokerageCents
		desc := "Brokerage for contract " + c.ContractNumber
		if c.Commodity != "" {
			desc += ": " + c.Commodity
		}
		if c.Payer.Normalize() == billing.PayerSplit {
			cents /= 2
			desc += " (50% share)"
		}
		items = append(items, xero.LineItem{
			Description: desc,
			Quantity:    1,
			UnitAmount:  float64(cents) / 100,
			AccountCode: s.opts.SalesAccountCode,
		})
	}
	return items
}

func (s *XeroInvoiceService) currency(contracts []*repository.Contract) string {
	for _, c := range contracts {
		if c.Currency != "" {
			return strings.ToUpper(c.Currency)
		}
	}
	return s.opts.Currency
}

// mapXeroError translates Xero and token errors to application errors.
func mapXeroError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if xero.IsRefreshRejected(err) {
		return errors.Wrap(err, errors.ErrCodeRefreshExpired, "Xero authorization has expired, please reconnect")
	}
	var apiErr *xero.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return errors.Wrap(err, errors.ErrCodeAuthentication, "Xero rejected the stored authorization, please reconnect")
		case http.StatusForbidden:
			return errors.Wrap(err, errors.ErrCodeForbidden, apiErr.Message)
		case http.StatusNotFound:
			return errors.Wrap(err, errors.ErrCodeNotFound, apiErr.Message)
		case http.StatusBadRequest:
			return errors.Wrap(err, errors.ErrCodeInvalidInput, apiErr.Message)
		}
	}
	return errors.Wrap(err, errors.ErrCodeUnavailable, "Xero request failed")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
