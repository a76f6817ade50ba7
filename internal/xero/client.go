package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
)

const accountingPath = "/api.xro/2.0"

// APIError is a non-2xx response from the Xero API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("xero: status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("xero: status %d: %s", e.StatusCode, e.Message)
}

// Session is an authorized connection to one organisation.
type Session struct {
	Tokens   oauth2.TokenSource
	TenantID string
}

// Client calls the Xero API. Requests are throttled by a shared limiter
// because Xero enforces per-app and per-tenant minute limits.
type Client struct {
	baseURL string
	base    http.RoundTripper
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates an API client.
func NewClient(baseURL string, requestsPerSecond float64, burst int, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    http.DefaultTransport,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     log.Component("xero"),
	}
}

// Connections lists the organisations the token may access.
func (c *Client) Connections(ctx context.Context, tokens oauth2.TokenSource) ([]Connection, error) {
	var conns []Connection
	if err := c.do(ctx, Session{Tokens: tokens}, http.MethodGet, "/connections", nil, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

// DeleteConnection removes the app's access to an organisation.
func (c *Client) DeleteConnection(ctx context.Context, tokens oauth2.TokenSource, connectionID string) error {
	return c.do(ctx, Session{Tokens: tokens}, http.MethodDelete, "/connections/"+url.PathEscape(connectionID), nil, nil)
}

// FindContactByEmail returns the first contact with the email address, or
// nil when there is none.
func (c *Client) FindContactByEmail(ctx context.Context, s Session, email string) (*Contact, error) {
	where := fmt.Sprintf(`EmailAddress=="%s"`, strings.ReplaceAll(email, `"`, `\"`))
	path := accountingPath + "/Contacts?" + url.Values{"where": {where}}.Encode()

	var env contactsEnvelope
	if err := c.do(ctx, s, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Contacts) == 0 {
		return nil, nil
	}
	return &env.Contacts[0], nil
}

// CreateContact creates a contact.
func (c *Client) CreateContact(ctx context.Context, s Session, contact Contact) (*Contact, error) {
	var env contactsEnvelope
	if err := c.do(ctx, s, http.MethodPut, accountingPath+"/Contacts", contactsEnvelope{Contacts: []Contact{contact}}, &env); err != nil {
		return nil, err
	}
	if len(env.Contacts) == 0 {
		return nil, fmt.Errorf("xero: create contact returned no contact")
	}
	return &env.Contacts[0], nil
}

// CreateInvoice creates an invoice.
func (c *Client) CreateInvoice(ctx context.Context, s Session, inv Invoice) (*Invoice, error) {
	return c.writeInvoice(ctx, s, http.MethodPut, accountingPath+"/Invoices", inv)
}

// UpdateInvoice replaces the lines and header fields of an existing invoice.
func (c *Client) UpdateInvoice(ctx context.Context, s Session, inv Invoice) (*Invoice, error) {
	return c.writeInvoice(ctx, s, http.MethodPost, accountingPath+"/Invoices/"+url.PathEscape(inv.InvoiceID), inv)
}

func (c *Client) writeInvoice(ctx context.Context, s Session, method, path string, inv Invoice) (*Invoice, error) {
	var env invoicesEnvelope
	if err := c.do(ctx, s, method, path, invoicesEnvelope{Invoices: []Invoice{inv}}, &env); err != nil {
		return nil, err
	}
	if len(env.Invoices) == 0 {
		return nil, fmt.Errorf("xero: invoice write returned no invoice")
	}
	return &env.Invoices[0], nil
}

// AddHistory appends a note to an invoice's history.
func (c *Client) AddHistory(ctx context.Context, s Session, invoiceID, note string) error {
	body := historyEnvelope{HistoryRecords: []historyRecord{{Details: note}}}
	return c.do(ctx, s, http.MethodPut, accountingPath+"/Invoices/"+url.PathEscape(invoiceID)+"/History", body, nil)
}

func (c *Client) do(ctx context.Context, s Session, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("xero rate limit: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.TenantID != "" {
		req.Header.Set("xero-tenant-id", s.TenantID)
	}

	hc := &http.Client{Transport: &oauth2.Transport{Source: s.Tokens, Base: c.base}}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("xero %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("xero request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode xero response: %w", err)
	}
	return nil
}

// xeroError covers both error shapes Xero returns: accounting validation
// errors and identity problem details.
type xeroError struct {
	Type     string `json:"Type"`
	Message  string `json:"Message"`
	Title    string `json:"Title"`
	Detail   string `json:"Detail"`
	Elements []struct {
		ValidationErrors []struct {
			Message string `json:"Message"`
		} `json:"ValidationErrors"`
	} `json:"Elements"`
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var xe xeroError
	if json.Unmarshal(raw, &xe) != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	apiErr.Type = xe.Type
	if apiErr.Type == "" {
		apiErr.Type = xe.Title
	}
	var msgs []string
	for _, el := range xe.Elements {
		for _, ve := range el.ValidationErrors {
			msgs = append(msgs, ve.Message)
		}
	}
	switch {
	case len(msgs) > 0:
		apiErr.Message = strings.Join(msgs, "; ")
	case xe.Message != "":
		apiErr.Message = xe.Message
	default:
		apiErr.Message = xe.Detail
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
