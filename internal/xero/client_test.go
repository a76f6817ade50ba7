package xero

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func staticSession() Session {
	return Session{Tokens: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "at-1"}), TenantID: "tenant-1"}
}

func TestConnections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connections", r.URL.Path)
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("xero-tenant-id"))
		_, _ = w.Write([]byte(`[{"id":"conn-1","tenantId":"tenant-1","tenantType":"ORGANISATION","tenantName":"Demo Company (US)"}]`))
	}))
	defer srv.Close()

	conns, err := NewClient(srv.URL, 100, 10, nil).Connections(context.Background(), staticSession().Tokens)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "Demo Company (US)", conns[0].TenantName)
}

func TestFindContactByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api.xro/2.0/Contacts", r.URL.Path)
		assert.Equal(t, `EmailAddress=="ap@buyer.example"`, r.URL.Query().Get("where"))
		assert.Equal(t, "tenant-1", r.Header.Get("xero-tenant-id"))
		_, _ = w.Write([]byte(`{"Contacts":[{"ContactID":"ct-1","Name":"Buyer Co","EmailAddress":"ap@buyer.example"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 100, 10, nil).FindContactByEmail(context.Background(), staticSession(), "ap@buyer.example")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "ct-1", c.ContactID)
}

func TestFindContactByEmailNone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Contacts":[]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 100, 10, nil).FindContactByEmail(context.Background(), staticSession(), "x@example.com")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCreateAndUpdateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env invoicesEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		require.Len(t, env.Invoices, 1)
		inv := env.Invoices[0]

		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api.xro/2.0/Invoices":
			assert.Equal(t, InvoiceTypeReceivable, inv.Type)
			inv.InvoiceID, inv.InvoiceNumber = "inv-1", "INV-0001"
		case r.Method == http.MethodPost && r.URL.Path == "/api.xro/2.0/Invoices/inv-1":
			assert.Equal(t, "inv-1", inv.InvoiceID)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(invoicesEnvelope{Invoices: []Invoice{inv}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 100, 10, nil)
	inv := Invoice{
		Type:      InvoiceTypeReceivable,
		Contact:   Contact{ContactID: "ct-1"},
		Date:      "2026-10-01",
		DueDate:   "2026-10-31",
		LineItems: []LineItem{{Description: "Brokerage CN-1", Quantity: 1, UnitAmount: 125.5, AccountCode: "200"}},
	}

	created, err := c.CreateInvoice(context.Background(), staticSession(), inv)
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", created.InvoiceNumber)

	updated, err := c.UpdateInvoice(context.Background(), staticSession(), *created)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", updated.InvoiceID)
}

func TestAddHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api.xro/2.0/Invoices/inv-1/History", r.URL.Path)
		var env historyEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		assert.Equal(t, "October brokerage", env.HistoryRecords[0].Details)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, 100, 10, nil).AddHistory(context.Background(), staticSession(), "inv-1", "October brokerage"))
}

func TestValidationErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ErrorNumber":10,"Type":"ValidationException","Message":"A validation exception occurred","Elements":[{"ValidationErrors":[{"Message":"Email address must be valid."}]}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 100, 10, nil).CreateContact(context.Background(), staticSession(), Contact{Name: "x"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "ValidationException", apiErr.Type)
	assert.Equal(t, "Email address must be valid.", apiErr.Message)
}

func TestProblemDetailDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"Title":"Unauthorized","Status":401,"Detail":"AuthenticationUnsuccessful"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 100, 10, nil).Connections(context.Background(), staticSession().Tokens)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Unauthorized", apiErr.Type)
	assert.Equal(t, "AuthenticationUnsuccessful", apiErr.Message)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 0.001, 1, nil)
	c.limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Connections(ctx, staticSession().Tokens)
	assert.ErrorContains(t, err, "rate limit")
}
