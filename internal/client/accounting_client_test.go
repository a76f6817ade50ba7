package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ar-invoicing/internal/classifier"
	"github.com/pesio-ai/be-ar-invoicing/internal/httpclient"
)

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, statusPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"connected":true,"tenantName":"Demo Company (US)"}`))
	}))
	defer srv.Close()

	status, err := NewAccountingClient(srv.URL).CheckStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ConnectionStatus{Connected: true, TenantName: "Demo Company (US)"}, status)
}

func TestCheckStatusDisconnectedNullTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connected":false,"tenantName":null}`))
	}))
	defer srv.Close()

	status, err := NewAccountingClient(srv.URL).CheckStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Empty(t, status.TenantName)
}

func TestCheckStatusErrorsAreClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not allowed","error":"forbidden"}`))
	}))
	defer srv.Close()

	_, err := NewAccountingClient(srv.URL).CheckStatus(context.Background())

	var ce *classifier.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, classifier.KindPermissionDenied, ce.Kind)

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	_, err = NewAccountingClient(deadURL).CheckStatus(context.Background())
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, classifier.KindTransport, ce.Kind)
}

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, invoicesPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req CreateInvoiceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"c1", "c2"}, req.ContractIDs)

		_ = json.NewEncoder(w).Encode(CreateInvoiceResponse{
			InvoiceID: "inv-1", InvoiceNumber: "INV-0001", ContractIDs: req.ContractIDs, IsUpdate: true,
		})
	}))
	defer srv.Close()

	c := NewAccountingClient(srv.URL, httpclient.WithToken("secret"))
	resp, err := c.CreateInvoice(context.Background(), CreateInvoiceRequest{
		ContractIDs: []string{"c1", "c2"}, InvoiceDate: "2026-10-01", DueDate: "2026-10-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", resp.InvoiceNumber)
	assert.True(t, resp.IsUpdate)
}

func TestCreateInvoiceExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Xero session expired","error":"refresh_expired","requiresReconnection":true}`))
	}))
	defer srv.Close()

	_, err := NewAccountingClient(srv.URL).CreateInvoice(context.Background(), CreateInvoiceRequest{})
	assert.Equal(t, classifier.KindExpiredAuth, classifier.KindOf(err))
}

func TestDisconnect(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == disconnectPath
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewAccountingClient(srv.URL).Disconnect(context.Background()))
	assert.True(t, called)
}

func TestAuthorizationURL(t *testing.T) {
	c := NewAccountingClient("https://dash.example/")
	assert.Equal(t, "https://dash.example/api/v1/xero/connect", c.AuthorizationURL(""))

	u, err := url.Parse(c.AuthorizationURL("http://127.0.0.1:5151/message"))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/xero/connect", u.Path)
	assert.Equal(t, "http://127.0.0.1:5151/message", u.Query().Get("relay"))
}
