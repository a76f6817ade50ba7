package popup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayPreflight(t *testing.T) {
	r := NewRelay(AllowedOrigins(appOrigin), nil)

	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	req.Header.Set("Origin", appOrigin)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Private-Network"))

	req = httptest.NewRequest(http.MethodOptions, "/message", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRelayPublishesWithRequestOrigin(t *testing.T) {
	r := NewRelay(AllowedOrigins(appOrigin), nil)
	msgs, unsubscribe := r.Subscribe()
	defer unsubscribe()

	body := `{"type":"xero_auth_failed","message":"access_denied","origin":"https://spoofed.example"}`
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Origin", appOrigin+"/")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	select {
	case msg := <-msgs:
		assert.Equal(t, Message{Origin: appOrigin, Type: MessageAuthFailed, Reason: "access_denied"}, msg)
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}
}

func TestRelayRejectsBadRequests(t *testing.T) {
	r := NewRelay(nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/message", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelayStartRequiresLoopback(t *testing.T) {
	r := NewRelay(nil, nil)
	assert.Error(t, r.Start(context.Background(), "0.0.0.0:0"))
	assert.Error(t, r.Start(context.Background(), "example.com:0"))
}

func TestRelayStartServesOnLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRelay(AllowedOrigins(appOrigin), nil)
	require.NoError(t, r.Start(ctx, "127.0.0.1:0"))
	assert.True(t, strings.HasPrefix(r.URL(), "http://127.0.0.1:"))

	msgs, unsubscribe := r.Subscribe()
	defer unsubscribe()

	req, err := http.NewRequest(http.MethodPost, r.URL(), strings.NewReader(`{"type":"xero_authorized"}`))
	require.NoError(t, err)
	req.Header.Set("Origin", appOrigin)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case msg := <-msgs:
		assert.Equal(t, MessageAuthorized, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestBroadcasterUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	_, unsubscribe := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())
	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Subscribers())
	b.Publish(Message{Type: MessageAuthorized})
}
