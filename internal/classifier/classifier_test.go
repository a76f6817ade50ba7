package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/httpclient"
	"github.com/pesio-ai/be-ar-invoicing/internal/popup"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"requires reconnection flag", &httpclient.APIError{StatusCode: 500, RequiresReconnection: true}, KindExpiredAuth},
		{"refresh expired code", &httpclient.APIError{StatusCode: 401, Code: "refresh_expired"}, KindExpiredAuth},
		{"token expired code", &httpclient.APIError{StatusCode: 401, Code: "TOKEN_EXPIRED"}, KindExpiredAuth},
		{"no credentials code", &httpclient.APIError{StatusCode: 401, Code: "no_credentials"}, KindExpiredAuth},
		{"authentication error code", &httpclient.APIError{StatusCode: 401, Code: "authentication_error"}, KindExpiredAuth},
		{"expired phrase", &httpclient.APIError{StatusCode: 400, Message: "Session Expired"}, KindExpiredAuth},
		{"reconnect phrase", &httpclient.APIError{StatusCode: 409, Message: "please reconnect Xero"}, KindExpiredAuth},
		{"expiry wins over 403", &httpclient.APIError{StatusCode: 403, Code: "expired"}, KindExpiredAuth},
		{"forbidden", &httpclient.APIError{StatusCode: 403, Code: "forbidden"}, KindPermissionDenied},
		{"not found", &httpclient.APIError{StatusCode: 404, Code: "not_found"}, KindNotFound},
		{"bad request", &httpclient.APIError{StatusCode: 400, Code: "invalid_input"}, KindValidation},
		{"unprocessable", &httpclient.APIError{StatusCode: 422}, KindValidation},
		{"bare 401", &httpclient.APIError{StatusCode: 401}, KindUnknown},
		{"server error", &httpclient.APIError{StatusCode: 500, Message: "boom"}, KindUnknown},
		{"transport", &httpclient.TransportError{Method: "GET", URL: "http://x", Err: errors.New("connection refused")}, KindTransport},
		{"cancelled", fmt.Errorf("submit: %w", context.Canceled), KindTransport},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"popup blocked", fmt.Errorf("%w: no browser", popup.ErrPopupBlocked), KindPopupBlocked},
		{"window closed", popup.ErrWindowClosed, KindAuthAbandoned},
		{"popup timeout", popup.ErrTimeout, KindAuthTimeout},
		{"denied", &popup.DeniedError{Reason: "access_denied"}, KindAuthDenied},
		{"preflight", &billing.PreflightError{Violations: []billing.Violation{{Field: "selection", Reason: "is empty"}}}, KindPreflightInvalid},
		{"plain expired", errors.New("token expired"), KindExpiredAuth},
		{"plain", errors.New("weird"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}
}

func TestClassifyMessages(t *testing.T) {
	c := Classify(&httpclient.APIError{StatusCode: http.StatusForbidden, Message: "Organisation not permitted"})
	assert.Equal(t, "Organisation not permitted", c.Message)

	c = Classify(&httpclient.APIError{StatusCode: http.StatusNotFound})
	assert.Equal(t, "status 404: Not Found", c.Message)

	c = Classify(&popup.DeniedError{Reason: "consent declined"})
	assert.Equal(t, "consent declined", c.Message)
}

func TestOnlyExpiredAuthIsRetryable(t *testing.T) {
	for _, k := range []Kind{
		KindPermissionDenied, KindNotFound, KindValidation, KindTransport, KindUnknown,
		KindPreflightInvalid, KindPopupBlocked, KindAuthAbandoned, KindAuthTimeout, KindAuthDenied,
	} {
		assert.False(t, Classification{Kind: k}.Retryable(), k)
	}
	assert.True(t, Classification{Kind: KindExpiredAuth}.Retryable())
}

func TestWrapKeepsClassificationAndCause(t *testing.T) {
	cause := &httpclient.APIError{StatusCode: 401, Code: "refresh_expired", Message: "reconnect"}
	err := Wrap(fmt.Errorf("probe: %w", cause))

	var ce *Error
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, KindExpiredAuth, ce.Kind)

	var apiErr *httpclient.APIError
	assert.True(t, errors.As(err, &apiErr))

	assert.Same(t, err, Wrap(err))
	assert.NoError(t, Wrap(nil))
	assert.Equal(t, KindExpiredAuth, KindOf(fmt.Errorf("outer: %w", err)))
}

func TestNew(t *testing.T) {
	err := New(KindAuthDenied, "authorization completed but connection not confirmed")
	assert.Equal(t, "auth_denied: authorization completed but connection not confirmed", err.Error())
	assert.Equal(t, KindAuthDenied, Classify(err).Kind)
}
