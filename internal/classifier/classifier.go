// Package classifier decides what a failed accounting call means for the
// caller. It is the only place that knows which failures are worth a
// reauthorization and which are final.
package classifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/pesio-ai/be-ar-invoicing/internal/billing"
	"github.com/pesio-ai/be-ar-invoicing/internal/httpclient"
	"github.com/pesio-ai/be-ar-invoicing/internal/popup"
)

// Kind is the category of a failure.
type Kind string

const (
	KindExpiredAuth      Kind = "expired_auth"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindValidation       Kind = "validation"
	KindTransport        Kind = "transport"
	KindUnknown          Kind = "unknown"

	KindPreflightInvalid Kind = "preflight_invalid"
	KindPopupBlocked     Kind = "popup_blocked"
	KindAuthAbandoned    Kind = "auth_abandoned"
	KindAuthTimeout      Kind = "auth_timeout"
	KindAuthDenied       Kind = "auth_denied"
)

// Classification is the verdict for one error.
type Classification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Retryable reports whether the failure may be retried after a
// reauthorization. Only expired authorization qualifies.
func (c Classification) Retryable() bool {
	return c.Kind == KindExpiredAuth
}

// expiredCodes are server error codes meaning the stored credentials are no
// longer usable.
var expiredCodes = map[string]struct{}{
	"expired":              {},
	"token_expired":        {},
	"refresh_expired":      {},
	"authentication_error": {},
	"no_credentials":       {},
}

var expiredPhrases = []string{"expired", "reconnect"}

// Classify maps an error to a Classification. A nil error classifies as
// Unknown with an empty message.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Classification
	}

	var pre *billing.PreflightError
	if errors.As(err, &pre) {
		return Classification{Kind: KindPreflightInvalid, Message: pre.Error()}
	}

	if c, ok := classifyPopup(err); ok {
		return c
	}

	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) {
		return classifyAPI(apiErr)
	}

	if isTransport(err) {
		return Classification{Kind: KindTransport, Message: "could not reach the server: " + err.Error()}
	}

	if hasExpiredPhrase(err.Error()) {
		return Classification{Kind: KindExpiredAuth, Message: err.Error()}
	}
	return Classification{Kind: KindUnknown, Message: err.Error()}
}

func classifyAPI(e *httpclient.APIError) Classification {
	msg := e.Message
	if msg == "" {
		msg = e.Error()
	}

	if e.RequiresReconnection {
		return Classification{Kind: KindExpiredAuth, Message: msg}
	}
	if _, ok := expiredCodes[strings.ToLower(e.Code)]; ok {
		return Classification{Kind: KindExpiredAuth, Message: msg}
	}
	if hasExpiredPhrase(e.Code) || hasExpiredPhrase(e.Message) {
		return Classification{Kind: KindExpiredAuth, Message: msg}
	}

	switch e.StatusCode {
	case http.StatusForbidden:
		return Classification{Kind: KindPermissionDenied, Message: msg}
	case http.StatusNotFound:
		return Classification{Kind: KindNotFound, Message: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return Classification{Kind: KindValidation, Message: msg}
	}
	return Classification{Kind: KindUnknown, Message: msg}
}

func classifyPopup(err error) (Classification, bool) {
	var denied *popup.DeniedError
	switch {
	case errors.Is(err, popup.ErrPopupBlocked):
		return Classification{Kind: KindPopupBlocked, Message: "the authorization window could not be opened"}, true
	case errors.Is(err, popup.ErrWindowClosed):
		return Classification{Kind: KindAuthAbandoned, Message: "authorization window closed before completion"}, true
	case errors.Is(err, popup.ErrTimeout):
		return Classification{Kind: KindAuthTimeout, Message: "authorization timed out"}, true
	case errors.As(err, &denied):
		return Classification{Kind: KindAuthDenied, Message: denied.Reason}, true
	}
	return Classification{}, false
}

func isTransport(err error) bool {
	var tErr *httpclient.TransportError
	if errors.As(err, &tErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func hasExpiredPhrase(s string) bool {
	s = strings.ToLower(s)
	for _, p := range expiredPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Error carries a classification alongside the error it was derived from.
type Error struct {
	Classification
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and returns it as an *Error. Nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	return &Error{Classification: Classify(err), Err: err}
}

// New returns a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Classification: Classification{Kind: kind, Message: message}}
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	return Classify(err).Kind
}
