package handler

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/pesio-ai/be-ar-invoicing/internal/client"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
	"github.com/pesio-ai/be-ar-invoicing/internal/popup"
	"github.com/pesio-ai/be-ar-invoicing/internal/service"
)

// Routes served by the HTTP handler.
const (
	PathHealth         = "/health"
	PathXeroStatus     = "/api/v1/xero/status"
	PathXeroConnect    = "/api/v1/xero/connect"
	PathXeroCallback   = "/api/v1/xero/callback"
	PathXeroDisconnect = "/api/v1/xero/disconnect"
	PathXeroInvoices   = "/api/v1/invoices/xero"
)

//go:embed templates/callback.html
var templateFS embed.FS

var callbackPage = template.Must(template.ParseFS(templateFS, "templates/callback.html"))

// ConnectionAPI is the connection service as used by the handler.
type ConnectionAPI interface {
	Status(ctx context.Context) (*service.ConnectionStatus, error)
	BeginAuthorization(ctx context.Context, relay, origin string) (string, error)
	CompleteAuthorization(ctx context.Context, code, state, providerError string) (*service.Completion, error)
	Disconnect(ctx context.Context) error
}

// InvoiceAPI creates Xero invoices.
type InvoiceAPI interface {
	CreateInvoice(ctx context.Context, req *client.CreateInvoiceRequest) (*client.CreateInvoiceResponse, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	connections ConnectionAPI
	invoices    InvoiceAPI
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(connections ConnectionAPI, invoices InvoiceAPI, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		connections: connections,
		invoices:    invoices,
		log:         log,
	}
}

// Register adds every route to mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc(PathHealth, h.Health)
	mux.HandleFunc(PathXeroStatus, h.XeroStatus)
	mux.HandleFunc(PathXeroConnect, h.XeroConnect)
	mux.HandleFunc(PathXeroCallback, h.XeroCallback)
	mux.HandleFunc(PathXeroDisconnect, h.XeroDisconnect)
	mux.HandleFunc(PathXeroInvoices, h.CreateXeroInvoice)
}

// PublicPaths are reached by a browser without the API token.
func PublicPaths() []string {
	return []string{PathHealth, PathXeroConnect, PathXeroCallback}
}

// Health handles liveness checks
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// XeroStatus reports the stored connection
func (h *HTTPHandler) XeroStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.connections.Status(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, client.ConnectionStatus{
		Connected:  status.Connected,
		TenantName: status.TenantName,
	})
}

// XeroConnect starts authorization and redirects to the Xero consent page
func (h *HTTPHandler) XeroConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	origin := r.URL.Query().Get("origin")
	if origin == "" {
		origin = r.Header.Get("Origin")
	}

	consentURL, err := h.connections.BeginAuthorization(r.Context(), r.URL.Query().Get("relay"), origin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, consentURL, http.StatusFound)
}

type callbackView struct {
	OK               bool
	Type             string
	Message          string
	TenantName       string
	Origin           string
	Relay            string
	CloseAfterMillis int
}

// XeroCallback finishes authorization and renders the page that reports the
// result to the opener window and the loopback relay
func (h *HTTPHandler) XeroCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	done, err := h.connections.CompleteAuthorization(r.Context(), q.Get("code"), q.Get("state"), q.Get("error"))

	view := callbackView{
		OK:               err == nil,
		Type:             popup.MessageAuthorized,
		CloseAfterMillis: 1500,
	}
	if done != nil {
		view.Origin = done.Origin
		view.Relay = done.Relay
		view.TenantName = done.TenantName
	}
	status := http.StatusOK
	if err != nil {
		view.Type = popup.MessageAuthFailed
		view.Message = err.Error()
		if desc := q.Get("error_description"); desc != "" && q.Get("error") != "" {
			view.Message = desc
		}
		status = errorStatus(err)
		h.log.Warn().Err(err).Msg("Xero authorization failed")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, view); err != nil {
		h.log.Error().Err(err).Msg("Failed to render callback page")
	}
}

// XeroDisconnect removes the stored connection
func (h *HTTPHandler) XeroDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.connections.Disconnect(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateXeroInvoice handles create invoice HTTP requests
func (h *HTTPHandler) CreateXeroInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req client.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	resp, err := h.invoices.CreateInvoice(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if resp.IsUpdate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type errorResponse struct {
	Message              string `json:"message"`
	Error                string `json:"error"`
	RequiresReconnection bool   `json:"requiresReconnection"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrCodeInternal, "internal error")
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{
		Message:              appErr.Error(),
		Error:                string(appErr.Code),
		RequiresReconnection: appErr.RequiresReconnection(),
	})
}

func errorStatus(err error) int {
	if appErr, ok := errors.As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
