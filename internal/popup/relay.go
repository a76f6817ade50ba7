package popup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
)

const maxRelayBody = 4 << 10

// Relay receives completion messages on a loopback HTTP endpoint and
// broadcasts them to Flow subscribers. The completion page POSTs the same
// message it would post to its opener window.
type Relay struct {
	*Broadcaster
	allowed map[string]struct{}
	log     *logger.Logger
	srv     *http.Server
	url     string
}

// NewRelay creates a relay answering CORS requests from allowedOrigins.
func NewRelay(allowedOrigins []string, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}
	r := &Relay{
		Broadcaster: NewBroadcaster(),
		allowed:     make(map[string]struct{}, len(allowedOrigins)),
		log:         log,
	}
	for _, o := range allowedOrigins {
		r.allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return r
}

// Start listens on a loopback addr and serves until ctx is cancelled or
// Shutdown is called.
func (r *Relay) Start(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("relay address: %w", err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("relay must listen on loopback, got %q", host)
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}
	r.url = "http://" + ln.Addr().String() + "/message"
	r.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := r.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error().Err(err).Msg("relay stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = r.Shutdown(context.Background())
	}()

	r.log.Debug().Str("url", r.url).Msg("relay listening")
	return nil
}

// URL is the endpoint the completion page should post to. Empty before Start.
func (r *Relay) URL() string {
	return r.url
}

// Shutdown stops the listener.
func (r *Relay) Shutdown(ctx context.Context) error {
	if r.srv == nil {
		return nil
	}
	return r.srv.Shutdown(ctx)
}

// ServeHTTP handles POST /message and its CORS preflight.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/message" {
		http.NotFound(w, req)
		return
	}

	origin := strings.TrimRight(req.Header.Get("Origin"), "/")
	_, allowed := r.allowed[origin]
	if allowed {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}

	switch req.Method {
	case http.MethodOptions:
		if !allowed {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		// Chrome asks before letting a public page reach a loopback address.
		w.Header().Set("Access-Control-Allow-Private-Network", "true")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		var msg Message
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRelayBody)).Decode(&msg); err != nil {
			http.Error(w, "invalid message", http.StatusBadRequest)
			return
		}
		// The browser-set Origin header is authoritative; Flow filters on it.
		msg.Origin = origin
		r.Publish(msg)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
