// Package popup runs a third-party authorization in a detached browser window
// and waits for the window to report back. The outcome is decided by whichever
// happens first: an allow-listed completion message, the user closing the
// window, or the timeout.
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ar-invoicing/internal/logger"
)

// Message types posted by the authorization completion page.
const (
	MessageAuthorized = "xero_authorized"
	MessageAuthFailed = "xero_auth_failed"
)

// Known origins of the Xero identity pages.
const (
	XeroLoginOrigin    = "https://login.xero.com"
	XeroIdentityOrigin = "https://identity.xero.com"
)

var (
	ErrPopupBlocked = errors.New("authorization window could not be opened")
	ErrWindowClosed = errors.New("window closed before completion")
	ErrTimeout      = errors.New("authorization timed out")
)

const defaultDeniedReason = "authorization failed"

// DeniedError is an explicit failure reported by the provider.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

// Message is a cross-window message received from the authorization page.
type Message struct {
	Origin string `json:"origin"`
	Type   string `json:"type"`
	Reason string `json:"message,omitempty"`
}

// Geometry is the size and screen position of the window.
type Geometry struct {
	Width  int
	Height int
	Left   int
	Top    int
}

// Window is an opened authorization window.
type Window interface {
	Closed() bool
	Close() error
}

// Opener opens authorization windows. An error means the window could not
// be created at all.
type Opener interface {
	Open(url string, g Geometry) (Window, error)
}

// MessageSource delivers messages from authorization windows.
type MessageSource interface {
	Subscribe() (<-chan Message, func())
}

// Config controls window placement and timing.
type Config struct {
	Width          int
	Height         int
	ScreenWidth    int
	ScreenHeight   int
	PollInterval   time.Duration
	Timeout        time.Duration
	CloseGrace     time.Duration
	AllowedOrigins []string
}

// DefaultConfig returns a 600x700 window centered on a 1920x1080 screen.
func DefaultConfig(appOrigin string) Config {
	return Config{
		Width:          600,
		Height:         700,
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		PollInterval:   500 * time.Millisecond,
		Timeout:        5 * time.Minute,
		CloseGrace:     time.Second,
		AllowedOrigins: AllowedOrigins(appOrigin),
	}
}

// AllowedOrigins is the app origin plus the Xero identity origins.
func AllowedOrigins(appOrigin string) []string {
	origins := []string{XeroLoginOrigin, XeroIdentityOrigin}
	if appOrigin = strings.TrimRight(appOrigin, "/"); appOrigin != "" {
		origins = append([]string{appOrigin}, origins...)
	}
	return origins
}

// Flow runs popup authorizations. A Flow may run several authorizations at
// once; each gets its own window and subscription.
type Flow struct {
	opener  Opener
	source  MessageSource
	cfg     Config
	clock   Clock
	log     *logger.Logger
	allowed map[string]struct{}
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(f *Flow) { f.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(f *Flow) { f.log = l }
}

// NewFlow creates a Flow.
func NewFlow(opener Opener, source MessageSource, cfg Config, opts ...Option) *Flow {
	f := &Flow{
		opener:  opener,
		source:  source,
		cfg:     cfg,
		clock:   RealClock{},
		log:     logger.Nop(),
		allowed: make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}
	for _, o := range cfg.AllowedOrigins {
		f.allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Geometry centers the configured window size on the configured screen.
func (f *Flow) Geometry() Geometry {
	return Geometry{
		Width:  f.cfg.Width,
		Height: f.cfg.Height,
		Left:   max(0, (f.cfg.ScreenWidth-f.cfg.Width)/2),
		Top:    max(0, (f.cfg.ScreenHeight-f.cfg.Height)/2),
	}
}

// Authorize opens a window at url and blocks until the authorization
// resolves. It returns nil once the provider reports success.
func (f *Flow) Authorize(ctx context.Context, url string) error {
	msgs, unsubscribe := f.source.Subscribe()
	defer unsubscribe()

	win, err := f.opener.Open(url, f.Geometry())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPopupBlocked, err)
	}
	f.log.Debug().Str("url", url).Msg("authorization window opened")

	poll := f.clock.NewTicker(f.cfg.PollInterval)
	defer poll.Stop()
	deadline := f.clock.NewTimer(f.cfg.Timeout)
	defer deadline.Stop()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			if done, err := f.settle(win, msg); done {
				return err
			}

		case <-poll.C():
			if !win.Closed() {
				continue
			}
			// A message sent just before the window closed still counts.
			for drained := false; !drained; {
				select {
				case msg, ok := <-msgs:
					if !ok {
						drained = true
						continue
					}
					if done, err := f.settle(win, msg); done {
						return err
					}
				default:
					drained = true
				}
			}
			f.log.Info().Msg("authorization window closed by user")
			return ErrWindowClosed

		case <-deadline.C():
			f.forceClose(win)
			f.log.Warn().Dur("timeout", f.cfg.Timeout).Msg("authorization timed out")
			return ErrTimeout

		case <-ctx.Done():
			f.forceClose(win)
			return ctx.Err()
		}
	}
}

// settle reports whether msg resolves the authorization, and with what.
func (f *Flow) settle(win Window, msg Message) (bool, error) {
	if _, ok := f.allowed[strings.TrimRight(msg.Origin, "/")]; !ok {
		f.log.Debug().Str("origin", msg.Origin).Msg("ignoring message from unknown origin")
		return false, nil
	}

	switch msg.Type {
	case MessageAuthorized:
		f.closeAfterGrace(win)
		return true, nil
	case MessageAuthFailed:
		reason := strings.TrimSpace(msg.Reason)
		if reason == "" {
			reason = defaultDeniedReason
		}
		f.closeAfterGrace(win)
		return true, &DeniedError{Reason: reason}
	}
	return false, nil
}

// closeAfterGrace lets the completion page close itself before forcing it.
func (f *Flow) closeAfterGrace(win Window) {
	if win.Closed() {
		return
	}
	f.clock.AfterFunc(f.cfg.CloseGrace, func() {
		if !win.Closed() {
			f.forceClose(win)
		}
	})
}

func (f *Flow) forceClose(win Window) {
	if err := win.Close(); err != nil {
		f.log.Warn().Err(err).Msg("failed to close authorization window")
	}
}
