package service

import (
	"fmt"
	"sync"
)

// AuthPhase is the coarse state of the accounting connection.
type AuthPhase int

const (
	PhaseUnknown AuthPhase = iota
	PhaseDisconnected
	PhaseConnected
	PhaseAuthorizing
)

func (p AuthPhase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnected:
		return "connected"
	case PhaseAuthorizing:
		return "authorizing"
	default:
		return "unknown"
	}
}

// AuthorizationState is what one batch believes about the connection.
// TenantName is only meaningful when Phase is PhaseConnected.
type AuthorizationState struct {
	Phase      AuthPhase
	TenantName string
}

func (s AuthorizationState) String() string {
	if s.Phase == PhaseConnected && s.TenantName != "" {
		return fmt.Sprintf("connected(%s)", s.TenantName)
	}
	return s.Phase.String()
}

// reauthorization is the single mid-batch reconnect. err is written before
// done is closed.
type reauthorization struct {
	done chan struct{}
	err  error
}

// authSession holds the authorization state of one CreateInvoices call. It
// is created when the call starts and dropped when it returns, so batches
// never observe each other's reconnects.
type authSession struct {
	mu     sync.Mutex
	state  AuthorizationState
	reauth *reauthorization
}

func newAuthSession() *authSession {
	return &authSession{state: AuthorizationState{Phase: PhaseUnknown}}
}

func (s *authSession) set(state AuthorizationState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *authSession) State() AuthorizationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// beginReauth returns the batch's reauthorization, creating it on first use.
// leader is true for exactly one caller per session, who must run it.
func (s *authSession) beginReauth() (r *reauthorization, leader bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reauth != nil {
		return s.reauth, false
	}
	s.reauth = &reauthorization{done: make(chan struct{})}
	s.state = AuthorizationState{Phase: PhaseDisconnected}
	return s.reauth, true
}

// current returns the reauthorization if one was started.
func (s *authSession) current() *reauthorization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reauth
}

// reauthorized reports whether a mid-batch reconnect completed successfully.
func (s *authSession) reauthorized() bool {
	r := s.current()
	if r == nil {
		return false
	}
	select {
	case <-r.done:
		return r.err == nil
	default:
		return false
	}
}
