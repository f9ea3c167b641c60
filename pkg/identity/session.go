package identity

import (
	"sync"

	"go.uber.org/zap"
)

// Event is an authentication lifecycle event
type Event string

const (
	EventSignedIn       Event = "signed_in"
	EventSignedOut      Event = "signed_out"
	EventTokenRefreshed Event = "token_refreshed"
)

// Session holds the current identity of one client and notifies listeners
// when it changes
type Session struct {
	verifier *Verifier
	logger   *zap.Logger

	mu        sync.RWMutex
	token     string
	current   *Identity
	listeners []func(Event, *Identity)
}

// NewSession creates a signed-out session
func NewSession(verifier *Verifier, logger *zap.Logger) *Session {
	return &Session{verifier: verifier, logger: logger}
}

// OnAuthEvent registers a callback for lifecycle events. The identity is nil
// for EventSignedOut.
func (s *Session) OnAuthEvent(fn func(Event, *Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the signed-in identity, or nil
func (s *Session) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token returns the access token of the signed-in identity
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SignIn verifies token and makes it the session's identity
func (s *Session) SignIn(token string) (*Identity, error) {
	return s.setToken(token, EventSignedIn)
}

// Refresh replaces the access token. The new token must belong to the same
// user; otherwise it is treated as a fresh sign-in.
func (s *Session) Refresh(token string) (*Identity, error) {
	prev := s.Current()
	event := EventTokenRefreshed
	if prev == nil {
		event = EventSignedIn
	}

	id, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.UserID != id.UserID {
		event = EventSignedIn
	}
	s.set(token, id, event)
	return id, nil
}

// SignOut clears the identity
func (s *Session) SignOut() {
	if s.Current() == nil {
		return
	}
	s.set("", nil, EventSignedOut)
}

func (s *Session) setToken(token string, event Event) (*Identity, error) {
	id, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	s.set(token, id, event)
	return id, nil
}

func (s *Session) set(token string, id *Identity, event Event) {
	s.mu.Lock()
	s.token = token
	s.current = id
	listeners := append([]func(Event, *Identity){}, s.listeners...)
	s.mu.Unlock()

	if id != nil {
		s.logger.Debug("Auth event", zap.String("event", string(event)), zap.String("user_id", id.UserID))
	} else {
		s.logger.Debug("Auth event", zap.String("event", string(event)))
	}

	for _, fn := range listeners {
		fn(event, id)
	}
}
