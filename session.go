package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserIdentity is the authenticated principal attached to a session.
type UserIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is one server-side login. The welcome flag is one-shot: set at
// login, cleared on first read.
type Session struct {
	Token       string
	UserID      int64
	Username    string
	LoginTime   time.Time
	ExpiresAt   time.Time
	showWelcome bool
}

func (s *Session) Identity() *UserIdentity {
	if s == nil {
		return nil
	}
	return &UserIdentity{ID: s.UserID, Username: s.Username}
}

// SessionManager keeps live sessions in memory, keyed by opaque token.
type SessionManager struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
}

func newSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		sessions: map[string]*Session{},
	}
}

func (sm *SessionManager) Create(userID int64, username string, now time.Time) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := &Session{
		Token:       uuid.NewString(),
		UserID:      userID,
		Username:    username,
		LoginTime:   now,
		ExpiresAt:   now.Add(sm.ttl),
		showWelcome: true,
	}
	sm.sessions[s.Token] = s
	return s
}

// Lookup returns the session for a token, or nil when the token is unknown
// or expired. Expired sessions are removed on the way out.
func (sm *SessionManager) Lookup(token string, now time.Time) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[token]
	if s == nil {
		return nil
	}
	if now.After(s.ExpiresAt) {
		delete(sm.sessions, token)
		return nil
	}
	return s
}

// ConsumeWelcome reports whether the session is a fresh login and clears
// the flag so the welcome only shows once.
func (sm *SessionManager) ConsumeWelcome(token string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[token]
	if s == nil || !s.showWelcome {
		return false
	}
	s.showWelcome = false
	return true
}

func (sm *SessionManager) Destroy(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, token)
}
