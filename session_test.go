package main

import (
	"testing"
	"time"
)

func TestSessionCreateAndLookup(t *testing.T) {
	sm := newSessionManager(time.Hour)
	now := time.Now().UTC()
	s := sm.Create(7, "mira", now)
	if s.Token == "" {
		t.Fatalf("session should get an opaque token")
	}
	if s.UserID != 7 || s.Username != "mira" || !s.LoginTime.Equal(now) {
		t.Fatalf("session fields wrong: %+v", s)
	}

	got := sm.Lookup(s.Token, now.Add(time.Minute))
	if got == nil || got.Token != s.Token {
		t.Fatalf("lookup should return the live session")
	}
	if sm.Lookup("no-such-token", now) != nil {
		t.Fatalf("unknown token should resolve to nil")
	}
}

func TestSessionExpiry(t *testing.T) {
	sm := newSessionManager(time.Hour)
	now := time.Now().UTC()
	s := sm.Create(1, "mira", now)

	if sm.Lookup(s.Token, now.Add(2*time.Hour)) != nil {
		t.Fatalf("expired session should resolve to nil")
	}
	// Expiry removes the session for good.
	if sm.Lookup(s.Token, now) != nil {
		t.Fatalf("expired session should be deleted, not revived")
	}
}

func TestSessionWelcomeIsOneShot(t *testing.T) {
	sm := newSessionManager(time.Hour)
	s := sm.Create(1, "mira", time.Now().UTC())

	if !sm.ConsumeWelcome(s.Token) {
		t.Fatalf("fresh login should show the welcome once")
	}
	if sm.ConsumeWelcome(s.Token) {
		t.Fatalf("welcome should not show twice")
	}
	if sm.ConsumeWelcome("no-such-token") {
		t.Fatalf("unknown token should never show a welcome")
	}
}

func TestSessionDestroy(t *testing.T) {
	sm := newSessionManager(time.Hour)
	now := time.Now().UTC()
	s := sm.Create(1, "mira", now)
	sm.Destroy(s.Token)
	if sm.Lookup(s.Token, now) != nil {
		t.Fatalf("destroyed session should resolve to nil")
	}
}

func TestSessionIdentityNilSafe(t *testing.T) {
	var s *Session
	if s.Identity() != nil {
		t.Fatalf("nil session should yield nil identity")
	}
	s = &Session{UserID: 3, Username: "mira"}
	id := s.Identity()
	if id == nil || id.ID != 3 || id.Username != "mira" {
		t.Fatalf("identity = %+v", id)
	}
}
