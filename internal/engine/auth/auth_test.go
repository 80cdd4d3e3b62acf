package auth

import (
	"strings"
	"testing"
	"time"
)

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h == "password123" {
		t.Fatalf("hash equals plaintext")
	}
	if !CheckPassword(h, "password123") {
		t.Fatalf("expected match")
	}
	if CheckPassword(h, "password124") {
		t.Fatalf("expected mismatch")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	claims := SessionClaims("u1", "s1", "STLD", "NDS", "a@example.com", now, now.Add(time.Hour))
	tok, err := MintToken("secret", claims)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := ParseToken(tok, "secret", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Subject != "u1" || got.SessionID != "s1" || got.Role != "STLD" || got.Site != "NDS" || got.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if _, err := ParseToken(tok, "other", nil); err == nil {
		t.Fatalf("expected signature error")
	}

	expired := SessionClaims("u1", "s1", "STLD", "NDS", "", now.Add(-2*time.Hour), now.Add(-time.Hour))
	tok, _ = MintToken("secret", expired)
	if _, err := ParseToken(tok, "secret", nil); err == nil {
		t.Fatalf("expected expiry error")
	}

	if _, err := MintToken(" ", claims); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestParseTokenUsesGivenClock(t *testing.T) {
	issued := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	tok, err := MintToken("secret", SessionClaims("u1", "s1", "STLD", "NDS", "", issued, issued.Add(time.Hour)))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }
	if _, err := ParseToken(tok, "secret", at(issued.Add(30*time.Minute))); err != nil {
		t.Fatalf("expected valid token inside ttl: %v", err)
	}
	if _, err := ParseToken(tok, "secret", at(issued.Add(2*time.Hour))); err == nil {
		t.Fatalf("expected expiry error after ttl")
	}
}

func TestNewAPIKey(t *testing.T) {
	a, err := NewAPIKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	b, _ := NewAPIKey()
	if a == b || !strings.HasPrefix(a, "opx_") || len(a) != 52 {
		t.Fatalf("unexpected keys %q %q", a, b)
	}
}
