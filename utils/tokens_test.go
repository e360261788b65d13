package utils

import (
	"testing"
	"time"
)

func TestNewManagerRequiresKey(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatalf("empty signing key must be rejected")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewManager("test-signing-key")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.NewJWT("user1", time.Hour)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}

	userID, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if userID != "user1" {
		t.Fatalf("expected user1, got %q", userID)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	issuer, _ := NewManager("key-one")
	verifier, _ := NewManager("key-two")

	token, err := issuer.NewJWT("user1", time.Hour)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	if _, err := verifier.Parse(token); err == nil {
		t.Fatalf("token signed with a different key must not parse")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	token, err := m.NewJWT("user1", -time.Minute)
	if err != nil {
		t.Fatalf("NewJWT: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatalf("expired token must not parse")
	}
}

func TestNewRefreshToken(t *testing.T) {
	m, _ := NewManager("test-signing-key")

	a, err := m.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, err := m.NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 32 hex-encoded bytes, got %d chars", len(a))
	}
	if a == b {
		t.Fatalf("refresh tokens must not repeat")
	}
}
