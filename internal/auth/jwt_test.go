package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenManager_GenerateAndDecode(t *testing.T) {
	m := NewTokenManager("test-secret", 5*time.Minute)

	token, _, err := m.Generate(42)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Decode(token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if claims.UserID != 42 {
		t.Fatalf("claims.UserID mismatch: got %d", claims.UserID)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager("test-secret", -1*time.Minute)

	token, _, err := m.Generate(42)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := m.Decode(token); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for expired token, got %v", err)
	}
}

func TestTokenManager_WrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", 5*time.Minute)
	verifier := NewTokenManager("secret-b", 5*time.Minute)

	token, _, err := issuer.Generate(7)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := verifier.Decode(token); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for wrong secret, got %v", err)
	}
}

func TestTokenManager_Rotation(t *testing.T) {
	// manager with two keys and active kid "k2"
	keys := map[string]string{"k1": "secret-one", "k2": "secret-two"}
	m := NewTokenManagerFromKeys(keys, "k2", 5*time.Minute)

	// token created with active kid (k2)
	tkn2, _, err := m.Generate(1)
	if err != nil {
		t.Fatalf("Generate (k2) failed: %v", err)
	}
	if _, err := m.Decode(tkn2); err != nil {
		t.Fatalf("Decode (k2) failed: %v", err)
	}

	// Emulate a token issued while k1 was the active key; the current
	// manager must keep verifying it through the kid header.
	mOld := NewTokenManagerFromKeys(keys, "k1", 5*time.Minute)
	tkn1, _, err := mOld.Generate(1)
	if err != nil {
		t.Fatalf("Generate (k1) failed: %v", err)
	}
	if _, err := m.Decode(tkn1); err != nil {
		t.Fatalf("Decode (old k1) failed: %v", err)
	}
}

func TestTokenManager_UnknownKid(t *testing.T) {
	issuer := NewTokenManagerFromKeys(map[string]string{"legacy": "s"}, "legacy", 5*time.Minute)
	verifier := NewTokenManagerFromKeys(map[string]string{"current": "s"}, "current", 5*time.Minute)

	token, _, err := issuer.Generate(9)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := verifier.Decode(token); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for unknown kid, got %v", err)
	}
}
