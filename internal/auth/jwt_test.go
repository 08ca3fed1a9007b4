package auth

import (
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager("test-secret", time.Minute, time.Hour)
}

func TestManager_GenerateAndVerifyAccessToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken("u1", "u1@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := m.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestManager_VerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	m := newTestManager()

	raw, _, _, err := m.GenerateRefreshToken("u1", "u1@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected a refresh token to be rejected by VerifyAccessToken")
	}
}

func TestManager_GenerateAndVerifyRefreshToken(t *testing.T) {
	m := newTestManager()

	raw, jti, expiresAt, err := m.GenerateRefreshToken("u2", "u2@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if jti == "" {
		t.Fatalf("expected a non-empty jti")
	}
	if !expiresAt.After(time.Now().UTC()) {
		t.Fatalf("expected expiresAt to be in the future")
	}

	claims, err := m.VerifyRefreshToken(raw)
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.JTI != jti {
		t.Fatalf("expected jti %q, got %q", jti, claims.JTI)
	}
}

func TestManager_VerifyRefreshTokenRejectsAccessToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken("u3", "u3@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := m.VerifyRefreshToken(token); err == nil {
		t.Fatalf("expected an access token to be rejected by VerifyRefreshToken")
	}
}

func TestManager_VerifyAccessTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewManager("secret-one", time.Minute, time.Hour)
	m2 := NewManager("secret-two", time.Minute, time.Hour)

	token, err := m1.GenerateAccessToken("u4", "u4@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := m2.VerifyAccessToken(token); err == nil {
		t.Fatalf("expected verification to fail under a different signing secret")
	}
}

func TestManager_VerifyAccessTokenRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", -time.Minute, time.Hour)

	token, err := m.GenerateAccessToken("u5", "u5@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := m.VerifyAccessToken(token); err == nil {
		t.Fatalf("expected an already-expired token to fail verification")
	}
}

func TestManager_HashRefreshTokenIsDeterministic(t *testing.T) {
	m := newTestManager()

	a := m.HashRefreshToken("raw-token")
	b := m.HashRefreshToken("raw-token")
	if a != b {
		t.Fatalf("expected deterministic hashing, got %q and %q", a, b)
	}

	if m.HashRefreshToken("other-token") == a {
		t.Fatalf("expected different inputs to hash differently")
	}
}

func TestManager_ParseAndValidateRejectsMalformedToken(t *testing.T) {
	m := newTestManager()

	if _, err := m.ParseAndValidate("not-a-jwt"); err == nil {
		t.Fatalf("expected a malformed token to fail parsing")
	}
}
