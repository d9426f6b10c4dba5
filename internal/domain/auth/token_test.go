package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", Name: "Pat Admin", Role: RolePayrollAdmin}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.UserID != claims.UserID || parsed.Name != claims.Name || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
	if parsed.Subject != "u1" {
		t.Fatalf("expected subject to mirror user id, got %q", parsed.Subject)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("a", Claims{UserID: "u1", Role: RolePayrollAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("b", token); err == nil {
		t.Fatal("expected signature mismatch")
	}

	expired, err := GenerateToken("a", Claims{UserID: "u1", Role: RolePayrollAdmin}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("a", expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestUserContextActorFallsBackToID(t *testing.T) {
	actor := UserContext{UserID: "u9"}.Actor()
	if actor.ID != "u9" || actor.Name != "u9" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
