package auth

import (
	"net/http"
	"testing"
)

func TestGenerateAndValidateTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(Identity{UserID: "u1", Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Name != "Ada" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestResolveIdentityPrefersBearerOverHeader(t *testing.T) {
	token, err := GenerateToken(Identity{UserID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-User-ID", "ignored")

	identity := ResolveIdentity(req)
	if identity.UserID != "u1" {
		t.Fatalf("expected bearer identity to win, got %+v", identity)
	}
}

func TestResolveIdentityFallsBackToHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "dev-user")

	identity := ResolveIdentity(req)
	if identity.UserID != "dev-user" {
		t.Fatalf("expected header fallback, got %+v", identity)
	}
}

func TestResolveIdentityAnonymousWhenAbsent(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	identity := ResolveIdentity(req)
	if identity.UserID != "" {
		t.Fatalf("expected anonymous identity, got %+v", identity)
	}
}
