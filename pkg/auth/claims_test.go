package auth

import (
	"context"
	"testing"
)

func TestGetClaims_Success(t *testing.T) {
	claims := &Claims{Account: "alice", Role: "user"}
	claims.Subject = "42"

	ctx := context.WithValue(context.Background(), ClaimsKey, claims)

	got, ok := GetClaims(ctx)
	if !ok {
		t.Fatal("expected claims to be found")
	}
	if got.Account != "alice" {
		t.Errorf("expected account 'alice', got %q", got.Account)
	}
}

func TestGetClaims_NotFound(t *testing.T) {
	_, ok := GetClaims(context.Background())
	if ok {
		t.Error("expected claims to not be found")
	}
}

func TestGetClaims_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClaimsKey, "not-a-claims-struct")

	_, ok := GetClaims(ctx)
	if ok {
		t.Error("expected claims to not be found when wrong type")
	}
}

func TestClaimsUserID(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "42"

	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 {
		t.Errorf("expected 42, got %d", id)
	}
}

func TestClaimsUserID_Invalid(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "not-a-number"

	if _, err := claims.UserID(); err == nil {
		t.Error("expected error for non-numeric subject")
	}
}

func TestRequireUserID(t *testing.T) {
	claims := &Claims{}
	claims.Subject = "7"
	ctx := context.WithValue(context.Background(), ClaimsKey, claims)

	id, err := RequireUserID(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Errorf("expected 7, got %d", id)
	}
}

func TestRequireUserID_Unauthenticated(t *testing.T) {
	if _, err := RequireUserID(context.Background()); err == nil {
		t.Error("expected error without claims in context")
	}
}
