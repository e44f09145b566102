package jwt

import (
	"testing"
	"time"

	domainerrors "drone-fleet/internal/errors"
)

func TestService_RoundTrip(t *testing.T) {
	s := NewService("secret", time.Hour)
	tok, err := s.GenerateToken("alice", RoleOperator)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := s.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Sub != "alice" || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestService_RejectsExpired(t *testing.T) {
	s := NewService("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return issued }
	tok, err := s.GenerateToken("alice", RoleOperator)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	s.now = time.Now
	_, err = s.ValidateToken(tok)
	if !domainerrors.IsCode(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

func TestService_RejectsForeignSecret(t *testing.T) {
	tok, _ := NewService("one", time.Hour).GenerateToken("alice", RoleOperator)
	if _, err := NewService("two", time.Hour).ValidateToken(tok); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}
