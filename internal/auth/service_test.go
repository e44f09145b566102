package auth

import (
	"errors"
	"testing"
	"time"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/jwt"
)

type stubSigner struct {
	err error
}

func (s stubSigner) GenerateToken(name, role string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return name + "." + role, nil
}

func (stubSigner) Expiry() time.Duration { return 2 * time.Hour }

func TestIssueToken(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &authService{signer: stubSigner{}, now: func() time.Time { return issuedAt }}

	got, err := svc.IssueToken("alice", jwt.RoleViewer)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.Token != "alice.viewer" || got.Role != jwt.RoleViewer {
		t.Fatalf("unexpected token %+v", got)
	}
	if !got.ExpiresAt.Equal(issuedAt.Add(2 * time.Hour)) {
		t.Fatalf("expected expiry two hours out, got %v", got.ExpiresAt)
	}
}

func TestIssueToken_Rejections(t *testing.T) {
	svc := &authService{signer: stubSigner{}, now: time.Now}
	if _, err := svc.IssueToken("alice", "admin"); !domainerrors.IsCode(err, domainerrors.ErrValidation) {
		t.Fatalf("expected VALIDATION for an unknown role, got %v", err)
	}

	failing := &authService{signer: stubSigner{err: errors.New("no key")}, now: time.Now}
	if _, err := failing.IssueToken("alice", jwt.RoleOperator); !domainerrors.IsCode(err, domainerrors.ErrInternal) {
		t.Fatalf("expected INTERNAL when signing fails, got %v", err)
	}
}
