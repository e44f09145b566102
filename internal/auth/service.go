package auth

import (
	"time"

	domainerrors "drone-fleet/internal/errors"
	"drone-fleet/internal/jwt"
)

// IssuedToken is returned by POST /auth/token.
type IssuedToken struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Service interface {
	IssueToken(name, role string) (*IssuedToken, error)
}

type tokenSigner interface {
	GenerateToken(name, role string) (string, error)
	Expiry() time.Duration
}

type authService struct {
	signer tokenSigner
	now    func() time.Time
}

func NewAuthService(signer *jwt.Service) Service {
	return &authService{signer: signer, now: time.Now}
}

func (s *authService) IssueToken(name, role string) (*IssuedToken, error) {
	if role != jwt.RoleOperator && role != jwt.RoleViewer {
		return nil, domainerrors.NewValidationFields("role must be operator or viewer", []string{"role"})
	}

	issuedAt := s.now()
	token, err := s.signer.GenerateToken(name, role)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to sign operator token", err)
	}
	return &IssuedToken{
		Token:     token,
		Role:      role,
		ExpiresAt: issuedAt.Add(s.signer.Expiry()).UTC(),
	}, nil
}
