package jwttoken

import (
	"kindergarten/internal/domain"
	dErrors "kindergarten/pkg/domain-errors"
	authmw "kindergarten/pkg/platform/middleware/auth"
)

// MiddlewareValidator exposes a JWTService to the auth middleware. Tokens
// naming a role the service does not know are rejected.
type MiddlewareValidator struct {
	service *JWTService
}

func NewMiddlewareValidator(service *JWTService) *MiddlewareValidator {
	return &MiddlewareValidator{service: service}
}

func (v *MiddlewareValidator) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token role")
	}
	return &authmw.JWTClaims{Email: claims.Email, Role: string(role)}, nil
}
