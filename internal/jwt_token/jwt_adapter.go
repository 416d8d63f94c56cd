package jwttoken

import (
	authmw "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims maps token claims onto the auth middleware's claims.
// defaultSubjectType fills tokens that omit subject_type.
func ToMiddlewareClaims(claims *Claims, defaultSubjectType string) *authmw.JWTClaims {
	subjectType := claims.SubjectType
	if subjectType == "" {
		subjectType = defaultSubjectType
	}
	return &authmw.JWTClaims{
		SubjectID:   claims.Subject,
		SubjectType: subjectType,
		Email:       claims.Email,
		Roles:       claims.Roles,
	}
}

type JWTServiceAdapter struct {
	service            *JWTService
	defaultSubjectType string
}

func NewJWTServiceAdapter(service *JWTService, defaultSubjectType string) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service, defaultSubjectType: defaultSubjectType}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims, a.defaultSubjectType), nil
}
