package models

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload presented by callers.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller as seen by the core.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// IsManager reports whether the principal holds the manager role.
func (p *Principal) IsManager() bool {
	if p == nil {
		return false
	}
	return p.Role == RoleManager
}

// Owns reports whether ownerID names the principal.
func (p *Principal) Owns(ownerID *string) bool {
	return p != nil && ownerID != nil && *ownerID == p.UserID
}

// ActorID returns a pointer suitable for nullable actor columns.
func (p *Principal) ActorID() *string {
	if p == nil {
		return nil
	}
	id := p.UserID
	return &id
}

// ParsePrincipal validates claim values into a Principal. An unknown or
// missing role is rejected rather than defaulted.
func ParsePrincipal(userID, role string) (*Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("principal has no user id")
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, Role: r}, nil
}
