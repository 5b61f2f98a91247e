package auth

import (
	"slices"
	"strings"
)

// RoleAdmin grants moderation rights over every document.
const RoleAdmin = "admin"

// Principal is the caller identity handed from the HTTP boundary to the editor and persistence
// layers. The zero value is an anonymous visitor.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin"`
}

// Authenticated reports whether the principal carries a user id.
func (p Principal) Authenticated() bool {
	return strings.TrimSpace(p.UID) != ""
}

// CanModify reports whether the principal may edit or delete something owned by ownerID.
func (p Principal) CanModify(ownerID string) bool {
	if !p.Authenticated() {
		return false
	}
	return p.Admin || p.UID == ownerID
}

// PrincipalFromClaims maps validated session claims to a Principal.
func PrincipalFromClaims(claims SessionClaims) Principal {
	return Principal{
		UID:   strings.TrimSpace(claims.UserID),
		Email: strings.TrimSpace(claims.UserEmail),
		Admin: slices.Contains(claims.UserRoles, RoleAdmin),
	}
}
