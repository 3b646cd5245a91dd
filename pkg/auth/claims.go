package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the access level of an admin panel user.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleEditor:
		return true
	}
	return false
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	SiteKey string
	Role    Role
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to admin panel clients.
type AccessTokenClaims struct {
	UserID  uuid.UUID `json:"user_id"`
	SiteKey string    `json:"site_key"`
	Role    Role      `json:"role"`
	jwt.RegisteredClaims
}
