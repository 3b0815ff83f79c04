package models

import "github.com/golang-jwt/jwt/v5"

// OwnerClaims are the access-token claims the engine cares about. Tokens are
// issued by the external identity service; this API only verifies them and
// extracts the owner identity.
type OwnerClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
