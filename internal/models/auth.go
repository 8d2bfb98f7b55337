package models

import "github.com/golang-jwt/jwt/v5"

// UserRole identifies the caller's role for access control.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleCashier UserRole = "CASHIER"
	RoleStudent UserRole = "SISWA"
)

// JWTClaims are the verified claims of a bearer token issued by the identity
// service. This engine only verifies tokens; it never issues them.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
