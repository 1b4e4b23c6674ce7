package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the caller roles the scheduler distinguishes.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
	RoleSystem  UserRole = "SYSTEM"
)

// Actor is the already-authenticated caller of a scheduler operation.
type Actor struct {
	ID   string
	Role UserRole
}

// SystemActor is used by background jobs.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Privileged reports whether the actor may act on behalf of any teacher or student.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// JWTClaims represents the JWT payload issued by the identity service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts claims into an Actor.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Role: c.Role}
}
