package user

import "time"

// User is an authenticated principal: a human operator or service
// account allowed to submit and manage jobs under one or more tenants.
// Role drives the RBAC checks in internal/http/middlewares.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // bcrypt digest, never serialized
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
