package models

import "time"

// Role controls what an actor may do across the service layer.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

// Staff reports whether the role carries staff or admin rights.
func (r Role) Staff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// User represents a user in the system.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"` // Not serialized
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the already-authenticated caller of a service operation.
type Actor struct {
	UserID int64
	Role   Role
}
