package models

import (
	"time"
)

// Role represents user roles in the marketplace
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleSupplier   Role = "supplier"
	RoleAdmin      Role = "admin"
)

// User represents a marketplace account
type User struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	Username     string     `bson:"username" json:"username"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Role         Role       `bson:"role" json:"role"`
	FirstName    string     `bson:"first_name" json:"first_name"`
	LastName     string     `bson:"last_name" json:"last_name"`
	Phone        string     `bson:"phone,omitempty" json:"phone,omitempty"`
	IsActive     bool       `bson:"is_active" json:"is_active"`
	// IsApproved gates technicians: an unapproved technician sees no jobs
	// and its store skips the initial fetch.
	IsApproved   bool       `bson:"is_approved" json:"is_approved"`
	LastLocation *Location  `bson:"last_location,omitempty" json:"last_location,omitempty"`
	LastLogin    *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// Ref returns the user as a normalized reference.
func (u *User) Ref() UserRef {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	return UserRef{ID: u.ID, Name: name, Phone: u.Phone}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Approved bool   `json:"approved"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleCustomer, RoleTechnician, RoleSupplier, RoleAdmin:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleTechnician:
		return action == "view_jobs" || action == "accept_job" ||
			action == "update_job" || action == "send_quote" ||
			action == "send_bill" || action == "order_parts"
	case RoleCustomer:
		return action == "view_jobs" || action == "create_job" ||
			action == "respond_quote" || action == "respond_bill" ||
			action == "rate_job"
	case RoleSupplier:
		return action == "view_part_requests" || action == "respond_part_request"
	default:
		return false
	}
}
