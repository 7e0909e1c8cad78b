package domain

import "time"

// UserRole determines what a user may do with other people's expenses.
type UserRole string

const (
	RoleEmployee UserRole = "EMPLOYEE"
	RoleApprover UserRole = "APPROVER"
	RoleAdmin    UserRole = "ADMIN"
)

// User represents a user of the application in the domain. Credentials live
// with the external identity provider; this record only carries what the
// expense flow needs (role for approver selection, active flag).
type User struct {
	UserID   string   `json:"userID"` // Primary Key (UUID)
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	IsActive bool     `json:"isActive"`
	AuditFields
	DeletedAt *time.Time `json:"deletedAt,omitempty"` // Used for soft delete
}

// CanApprove reports whether the user is eligible to review submitted
// expenses.
func (u User) CanApprove() bool {
	return u.IsActive && (u.Role == RoleApprover || u.Role == RoleAdmin)
}
