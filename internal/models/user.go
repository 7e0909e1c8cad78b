package models

import "time"

// User represents a user row. Credentials are handled by the external
// identity provider; this table only backs approver selection and display.
type User struct {
	UserID   string `json:"userID" db:"user_id"`
	Name     string `json:"name" db:"name"`
	Email    string `json:"email" db:"email"`
	Role     string `json:"role" db:"role"`
	IsActive bool   `json:"isActive" db:"is_active"`
	AuditFields
	DeletedAt *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}
