package domain

import "time"

type Role string

const (
	RoleResident Role = "resident"
	RoleSecurity Role = "security"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleResident, RoleSecurity:
		return Role(s), true
	default:
		return "", false
	}
}

type User struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Flat         string    `json:"flat,omitempty"` // empty for security staff
	CreatedAt    time.Time `json:"created_at"`
}

// FrequentVisitor is a resident-owned template used to pre-fill issuance.
type FrequentVisitor struct {
	ID         string    `json:"id"`
	ResidentID string    `json:"resident_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Purpose    string    `json:"purpose"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type EmergencyAlert struct {
	ID             string     `json:"id"`
	ResidentID     string     `json:"resident_id"`
	Flat           string     `json:"flat"`
	Message        string     `json:"message,omitempty"`
	RaisedAt       time.Time  `json:"raised_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}
