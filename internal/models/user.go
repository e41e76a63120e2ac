package models

import "time"

const (
	RolePlatformAdmin = "platform_admin"
	RoleAgencyAdmin   = "agency_admin"
	RoleAgent         = "agent"
	RoleOwner         = "owner"
	RoleTenant        = "tenant"
	RoleMaintenance   = "maintenance"
)

type User struct {
	UserID    string    `json:"user_id"`
	AgencyID  string    `json:"agency_id"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	AgencyID  string    `json:"agency_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func IsStaffRole(role string) bool {
	switch role {
	case RolePlatformAdmin, RoleAgencyAdmin, RoleAgent:
		return true
	default:
		return false
	}
}

func ValidRole(role string) bool {
	switch role {
	case RolePlatformAdmin, RoleAgencyAdmin, RoleAgent, RoleOwner, RoleTenant, RoleMaintenance:
		return true
	default:
		return false
	}
}
