package models

import "time"

const (
	LeaseDraft            = "draft"
	LeasePendingSignature = "pending_signature"
	LeaseActive           = "active"
	LeaseEnded            = "ended"
	LeaseCancelled        = "cancelled"
)

type Lease struct {
	LeaseID      string     `json:"lease_id"`
	AgencyID     string     `json:"agency_id"`
	UnitID       string     `json:"unit_id"`
	TenantUserID string     `json:"tenant_user_id"`
	AgentUserID  string     `json:"agent_user_id,omitempty"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	MonthlyRent  int64      `json:"monthly_rent"`
	Deposit      int64      `json:"deposit"`
	Status       string     `json:"status"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
