package models

import "time"

type CommissionEntry struct {
	EntryID     string    `json:"entry_id"`
	AgencyID    string    `json:"agency_id"`
	LeaseID     string    `json:"lease_id"`
	AgentUserID string    `json:"agent_user_id,omitempty"`
	Gross       int64     `json:"gross"`
	AgentShare  int64     `json:"agent_share"`
	AgencyShare int64     `json:"agency_share"`
	EarnedOn    time.Time `json:"earned_on"`
	CreatedAt   time.Time `json:"created_at"`
}

type MaintenanceCost struct {
	TicketID string    `json:"ticket_id"`
	UnitID   string    `json:"unit_id"`
	Kind     string    `json:"kind"`
	Cost     int64     `json:"cost"`
	ClosedOn time.Time `json:"closed_on"`
}
