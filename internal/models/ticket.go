package models

import "time"

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
	TicketOnHold     = "on_hold"

	TicketKindMaintenance = "maintenance"
	TicketKindCleaning    = "cleaning"

	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

type Ticket struct {
	TicketID        string     `json:"ticket_id"`
	AgencyID        string     `json:"agency_id"`
	UnitID          string     `json:"unit_id"`
	ReporterUserID  string     `json:"reporter_user_id"`
	AssigneeUserID  *string    `json:"assignee_user_id,omitempty"`
	Kind            string     `json:"kind"`
	Priority        string     `json:"priority"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DescriptionHTML string     `json:"description_html,omitempty"`
	Status          string     `json:"status"`
	Cost            int64      `json:"cost"`
	RequestID       string     `json:"request_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

type TicketComment struct {
	CommentID    string    `json:"comment_id"`
	TicketID     string    `json:"ticket_id"`
	AuthorUserID string    `json:"author_user_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

type TicketFilter struct {
	Status         string
	UnitID         string
	AssigneeUserID string
	ReporterUserID string
	// OwnerUserID narrows to tickets the owner reported or that sit on a
	// unit of one of their properties.
	OwnerUserID string
}

func ValidTicketKind(kind string) bool {
	return kind == TicketKindMaintenance || kind == TicketKindCleaning
}

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}
