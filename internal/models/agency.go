package models

import "time"

type Agency struct {
	AgencyID     string    `json:"agency_id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contact_email"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type CommissionConfig struct {
	AgencyID            string    `json:"agency_id"`
	ListingCommissionBP int       `json:"listing_commission_bp"`
	AgentSplitBP        int       `json:"agent_split_bp"`
	AdminFeeBP          int       `json:"admin_fee_bp"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type AuditLog struct {
	AuditID     string    `json:"audit_id"`
	AgencyID    string    `json:"agency_id"`
	ActorUserID string    `json:"actor_user_id"`
	ActionType  string    `json:"action_type"`
	TargetType  string    `json:"target_type"`
	TargetID    string    `json:"target_id"`
	CreatedAt   time.Time `json:"created_at"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent"`
}

const (
	MailboxIMAP = "imap"
	MailboxPOP3 = "pop3"

	ImportAsLead   = "lead"
	ImportAsTicket = "ticket"
)

// MailboxSettings describe the inbound mailbox an agency imports email
// from. The password is stored sealed and never leaves the store.
type MailboxSettings struct {
	AgencyID            string    `json:"agency_id"`
	Enabled             bool      `json:"enabled"`
	Protocol            string    `json:"protocol"`
	Host                string    `json:"host"`
	Port                int       `json:"port"`
	Username            string    `json:"username"`
	UseTLS              bool      `json:"use_tls"`
	Folder              string    `json:"folder"`
	ImportAs            string    `json:"import_as"`
	PollIntervalMinutes int       `json:"poll_interval_minutes"`
	PasswordSet         bool      `json:"password_set"`
	UpdatedAt           time.Time `json:"updated_at"`
}
