package store

import (
	"context"
	"encoding/json"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
)

// Sort allow lists per resource. The first entry is the default.
var (
	PropertySorts     = []string{"created_at", "name", "city"}
	UnitSorts         = []string{"label", "monthly_rent", "bedrooms", "created_at"}
	ListingSorts      = []string{"published_at", "price", "bedrooms", "created_at", "title"}
	LeadSorts         = []string{"created_at", "status", "name"}
	LeaseSorts        = []string{"created_at", "start_date", "end_date", "monthly_rent", "status"}
	TicketSorts       = []string{"created_at", "updated_at", "priority", "status"}
	NotificationSorts = []string{"created_at"}
	QuotationSorts    = []string{"created_at", "number", "total", "status"}
	AuditSorts        = []string{"created_at", "action_type"}
)

type LoginInput struct {
	AgencyID string
	Email    string
	Password string
	TTL      time.Duration
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

type CreateTicketInput struct {
	RequestID      string
	AgencyID       string
	UnitID         string
	ReporterUserID string
	Kind           string
	Priority       string
	Title          string
	Description    string
	CreatedAt      time.Time
}

type TicketActionInput struct {
	RequestID   string
	AgencyID    string
	TicketID    string
	Action      string
	ActorUserID string
	Note        string
	Cost        *int64
	OccurredAt  time.Time

	// Authorize runs against the locked ticket before the transition.
	Authorize func(models.Ticket) error
}

type AssignTicketInput struct {
	AgencyID       string
	TicketID       string
	AssigneeUserID string
	ActorUserID    string
	OccurredAt     time.Time
}

type LeaseFilter struct {
	Status       string
	TenantUserID string
	AgentUserID  string
	UnitID       string
}

type LeaseActionInput struct {
	AgencyID    string
	LeaseID     string
	Action      string
	ActorUserID string
	OccurredAt  time.Time
}

type QuotationActionInput struct {
	AgencyID    string
	QuotationID string
	Action      string
	ActorUserID string
	OccurredAt  time.Time
}

type AuditFilter struct {
	ActionType  string
	ActorUserID string
}

// Scope identifies who is asking; owners and tenants only see their own rows.
type Scope struct {
	AgencyID string
	UserID   string
	Role     string
}

type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	EventID   string          `json:"event_id"`
	AgencyID  string          `json:"agency_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
}

// NotificationRef is what the notification channel carries; listeners load
// the row itself by id.
type NotificationRef struct {
	NotificationID string `json:"notification_id"`
	AgencyID       string `json:"agency_id"`
	UserID         string `json:"user_id"`
}

type AuthStore interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetUser(ctx context.Context, agencyID, userID string) (models.User, error)
	CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error)
	ListUsers(ctx context.Context, agencyID, role string) ([]models.User, error)
}

type AgencyStore interface {
	CreateAgency(ctx context.Context, agency models.Agency, cfg models.CommissionConfig) (models.Agency, error)
	GetAgency(ctx context.Context, agencyID string) (models.Agency, error)
	ListAgencies(ctx context.Context) ([]models.Agency, error)
	UpdateAgency(ctx context.Context, agency models.Agency) (models.Agency, error)
	GetCommissionConfig(ctx context.Context, agencyID string) (models.CommissionConfig, error)
	UpsertCommissionConfig(ctx context.Context, cfg models.CommissionConfig) (models.CommissionConfig, error)
	GetMailboxSettings(ctx context.Context, agencyID string) (models.MailboxSettings, error)
	// UpsertMailboxSettings keeps the stored password when sealedPassword is nil.
	UpsertMailboxSettings(ctx context.Context, settings models.MailboxSettings, sealedPassword []byte) (models.MailboxSettings, error)
}

type PropertyStore interface {
	CreateProperty(ctx context.Context, property models.Property) (models.Property, error)
	GetProperty(ctx context.Context, agencyID, propertyID string) (models.Property, error)
	ListProperties(ctx context.Context, scope Scope, page pagination.Params) ([]models.Property, int, error)
	CreateUnit(ctx context.Context, unit models.Unit) (models.Unit, error)
	GetUnit(ctx context.Context, agencyID, unitID string) (models.Unit, error)
	ListUnits(ctx context.Context, agencyID, propertyID string, page pagination.Params) ([]models.Unit, int, error)
	SetUnitStatus(ctx context.Context, agencyID, unitID, status string) (models.Unit, error)
	UserCanAccessUnit(ctx context.Context, scope Scope, unitID string) (bool, error)
}

type ListingStore interface {
	CreateListing(ctx context.Context, listing models.Listing) (models.Listing, error)
	GetListing(ctx context.Context, agencyID, listingID string) (models.Listing, error)
	UpdateListing(ctx context.Context, listing models.Listing) (models.Listing, error)
	ListListings(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Listing, int, error)
	ApplyListingAction(ctx context.Context, agencyID, listingID, action string) (models.Listing, error)
	SearchListings(ctx context.Context, filter models.ListingFilter, page pagination.Params) ([]models.Listing, int, error)
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead models.Lead) (models.Lead, error)
	ListLeads(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Lead, int, error)
	UpdateLeadStatus(ctx context.Context, agencyID, leadID, status string) (models.Lead, error)
}

type LeaseStore interface {
	CreateLease(ctx context.Context, lease models.Lease) (models.Lease, error)
	GetLease(ctx context.Context, agencyID, leaseID string) (models.Lease, error)
	ListLeases(ctx context.Context, agencyID string, filter LeaseFilter, page pagination.Params) ([]models.Lease, int, error)
	ApplyLeaseAction(ctx context.Context, input LeaseActionInput) (models.Lease, error)
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, agencyID, ticketID string) (models.Ticket, error)
	ListTickets(ctx context.Context, agencyID string, filter models.TicketFilter, page pagination.Params) ([]models.Ticket, int, error)
	ApplyTicketAction(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	AssignTicket(ctx context.Context, input AssignTicketInput) (models.Ticket, error)
	AddTicketComment(ctx context.Context, agencyID string, comment models.TicketComment) (models.TicketComment, error)
	ListTicketComments(ctx context.Context, agencyID, ticketID string) ([]models.TicketComment, error)
	ListTicketEvents(ctx context.Context, agencyID, ticketID string) ([]TicketEvent, error)
	FlagStaleTickets(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type NotificationStore interface {
	ListNotifications(ctx context.Context, agencyID, userID string, unreadOnly bool, page pagination.Params) ([]models.Notification, int, error)
	MarkNotificationRead(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, agencyID, userID string) (int, error)
	GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error)
	SetPreferences(ctx context.Context, userID string, prefs []models.NotificationPreference) error
}

type QuotationStore interface {
	CreateQuotation(ctx context.Context, quotation models.Quotation) (models.Quotation, error)
	GetQuotation(ctx context.Context, agencyID, quotationID string) (models.Quotation, error)
	UpdateQuotationDraft(ctx context.Context, quotation models.Quotation) (models.Quotation, error)
	ListQuotations(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Quotation, int, error)
	ApplyQuotationAction(ctx context.Context, input QuotationActionInput) (models.Quotation, error)
	GetQuotationByToken(ctx context.Context, token string) (models.Quotation, error)
	RespondQuotation(ctx context.Context, token, action string) (models.Quotation, error)
}

type ReportStore interface {
	ListCommissionEntries(ctx context.Context, agencyID string, from, to time.Time) ([]models.CommissionEntry, error)
	ListMaintenanceCosts(ctx context.Context, agencyID string, from, to time.Time) ([]models.MaintenanceCost, error)
	CountOpenTickets(ctx context.Context, scope Scope) (int, error)
	CountActiveLeases(ctx context.Context, scope Scope) (int, error)
	CountUnreadNotifications(ctx context.Context, scope Scope) (int, error)
	CountPendingQuotations(ctx context.Context, scope Scope) (int, error)
	CountPublishedListings(ctx context.Context, scope Scope) (int, error)
}

type AuditStore interface {
	InsertAudit(ctx context.Context, audit models.AuditLog) error
	ListAudit(ctx context.Context, agencyID string, filter AuditFilter, page pagination.Params) ([]models.AuditLog, int, error)
}

type Store interface {
	AuthStore
	AgencyStore
	PropertyStore
	ListingStore
	LeadStore
	LeaseStore
	TicketStore
	NotificationStore
	QuotationStore
	ReportStore
	AuditStore
}
