package models

import "time"

const (
	NotificationKindTicket    = "ticket"
	NotificationKindLead      = "lead"
	NotificationKindLease     = "lease"
	NotificationKindQuotation = "quotation"

	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

type Notification struct {
	NotificationID string     `json:"notification_id"`
	AgencyID       string     `json:"agency_id"`
	UserID         string     `json:"user_id"`
	Kind           string     `json:"kind"`
	EventType      string     `json:"event_type"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type NotificationPreference struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	InApp  bool   `json:"in_app"`
	Email  bool   `json:"email"`
}

type EmailDelivery struct {
	DeliveryID     string     `json:"delivery_id"`
	AgencyID       string     `json:"agency_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Recipient      string     `json:"recipient"`
	Subject        string     `json:"subject"`
	HTMLBody       string     `json:"html_body"`
	TextBody       string     `json:"text_body"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NotificationKinds() []string {
	return []string{NotificationKindTicket, NotificationKindLead, NotificationKindLease, NotificationKindQuotation}
}

func ValidNotificationKind(kind string) bool {
	for _, k := range NotificationKinds() {
		if k == kind {
			return true
		}
	}
	return false
}
