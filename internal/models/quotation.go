package models

import "time"

const (
	QuotationDraft     = "draft"
	QuotationSent      = "sent"
	QuotationAccepted  = "accepted"
	QuotationRejected  = "rejected"
	QuotationCancelled = "cancelled"
)

type Quotation struct {
	QuotationID string          `json:"quotation_id"`
	AgencyID    string          `json:"agency_id"`
	Number      string          `json:"number"`
	ClientName  string          `json:"client_name"`
	ClientEmail string          `json:"client_email"`
	AdminFeeBP  int             `json:"admin_fee_bp"`
	Items       []QuotationItem `json:"items"`
	Subtotal    int64           `json:"subtotal"`
	AdminFee    int64           `json:"admin_fee"`
	Total       int64           `json:"total"`
	Status      string          `json:"status"`
	PublicToken string          `json:"public_token,omitempty"`
	ValidUntil  *time.Time      `json:"valid_until,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	RespondedAt *time.Time      `json:"responded_at,omitempty"`
}

type QuotationItem struct {
	Service   string `json:"service"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}
