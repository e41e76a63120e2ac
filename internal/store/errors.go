package store

import "errors"

var (
	ErrAgencyNotFound       = errors.New("agency not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPropertyNotFound     = errors.New("property not found")
	ErrUnitNotFound         = errors.New("unit not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrLeadNotFound         = errors.New("lead not found")
	ErrLeaseNotFound        = errors.New("lease not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrQuotationNotFound    = errors.New("quotation not found")
	ErrMailboxNotFound      = errors.New("mailbox not configured")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnitUnavailable      = errors.New("unit unavailable")
	ErrAccessDenied         = errors.New("access denied")
	ErrConflict             = errors.New("conflict")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionNotFound      = errors.New("session not found")
	ErrBrokenChain          = errors.New("ticket event chain broken")
)
