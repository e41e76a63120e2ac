package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"rentdesk/internal/commission"
	"rentdesk/internal/mailbox"
	"rentdesk/internal/money"
	"rentdesk/internal/pagination"
	"rentdesk/internal/period"
	"rentdesk/internal/quotation"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	SessionTTL        time.Duration
	DefaultAdminFeeBP int
	// MailboxSealer is nil when no mailbox secret is configured.
	MailboxSealer *mailbox.Sealer
	Logger        *zap.Logger
	Now           func() time.Time
}

type Handler struct {
	store             store.Store
	logger            *zap.Logger
	sessionTTL        time.Duration
	defaultAdminFeeBP int
	sealer            *mailbox.Sealer
	now               func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st store.Store, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		store:             st,
		logger:            logger,
		sessionTTL:        opts.SessionTTL,
		defaultAdminFeeBP: opts.DefaultAdminFeeBP,
		sealer:            opts.MailboxSealer,
		now:               now,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)

	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/users", h.handleUsers)

	mux.HandleFunc("/api/agencies", h.handleAgencies)
	mux.HandleFunc("/api/agencies/", h.handleAgency)

	mux.HandleFunc("/api/properties", h.handleProperties)
	mux.HandleFunc("/api/properties/", h.handleProperty)
	mux.HandleFunc("/api/units", h.handleUnits)
	mux.HandleFunc("/api/units/", h.handleUnit)
	mux.HandleFunc("/api/listings", h.handleListings)
	mux.HandleFunc("/api/listings/search", h.handleListingSearch)
	mux.HandleFunc("/api/listings/", h.handleListing)

	mux.HandleFunc("/api/public/leads", h.handlePublicLead)
	mux.HandleFunc("/api/public/quotations/", h.handlePublicQuotation)
	mux.HandleFunc("/api/leads", h.handleLeads)
	mux.HandleFunc("/api/leads/", h.handleLead)

	mux.HandleFunc("/api/leases", h.handleLeases)
	mux.HandleFunc("/api/leases/", h.handleLease)

	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicket)

	mux.HandleFunc("/api/notifications", h.handleNotifications)
	mux.HandleFunc("/api/notifications/read-all", h.handleNotificationsReadAll)
	mux.HandleFunc("/api/notifications/preferences", h.handleNotificationPreferences)
	mux.HandleFunc("/api/notifications/", h.handleNotification)

	mux.HandleFunc("/api/quotations", h.handleQuotations)
	mux.HandleFunc("/api/quotations/", h.handleQuotation)

	mux.HandleFunc("/api/reports/commissions", h.handleCommissionReport)
	mux.HandleFunc("/api/reports/commissions/export", h.handleCommissionExport)
	mux.HandleFunc("/api/reports/periods", h.handlePeriods)

	mux.HandleFunc("/api/portal/summary", h.handlePortalSummary)
	mux.HandleFunc("/api/audit", h.handleAudit)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// pathParts splits the path below prefix into its non-empty segments.
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func parsePage(w http.ResponseWriter, r *http.Request, allowed []string, defaultSort string) (pagination.Params, bool) {
	page, err := pagination.Parse(r.URL.Query(), allowed, defaultSort)
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return pagination.Params{}, false
	}
	return page, true
}

func methodNotAllowed(w http.ResponseWriter) {
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFromRequest(r)),
			zap.Error(err),
		)
	}
	writeError(w, requestIDFromRequest(r), status, code, message)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrAgencyNotFound):
		return http.StatusNotFound, "agency_not_found", "agency not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrPropertyNotFound):
		return http.StatusNotFound, "property_not_found", "property not found"
	case errors.Is(err, store.ErrUnitNotFound):
		return http.StatusNotFound, "unit_not_found", "unit not found"
	case errors.Is(err, store.ErrListingNotFound):
		return http.StatusNotFound, "listing_not_found", "listing not found"
	case errors.Is(err, store.ErrLeadNotFound):
		return http.StatusNotFound, "lead_not_found", "lead not found"
	case errors.Is(err, store.ErrLeaseNotFound):
		return http.StatusNotFound, "lease_not_found", "lease not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrNotificationNotFound):
		return http.StatusNotFound, "notification_not_found", "notification not found"
	case errors.Is(err, store.ErrQuotationNotFound):
		return http.StatusNotFound, "quotation_not_found", "quotation not found"
	case errors.Is(err, store.ErrMailboxNotFound):
		return http.StatusNotFound, "mailbox_not_found", "mailbox not configured"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, store.ErrUnitUnavailable):
		return http.StatusConflict, "unit_unavailable", "unit already has an active lease"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrBrokenChain):
		return http.StatusInternalServerError, "broken_chain", "ticket history failed verification"
	case errors.Is(err, pagination.ErrInvalidPage), errors.Is(err, pagination.ErrInvalidSort),
		errors.Is(err, period.ErrInvalidPeriod),
		errors.Is(err, commission.ErrInvalidConfig), errors.Is(err, mailbox.ErrInvalidSettings),
		errors.Is(err, quotation.ErrNoItems), errors.Is(err, quotation.ErrInvalidItem),
		errors.Is(err, money.ErrInvalidRate), errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrOverflow):
		return http.StatusBadRequest, "invalid_request", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
