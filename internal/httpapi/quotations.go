package httpapi

import (
	"net/http"
	"strings"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/money"
	"rentdesk/internal/pagination"
	"rentdesk/internal/period"
	"rentdesk/internal/quotation"
	"rentdesk/internal/store"
)

type quotationRequest struct {
	ClientName  string                 `json:"client_name"`
	ClientEmail string                 `json:"client_email"`
	AdminFeeBP  *int                   `json:"admin_fee_bp"`
	ValidUntil  string                 `json:"valid_until"`
	Items       []quotationItemRequest `json:"items"`
}

type quotationItemRequest struct {
	Service   string `json:"service"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// publicQuotation is what an unauthenticated client sees through the token.
type publicQuotation struct {
	Number          string                 `json:"number"`
	ClientName      string                 `json:"client_name"`
	Items           []models.QuotationItem `json:"items"`
	Subtotal        int64                  `json:"subtotal"`
	AdminFee        int64                  `json:"admin_fee"`
	Total           int64                  `json:"total"`
	SubtotalDisplay string                 `json:"subtotal_display"`
	AdminFeeDisplay string                 `json:"admin_fee_display"`
	TotalDisplay    string                 `json:"total_display"`
	Status          string                 `json:"status"`
	ValidUntil      *time.Time             `json:"valid_until,omitempty"`
	RespondedAt     *time.Time             `json:"responded_at,omitempty"`
}

func (h *Handler) handleQuotations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		session, ok := requirePermission(w, r, permissionQuotationManage)
		if !ok {
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		page, ok := parsePage(w, r, store.QuotationSorts, "-created_at")
		if !ok {
			return
		}
		quotations, total, err := h.store.ListQuotations(r.Context(), session.AgencyID, status, page)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pagination.NewResult(quotations, page, total))
	case http.MethodPost:
		h.createQuotation(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionQuotationManage)
	if !ok {
		return
	}
	var req quotationRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	q, ok := quotationFromRequest(w, r, req)
	if !ok {
		return
	}
	if req.AdminFeeBP == nil {
		cfg, err := h.store.GetCommissionConfig(r.Context(), session.AgencyID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		q.AdminFeeBP = cfg.AdminFeeBP
	}
	q.AgencyID = session.AgencyID
	q.CreatedBy = session.UserID
	if err := quotation.Apply(&q); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	created, err := h.store.CreateQuotation(r.Context(), q)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, session.AgencyID, "quotation.create", "quotation", created.QuotationID)
	writeJSON(w, http.StatusCreated, created)
}

// handleQuotation serves /api/quotations/{id} and
// /api/quotations/{id}/actions/{send|cancel}.
func (h *Handler) handleQuotation(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionQuotationManage)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, "/api/quotations/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "quotation id must be a UUID")
		return
	}
	quotationID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		q, err := h.store.GetQuotation(r.Context(), session.AgencyID, quotationID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	case len(parts) == 1 && r.Method == http.MethodPut:
		var req quotationRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		current, err := h.store.GetQuotation(r.Context(), session.AgencyID, quotationID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		q, ok := quotationFromRequest(w, r, req)
		if !ok {
			return
		}
		if req.AdminFeeBP == nil {
			q.AdminFeeBP = current.AdminFeeBP
		}
		q.QuotationID = current.QuotationID
		q.AgencyID = current.AgencyID
		if err := quotation.Apply(&q); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		updated, err := h.store.UpdateQuotationDraft(r.Context(), q)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "quotation.update", "quotation", quotationID)
		writeJSON(w, http.StatusOK, updated)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		action := parts[2]
		if action != "send" && action != "cancel" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "action must be send or cancel")
			return
		}
		q, err := h.store.ApplyQuotationAction(r.Context(), store.QuotationActionInput{
			AgencyID:    session.AgencyID,
			QuotationID: quotationID,
			Action:      action,
			ActorUserID: session.UserID,
			OccurredAt:  h.now(),
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "quotation."+action, "quotation", quotationID)
		writeJSON(w, http.StatusOK, q)
	case len(parts) == 1 || (len(parts) == 3 && parts[1] == "actions"):
		methodNotAllowed(w)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

// handlePublicQuotation serves GET /api/public/quotations/{token} and
// POST /api/public/quotations/{token}/{accept|reject}.
func (h *Handler) handlePublicQuotation(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/public/quotations/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "quotation_not_found", "quotation not found")
		return
	}
	token := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		q, err := h.store.GetQuotationByToken(r.Context(), token)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if q.Status == models.QuotationDraft {
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "quotation_not_found", "quotation not found")
			return
		}
		writeJSON(w, http.StatusOK, toPublicQuotation(q))
	case len(parts) == 2 && (parts[1] == "accept" || parts[1] == "reject") && r.Method == http.MethodPost:
		q, err := h.store.RespondQuotation(r.Context(), token, parts[1])
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPublicQuotation(q))
	case len(parts) <= 2:
		methodNotAllowed(w)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func quotationFromRequest(w http.ResponseWriter, r *http.Request, req quotationRequest) (models.Quotation, bool) {
	q := models.Quotation{
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
	}
	if q.ClientName == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "client_name is required")
		return models.Quotation{}, false
	}
	if tooLong(q.ClientName, maxNameLength) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "client_name is too long")
		return models.Quotation{}, false
	}
	if !isValidEmail(q.ClientEmail) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "client_email is invalid")
		return models.Quotation{}, false
	}
	if req.AdminFeeBP != nil {
		q.AdminFeeBP = *req.AdminFeeBP
	}
	if raw := strings.TrimSpace(req.ValidUntil); raw != "" {
		validUntil, err := time.Parse(period.DateLayout, raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "valid_until must be YYYY-MM-DD")
			return models.Quotation{}, false
		}
		q.ValidUntil = &validUntil
	}
	for _, item := range req.Items {
		q.Items = append(q.Items, models.QuotationItem{
			Service:   item.Service,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return q, true
}

func toPublicQuotation(q models.Quotation) publicQuotation {
	return publicQuotation{
		Number:          q.Number,
		ClientName:      q.ClientName,
		Items:           q.Items,
		Subtotal:        q.Subtotal,
		AdminFee:        q.AdminFee,
		Total:           q.Total,
		SubtotalDisplay: money.Format(q.Subtotal),
		AdminFeeDisplay: money.Format(q.AdminFee),
		TotalDisplay:    money.Format(q.Total),
		Status:          q.Status,
		ValidUntil:      q.ValidUntil,
		RespondedAt:     q.RespondedAt,
	}
}
