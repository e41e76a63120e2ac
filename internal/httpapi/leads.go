package httpapi

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"
)

const (
	maxLeadMessageLength = 4000
	maxNameLength        = 200
)

type publicLeadRequest struct {
	AgencyID  string `json:"agency_id"`
	ListingID string `json:"listing_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handlePublicLead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req publicLeadRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.AgencyID = strings.TrimSpace(req.AgencyID)
	req.ListingID = strings.TrimSpace(req.ListingID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	if !isValidUUID(req.AgencyID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agency_id must be a UUID")
		return
	}
	if req.ListingID != "" && !isValidUUID(req.ListingID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "listing_id must be a UUID when provided")
		return
	}
	if req.Name == "" || req.Message == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name and message are required")
		return
	}
	if tooLong(req.Name, maxNameLength) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is too long")
		return
	}
	if !isValidEmail(req.Email) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email is invalid")
		return
	}
	if req.Phone != "" && !isValidPhone(req.Phone) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "phone must be 8-16 digits")
		return
	}
	if tooLong(req.Message, maxLeadMessageLength) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "message is too long")
		return
	}

	lead, err := h.store.CreateLead(r.Context(), models.Lead{
		AgencyID:  req.AgencyID,
		ListingID: req.ListingID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Message:   req.Message,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lead_id": lead.LeadID, "status": lead.Status})
}

func (h *Handler) handleLeads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requirePermission(w, r, permissionLeadManage)
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	page, ok := parsePage(w, r, store.LeadSorts, "-created_at")
	if !ok {
		return
	}
	leads, total, err := h.store.ListLeads(r.Context(), session.AgencyID, status, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(leads, page, total))
}

// handleLead serves POST /api/leads/{id}/status.
func (h *Handler) handleLead(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/leads/")
	if len(parts) != 2 || parts[1] != "status" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, ok := requirePermission(w, r, permissionLeadManage)
	if !ok {
		return
	}
	if !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "lead id must be a UUID")
		return
	}
	var req leadStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if _, known := store.LeadTransitions.Target(req.Status); !known {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown lead status")
		return
	}
	lead, err := h.store.UpdateLeadStatus(r.Context(), session.AgencyID, parts[0], req.Status)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, session.AgencyID, "lead."+lead.Status, "lead", lead.LeadID)
	writeJSON(w, http.StatusOK, lead)
}

func isValidEmail(value string) bool {
	local, domain, ok := strings.Cut(value, "@")
	return ok && local != "" && strings.Contains(domain, ".") && !strings.ContainsAny(value, " \t\r\n")
}

// tooLong counts characters, not bytes.
func tooLong(value string, max int) bool {
	return utf8.RuneCountInString(value) > max
}

func isValidPhone(value string) bool {
	value = strings.TrimPrefix(value, "+")
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
