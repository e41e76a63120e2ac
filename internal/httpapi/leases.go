package httpapi

import (
	"net/http"
	"strings"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/period"
	"rentdesk/internal/store"
)

type createLeaseRequest struct {
	UnitID       string `json:"unit_id"`
	TenantUserID string `json:"tenant_user_id"`
	AgentUserID  string `json:"agent_user_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	MonthlyRent  int64  `json:"monthly_rent"`
	Deposit      int64  `json:"deposit"`
}

func (h *Handler) handleLeases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listLeases(w, r)
	case http.MethodPost:
		h.createLease(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) listLeases(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionLeaseRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := store.LeaseFilter{
		Status:      strings.TrimSpace(query.Get("status")),
		UnitID:      strings.TrimSpace(query.Get("unit_id")),
		AgentUserID: strings.TrimSpace(query.Get("agent_user_id")),
	}
	if filter.UnitID != "" && !isValidUUID(filter.UnitID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit_id must be a UUID")
		return
	}
	if filter.AgentUserID != "" && !isValidUUID(filter.AgentUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agent_user_id must be a UUID")
		return
	}
	if session.Role == models.RoleTenant {
		filter.TenantUserID = session.UserID
	}
	page, ok := parsePage(w, r, store.LeaseSorts, "-created_at")
	if !ok {
		return
	}
	leases, total, err := h.store.ListLeases(r.Context(), session.AgencyID, filter, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(leases, page, total))
}

func (h *Handler) createLease(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionLeaseWrite)
	if !ok {
		return
	}
	var req createLeaseRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.UnitID = strings.TrimSpace(req.UnitID)
	req.TenantUserID = strings.TrimSpace(req.TenantUserID)
	req.AgentUserID = strings.TrimSpace(req.AgentUserID)
	if !isValidUUID(req.UnitID) || !isValidUUID(req.TenantUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit_id and tenant_user_id must be UUIDs")
		return
	}
	if req.AgentUserID == "" && session.Role == models.RoleAgent {
		req.AgentUserID = session.UserID
	}
	if req.AgentUserID != "" && !isValidUUID(req.AgentUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agent_user_id must be a UUID when provided")
		return
	}
	start, err := time.Parse(period.DateLayout, strings.TrimSpace(req.StartDate))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(period.DateLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "end_date must be YYYY-MM-DD")
		return
	}
	if !end.After(start) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "end_date must be after start_date")
		return
	}
	if req.MonthlyRent < 0 || req.Deposit < 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "monthly_rent and deposit must not be negative")
		return
	}

	tenant, err := h.store.GetUser(r.Context(), session.AgencyID, req.TenantUserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if tenant.Role != models.RoleTenant {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "tenant_user_id must reference a tenant")
		return
	}

	lease, err := h.store.CreateLease(r.Context(), models.Lease{
		AgencyID:     session.AgencyID,
		UnitID:       req.UnitID,
		TenantUserID: req.TenantUserID,
		AgentUserID:  req.AgentUserID,
		StartDate:    start,
		EndDate:      end,
		MonthlyRent:  req.MonthlyRent,
		Deposit:      req.Deposit,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, session.AgencyID, "lease.create", "lease", lease.LeaseID)
	writeJSON(w, http.StatusCreated, lease)
}

// handleLease serves /api/leases/{id} and /api/leases/{id}/actions/{action}.
func (h *Handler) handleLease(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/leases/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "lease id must be a UUID")
		return
	}
	leaseID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		session, ok := requirePermission(w, r, permissionLeaseRead)
		if !ok {
			return
		}
		lease, err := h.store.GetLease(r.Context(), session.AgencyID, leaseID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if session.Role == models.RoleTenant && lease.TenantUserID != session.UserID {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "access denied")
			return
		}
		writeJSON(w, http.StatusOK, lease)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		session, ok := requirePermission(w, r, permissionLeaseWrite)
		if !ok {
			return
		}
		action := parts[2]
		if _, known := store.LeaseTransitions.Target(action); !known {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown lease action")
			return
		}
		lease, err := h.store.ApplyLeaseAction(r.Context(), store.LeaseActionInput{
			AgencyID:    session.AgencyID,
			LeaseID:     leaseID,
			Action:      action,
			ActorUserID: session.UserID,
			OccurredAt:  h.now(),
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "lease."+action, "lease", leaseID)
		writeJSON(w, http.StatusOK, lease)
	case len(parts) == 1 || (len(parts) == 3 && parts[1] == "actions"):
		methodNotAllowed(w)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}
