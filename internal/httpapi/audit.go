package httpapi

import (
	"net/http"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"go.uber.org/zap"
)

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requirePermission(w, r, permissionAuditRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := store.AuditFilter{
		ActionType:  strings.TrimSpace(query.Get("action_type")),
		ActorUserID: strings.TrimSpace(query.Get("actor_user_id")),
	}
	if filter.ActorUserID != "" && !isValidUUID(filter.ActorUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "actor_user_id must be a UUID")
		return
	}
	page, ok := parsePage(w, r, store.AuditSorts, "-created_at")
	if !ok {
		return
	}
	entries, total, err := h.store.ListAudit(r.Context(), session.AgencyID, filter, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(entries, page, total))
}

// recordAudit is best effort; a failed insert is logged and never fails the
// mutation it describes.
func (h *Handler) recordAudit(r *http.Request, agencyID, actionType, targetType, targetID string) {
	if !isValidUUID(agencyID) {
		return
	}
	session, _ := sessionFromContext(r.Context())
	err := h.store.InsertAudit(r.Context(), models.AuditLog{
		AgencyID:    agencyID,
		ActorUserID: session.UserID,
		ActionType:  actionType,
		TargetType:  targetType,
		TargetID:    targetID,
		CreatedAt:   h.now(),
		IP:          clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.logger.Warn("audit insert failed", zap.String("action", actionType), zap.String("target_id", targetID), zap.Error(err))
	}
}
