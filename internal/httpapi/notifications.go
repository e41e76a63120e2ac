package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"
)

type preferencesRequest struct {
	Preferences []preferenceRequest `json:"preferences"`
}

type preferenceRequest struct {
	Kind  string `json:"kind"`
	InApp bool   `json:"in_app"`
	Email bool   `json:"email"`
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	unreadOnly := false
	if raw := strings.TrimSpace(r.URL.Query().Get("unread")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unread must be a boolean")
			return
		}
		unreadOnly = parsed
	}
	page, ok := parsePage(w, r, store.NotificationSorts, "-created_at")
	if !ok {
		return
	}
	notifications, total, err := h.store.ListNotifications(r.Context(), session.AgencyID, session.UserID, unreadOnly, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(notifications, page, total))
}

// handleNotification serves POST /api/notifications/{id}/read.
func (h *Handler) handleNotification(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/notifications/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "notification id must be a UUID")
		return
	}
	notification, err := h.store.MarkNotificationRead(r.Context(), session.AgencyID, session.UserID, parts[0])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notification)
}

func (h *Handler) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	updated, err := h.store.MarkAllNotificationsRead(r.Context(), session.AgencyID, session.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (h *Handler) handleNotificationPreferences(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req preferencesRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		prefs := make([]models.NotificationPreference, 0, len(req.Preferences))
		seen := make(map[string]bool)
		for _, pref := range req.Preferences {
			kind := strings.TrimSpace(pref.Kind)
			if !models.ValidNotificationKind(kind) {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown notification kind "+strconv.Quote(kind))
				return
			}
			if seen[kind] {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "duplicate notification kind "+strconv.Quote(kind))
				return
			}
			seen[kind] = true
			prefs = append(prefs, models.NotificationPreference{UserID: session.UserID, Kind: kind, InApp: pref.InApp, Email: pref.Email})
		}
		if err := h.store.SetPreferences(r.Context(), session.UserID, prefs); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
	default:
		methodNotAllowed(w)
		return
	}

	prefs, err := h.store.GetPreferences(r.Context(), session.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}
