package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type loginRequest struct {
	AgencyID string `json:"agency_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type createUserRequest struct {
	AgencyID string `json:"agency_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.AgencyID = strings.TrimSpace(req.AgencyID)
	req.Email = strings.TrimSpace(req.Email)
	if !isValidUUID(req.AgencyID) || req.Email == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agency_id, email, and password are required")
		return
	}

	result, err := h.store.Login(r.Context(), store.LoginInput{
		AgencyID: req.AgencyID,
		Email:    req.Email,
		Password: req.Password,
		TTL:      h.sessionTTL,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.UTC(),
		User:      result.User,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteSession(r.Context(), session.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), session.AgencyID, session.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		session, ok := requirePermission(w, r, permissionUserManage)
		if !ok {
			return
		}
		role := strings.TrimSpace(r.URL.Query().Get("role"))
		if role != "" && !models.ValidRole(role) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown role")
			return
		}
		users, err := h.store.ListUsers(r.Context(), session.AgencyID, role)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if users == nil {
			users = []models.User{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": users})
	case http.MethodPost:
		h.createUser(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionUserManage)
	if !ok {
		return
	}
	var req createUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.AgencyID = strings.TrimSpace(req.AgencyID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Role = strings.TrimSpace(req.Role)
	if req.AgencyID == "" {
		req.AgencyID = session.AgencyID
	}
	if !requireAgency(w, r, req.AgencyID) {
		return
	}
	if !strings.Contains(req.Email, "@") || req.FullName == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email and full_name are required")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}
	if req.Role == models.RolePlatformAdmin && session.Role != models.RolePlatformAdmin {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "insufficient role")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), models.User{
		AgencyID: req.AgencyID,
		Role:     req.Role,
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    strings.TrimSpace(req.Phone),
		Active:   true,
	}, string(hash))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, user.AgencyID, "user.create", "user", user.UserID)
	writeJSON(w, http.StatusCreated, user)
}
