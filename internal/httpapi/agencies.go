package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"rentdesk/internal/commission"
	"rentdesk/internal/mailbox"
	"rentdesk/internal/models"
	"rentdesk/internal/store"
)

type agencyRequest struct {
	Name         string             `json:"name"`
	ContactEmail string             `json:"contact_email"`
	Active       *bool              `json:"active"`
	Commission   *commissionRequest `json:"commission,omitempty"`
}

type mailboxRequest struct {
	Enabled             bool    `json:"enabled"`
	Protocol            string  `json:"protocol"`
	Host                string  `json:"host"`
	Port                int     `json:"port"`
	Username            string  `json:"username"`
	Password            *string `json:"password"`
	UseTLS              *bool   `json:"use_tls"`
	Folder              string  `json:"folder"`
	ImportAs            string  `json:"import_as"`
	PollIntervalMinutes int     `json:"poll_interval_minutes"`
}

type commissionRequest struct {
	ListingCommissionBP int  `json:"listing_commission_bp"`
	AgentSplitBP        int  `json:"agent_split_bp"`
	AdminFeeBP          *int `json:"admin_fee_bp"`
}

func (h *Handler) handleAgencies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requirePermission(w, r, permissionAgencyManage); !ok {
			return
		}
		agencies, err := h.store.ListAgencies(r.Context())
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if agencies == nil {
			agencies = []models.Agency{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": agencies})
	case http.MethodPost:
		h.createAgency(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) createAgency(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionAgencyManage)
	if !ok {
		return
	}
	var req agencyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)
	if req.Name == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	cfg := models.CommissionConfig{AdminFeeBP: h.defaultAdminFeeBP}
	if req.Commission != nil {
		cfg = h.commissionFromRequest(*req.Commission)
	}
	if err := commission.ValidateConfig(cfg); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	agency, err := h.store.CreateAgency(r.Context(), models.Agency{
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
	}, cfg)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, session.AgencyID, "agency.create", "agency", agency.AgencyID)
	writeJSON(w, http.StatusCreated, agency)
}

// handleAgency serves /api/agencies/{id}, /api/agencies/{id}/commission and
// /api/agencies/{id}/mailbox.
func (h *Handler) handleAgency(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/agencies/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agency id must be a UUID")
		return
	}
	agencyID := parts[0]
	if _, ok := requirePermission(w, r, permissionAgencyConfig); !ok {
		return
	}
	if !requireAgency(w, r, agencyID) {
		return
	}

	switch {
	case len(parts) == 1:
		h.handleAgencyRecord(w, r, agencyID)
	case len(parts) == 2 && parts[1] == "commission":
		h.handleAgencyCommission(w, r, agencyID)
	case len(parts) == 2 && parts[1] == "mailbox":
		h.handleAgencyMailbox(w, r, agencyID)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) handleAgencyRecord(w http.ResponseWriter, r *http.Request, agencyID string) {
	switch r.Method {
	case http.MethodGet:
		agency, err := h.store.GetAgency(r.Context(), agencyID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, agency)
	case http.MethodPut:
		var req agencyRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		current, err := h.store.GetAgency(r.Context(), agencyID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			current.Name = name
		}
		if email := strings.TrimSpace(req.ContactEmail); email != "" {
			current.ContactEmail = email
		}
		if req.Active != nil {
			session, _ := sessionFromContext(r.Context())
			if session.Role != models.RolePlatformAdmin {
				writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "only platform admins change agency status")
				return
			}
			current.Active = *req.Active
		}
		updated, err := h.store.UpdateAgency(r.Context(), current)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, agencyID, "agency.update", "agency", agencyID)
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) handleAgencyCommission(w http.ResponseWriter, r *http.Request, agencyID string) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := h.store.GetCommissionConfig(r.Context(), agencyID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req commissionRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		cfg := h.commissionFromRequest(req)
		cfg.AgencyID = agencyID
		if err := commission.ValidateConfig(cfg); err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if _, err := h.store.GetAgency(r.Context(), agencyID); err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		saved, err := h.store.UpsertCommissionConfig(r.Context(), cfg)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, agencyID, "commission.update", "agency", agencyID)
		writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) commissionFromRequest(req commissionRequest) models.CommissionConfig {
	cfg := models.CommissionConfig{
		ListingCommissionBP: req.ListingCommissionBP,
		AgentSplitBP:        req.AgentSplitBP,
		AdminFeeBP:          h.defaultAdminFeeBP,
	}
	if req.AdminFeeBP != nil {
		cfg.AdminFeeBP = *req.AdminFeeBP
	}
	return cfg
}

// handleAgencyMailbox stores the inbound mailbox used for email import. An
// omitted password keeps the stored one.
func (h *Handler) handleAgencyMailbox(w http.ResponseWriter, r *http.Request, agencyID string) {
	switch r.Method {
	case http.MethodGet:
		settings, err := h.store.GetMailboxSettings(r.Context(), agencyID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req mailboxRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		hasPassword := false
		current, err := h.store.GetMailboxSettings(r.Context(), agencyID)
		switch {
		case err == nil:
			hasPassword = current.PasswordSet
		case !errors.Is(err, store.ErrMailboxNotFound):
			h.writeStoreError(w, r, err)
			return
		}

		var sealed []byte
		if req.Password != nil {
			if *req.Password == "" {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "password must not be empty")
				return
			}
			if h.sealer == nil {
				writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "mailbox_secret_missing", "mailbox passwords cannot be stored on this server")
				return
			}
			if sealed, err = h.sealer.Seal(*req.Password); err != nil {
				h.writeStoreError(w, r, err)
				return
			}
			hasPassword = true
		}

		useTLS := true
		if req.UseTLS != nil {
			useTLS = *req.UseTLS
		}
		settings, err := mailbox.Normalize(models.MailboxSettings{
			AgencyID:            agencyID,
			Enabled:             req.Enabled,
			Protocol:            req.Protocol,
			Host:                req.Host,
			Port:                req.Port,
			Username:            req.Username,
			UseTLS:              useTLS,
			Folder:              req.Folder,
			ImportAs:            req.ImportAs,
			PollIntervalMinutes: req.PollIntervalMinutes,
		}, hasPassword)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		saved, err := h.store.UpsertMailboxSettings(r.Context(), settings, sealed)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, agencyID, "mailbox.update", "agency", agencyID)
		writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w)
	}
}
