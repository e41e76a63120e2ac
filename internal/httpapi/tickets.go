package httpapi

import (
	"context"
	"net/http"
	"strings"

	"rentdesk/internal/markdown"
	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"
)

const (
	maxCommentLength     = 4000
	maxTitleLength       = 200
	maxDescriptionLength = 8000
)

type createTicketRequest struct {
	RequestID   string `json:"request_id"`
	UnitID      string `json:"unit_id"`
	Kind        string `json:"kind"`
	Priority    string `json:"priority"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ticketActionRequest struct {
	RequestID string `json:"request_id"`
	Note      string `json:"note"`
	Cost      *int64 `json:"cost"`
}

type assignTicketRequest struct {
	AssigneeUserID string `json:"assignee_user_id"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type ticketEventsResponse struct {
	Items      []store.TicketEvent `json:"items"`
	ChainValid bool                `json:"chain_valid"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTickets(w, r)
	case http.MethodPost:
		h.createTicket(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) createTicket(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionTicketCreate)
	if !ok {
		return
	}
	var req createTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.UnitID = strings.TrimSpace(req.UnitID)
	req.Kind = strings.TrimSpace(req.Kind)
	req.Priority = strings.TrimSpace(req.Priority)
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)

	if req.RequestID == "" || req.UnitID == "" || req.Title == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, unit_id, and title are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.UnitID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and unit_id must be UUIDs")
		return
	}
	if tooLong(req.Title, maxTitleLength) || tooLong(req.Description, maxDescriptionLength) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "title or description is too long")
		return
	}
	if req.Kind == "" {
		req.Kind = models.TicketKindMaintenance
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !models.ValidTicketKind(req.Kind) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "kind must be maintenance or cleaning")
		return
	}
	if !models.ValidPriority(req.Priority) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "priority must be low, medium, high, or urgent")
		return
	}

	allowed, err := h.store.UserCanAccessUnit(r.Context(), scopeFor(session), req.UnitID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "unit access denied")
		return
	}

	ticket, created, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
		RequestID:      req.RequestID,
		AgencyID:       session.AgencyID,
		UnitID:         req.UnitID,
		ReporterUserID: session.UserID,
		Kind:           req.Kind,
		Priority:       req.Priority,
		Title:          req.Title,
		Description:    req.Description,
		CreatedAt:      h.now(),
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, ticket)
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionTicketRead)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := models.TicketFilter{
		Status:         strings.TrimSpace(query.Get("status")),
		UnitID:         strings.TrimSpace(query.Get("unit_id")),
		AssigneeUserID: strings.TrimSpace(query.Get("assignee_user_id")),
	}
	if filter.UnitID != "" && !isValidUUID(filter.UnitID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit_id must be a UUID")
		return
	}
	if filter.AssigneeUserID != "" && !isValidUUID(filter.AssigneeUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "assignee_user_id must be a UUID")
		return
	}
	switch session.Role {
	case models.RoleTenant:
		filter.ReporterUserID = session.UserID
	case models.RoleOwner:
		filter.OwnerUserID = session.UserID
	case models.RoleMaintenance:
		filter.AssigneeUserID = session.UserID
	}
	page, ok := parsePage(w, r, store.TicketSorts, "-created_at")
	if !ok {
		return
	}
	tickets, total, err := h.store.ListTickets(r.Context(), session.AgencyID, filter, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(tickets, page, total))
}

// handleTicket serves everything below /api/tickets/{id}.
func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/tickets/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}
	ticketID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.getTicket(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.listTicketEvents(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "comments":
		switch r.Method {
		case http.MethodGet:
			h.listTicketComments(w, r, ticketID)
		case http.MethodPost:
			h.addTicketComment(w, r, ticketID)
		default:
			methodNotAllowed(w)
		}
	case len(parts) == 2 && parts[1] == "assign":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.assignTicket(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.applyTicketAction(w, r, ticketID, parts[2])
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

// loadVisibleTicket fetches the ticket and writes the error response itself
// when the caller may not see it.
func (h *Handler) loadVisibleTicket(w http.ResponseWriter, r *http.Request, ticketID string) (models.Session, models.Ticket, bool) {
	session, ok := requirePermission(w, r, permissionTicketRead)
	if !ok {
		return models.Session{}, models.Ticket{}, false
	}
	ticket, err := h.store.GetTicket(r.Context(), session.AgencyID, ticketID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return models.Session{}, models.Ticket{}, false
	}
	visible, err := h.canViewTicket(r.Context(), session, ticket)
	if err != nil {
		h.writeStoreError(w, r, err)
		return models.Session{}, models.Ticket{}, false
	}
	if !visible {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "access denied")
		return models.Session{}, models.Ticket{}, false
	}
	return session, ticket, true
}

func (h *Handler) canViewTicket(ctx context.Context, session models.Session, ticket models.Ticket) (bool, error) {
	switch session.Role {
	case models.RolePlatformAdmin, models.RoleAgencyAdmin, models.RoleAgent:
		return true, nil
	case models.RoleMaintenance:
		return isAssignee(ticket, session.UserID), nil
	case models.RoleTenant:
		return ticket.ReporterUserID == session.UserID, nil
	case models.RoleOwner:
		if ticket.ReporterUserID == session.UserID {
			return true, nil
		}
		return h.store.UserCanAccessUnit(ctx, scopeFor(session), ticket.UnitID)
	default:
		return false, nil
	}
}

func (h *Handler) getTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	_, ticket, ok := h.loadVisibleTicket(w, r, ticketID)
	if !ok {
		return
	}
	rendered, err := markdown.ToHTML(ticket.Description)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	ticket.DescriptionHTML = rendered
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) listTicketEvents(w http.ResponseWriter, r *http.Request, ticketID string) {
	session, ticket, ok := h.loadVisibleTicket(w, r, ticketID)
	if !ok {
		return
	}
	events, err := h.store.ListTicketEvents(r.Context(), session.AgencyID, ticket.TicketID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if events == nil {
		events = []store.TicketEvent{}
	}
	writeJSON(w, http.StatusOK, ticketEventsResponse{
		Items:      events,
		ChainValid: store.VerifyTicketEvents(events) == nil,
	})
}

func (h *Handler) listTicketComments(w http.ResponseWriter, r *http.Request, ticketID string) {
	session, ticket, ok := h.loadVisibleTicket(w, r, ticketID)
	if !ok {
		return
	}
	comments, err := h.store.ListTicketComments(r.Context(), session.AgencyID, ticket.TicketID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if comments == nil {
		comments = []models.TicketComment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": comments})
}

func (h *Handler) addTicketComment(w http.ResponseWriter, r *http.Request, ticketID string) {
	session, ticket, ok := h.loadVisibleTicket(w, r, ticketID)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" || len(req.Body) > maxCommentLength {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "body is required and must be at most 4000 bytes")
		return
	}
	if ticket.Status == models.TicketClosed {
		writeError(w, requestIDFromRequest(r), http.StatusConflict, "invalid_transition", "ticket is closed")
		return
	}
	comment, err := h.store.AddTicketComment(r.Context(), session.AgencyID, models.TicketComment{
		TicketID:     ticket.TicketID,
		AuthorUserID: session.UserID,
		Body:         req.Body,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *Handler) assignTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	session, ok := requirePermission(w, r, permissionTicketAssign)
	if !ok {
		return
	}
	var req assignTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.AssigneeUserID = strings.TrimSpace(req.AssigneeUserID)
	if !isValidUUID(req.AssigneeUserID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "assignee_user_id must be a UUID")
		return
	}
	ticket, err := h.store.AssignTicket(r.Context(), store.AssignTicketInput{
		AgencyID:       session.AgencyID,
		TicketID:       ticketID,
		AssigneeUserID: req.AssigneeUserID,
		ActorUserID:    session.UserID,
		OccurredAt:     h.now(),
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.recordAudit(r, session.AgencyID, "ticket.assign", "ticket", ticketID)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) applyTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	session, ok := requirePermission(w, r, permissionTicketRead)
	if !ok {
		return
	}
	if _, known := store.TicketTransitions.Target(action); !known {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown ticket action")
		return
	}
	var req ticketActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Note = strings.TrimSpace(req.Note)
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.Cost != nil {
		if *req.Cost < 0 {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "cost must not be negative")
			return
		}
		if action != "resolve" && action != "close" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "cost is only accepted when resolving or closing")
			return
		}
		if session.Role == models.RoleTenant || session.Role == models.RoleOwner {
			writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "insufficient role")
			return
		}
	}

	ticket, applied, err := h.store.ApplyTicketAction(r.Context(), store.TicketActionInput{
		RequestID:   req.RequestID,
		AgencyID:    session.AgencyID,
		TicketID:    ticketID,
		Action:      action,
		ActorUserID: session.UserID,
		Note:        req.Note,
		Cost:        req.Cost,
		OccurredAt:  h.now(),
		Authorize: func(current models.Ticket) error {
			return authorizeTicketAction(session, current, action)
		},
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !applied {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, http.StatusOK, ticket)
}

// authorizeTicketAction applies the role gates against the locked ticket.
// Reporters may only close their own ticket once it is resolved.
func authorizeTicketAction(session models.Session, ticket models.Ticket, action string) error {
	switch session.Role {
	case models.RolePlatformAdmin, models.RoleAgencyAdmin, models.RoleAgent:
		return nil
	case models.RoleMaintenance:
		switch action {
		case "start", "hold", "resume", "resolve":
			if isAssignee(ticket, session.UserID) {
				return nil
			}
		}
		return store.ErrAccessDenied
	case models.RoleTenant, models.RoleOwner:
		if action == "close" && ticket.ReporterUserID == session.UserID && ticket.Status == models.TicketResolved {
			return nil
		}
		return store.ErrAccessDenied
	default:
		return store.ErrAccessDenied
	}
}

func isAssignee(ticket models.Ticket, userID string) bool {
	return ticket.AssigneeUserID != nil && *ticket.AssigneeUserID == userID
}
