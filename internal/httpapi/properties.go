package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"
)

type propertyRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	OwnerUserID string `json:"owner_user_id"`
}

type unitRequest struct {
	PropertyID  string `json:"property_id"`
	Label       string `json:"label"`
	Bedrooms    int    `json:"bedrooms"`
	Bathrooms   int    `json:"bathrooms"`
	AreaM2      int    `json:"area_m2"`
	MonthlyRent int64  `json:"monthly_rent"`
}

type unitStatusRequest struct {
	Status string `json:"status"`
}

type listingRequest struct {
	UnitID      string `json:"unit_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Kind        string `json:"kind"`
}

func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		session, ok := requirePermission(w, r, permissionPropertyRead)
		if !ok {
			return
		}
		page, ok := parsePage(w, r, store.PropertySorts, "-created_at")
		if !ok {
			return
		}
		properties, total, err := h.store.ListProperties(r.Context(), scopeFor(session), page)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pagination.NewResult(properties, page, total))
	case http.MethodPost:
		session, ok := requirePermission(w, r, permissionPropertyWrite)
		if !ok {
			return
		}
		var req propertyRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Address = strings.TrimSpace(req.Address)
		req.City = strings.TrimSpace(req.City)
		req.OwnerUserID = strings.TrimSpace(req.OwnerUserID)
		if req.Name == "" || req.Address == "" || req.City == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "name, address, and city are required")
			return
		}
		if req.OwnerUserID != "" {
			if !isValidUUID(req.OwnerUserID) {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "owner_user_id must be a UUID")
				return
			}
			owner, err := h.store.GetUser(r.Context(), session.AgencyID, req.OwnerUserID)
			if err != nil {
				h.writeStoreError(w, r, err)
				return
			}
			if owner.Role != models.RoleOwner {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "owner_user_id must reference an owner")
				return
			}
		}
		property, err := h.store.CreateProperty(r.Context(), models.Property{
			AgencyID:    session.AgencyID,
			OwnerUserID: req.OwnerUserID,
			Name:        req.Name,
			Address:     req.Address,
			City:        req.City,
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "property.create", "property", property.PropertyID)
		writeJSON(w, http.StatusCreated, property)
	default:
		methodNotAllowed(w)
	}
}

// handleProperty serves /api/properties/{id} and /api/properties/{id}/units.
func (h *Handler) handleProperty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requirePermission(w, r, permissionPropertyRead)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, "/api/properties/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "property id must be a UUID")
		return
	}
	property, err := h.store.GetProperty(r.Context(), session.AgencyID, parts[0])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if session.Role == models.RoleOwner && property.OwnerUserID != session.UserID {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "access denied")
		return
	}

	switch {
	case len(parts) == 1:
		writeJSON(w, http.StatusOK, property)
	case len(parts) == 2 && parts[1] == "units":
		page, ok := parsePage(w, r, store.UnitSorts, "label")
		if !ok {
			return
		}
		units, total, err := h.store.ListUnits(r.Context(), session.AgencyID, property.PropertyID, page)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pagination.NewResult(units, page, total))
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) handleUnits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		session, ok := requirePermission(w, r, permissionPropertyWrite)
		if !ok {
			return
		}
		propertyID := strings.TrimSpace(r.URL.Query().Get("property_id"))
		if propertyID != "" && !isValidUUID(propertyID) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "property_id must be a UUID")
			return
		}
		page, ok := parsePage(w, r, store.UnitSorts, "label")
		if !ok {
			return
		}
		units, total, err := h.store.ListUnits(r.Context(), session.AgencyID, propertyID, page)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pagination.NewResult(units, page, total))
	case http.MethodPost:
		session, ok := requirePermission(w, r, permissionPropertyWrite)
		if !ok {
			return
		}
		var req unitRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.PropertyID = strings.TrimSpace(req.PropertyID)
		req.Label = strings.TrimSpace(req.Label)
		if !isValidUUID(req.PropertyID) || req.Label == "" {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "property_id and label are required")
			return
		}
		if req.Bedrooms < 0 || req.Bathrooms < 0 || req.AreaM2 < 0 || req.MonthlyRent < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit sizes and rent must not be negative")
			return
		}
		unit, err := h.store.CreateUnit(r.Context(), models.Unit{
			PropertyID:  req.PropertyID,
			AgencyID:    session.AgencyID,
			Label:       req.Label,
			Bedrooms:    req.Bedrooms,
			Bathrooms:   req.Bathrooms,
			AreaM2:      req.AreaM2,
			MonthlyRent: req.MonthlyRent,
			Status:      models.UnitVacant,
		})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "unit.create", "unit", unit.UnitID)
		writeJSON(w, http.StatusCreated, unit)
	default:
		methodNotAllowed(w)
	}
}

// handleUnit serves /api/units/{id} and /api/units/{id}/status.
func (h *Handler) handleUnit(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/units/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit id must be a UUID")
		return
	}
	unitID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		session, ok := requirePermission(w, r, permissionPropertyRead)
		if !ok {
			return
		}
		allowed, err := h.store.UserCanAccessUnit(r.Context(), scopeFor(session), unitID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if !allowed {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "access denied")
			return
		}
		unit, err := h.store.GetUnit(r.Context(), session.AgencyID, unitID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, unit)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		session, ok := requirePermission(w, r, permissionPropertyWrite)
		if !ok {
			return
		}
		var req unitStatusRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		// occupied is owned by the lease workflow.
		switch req.Status {
		case models.UnitVacant, models.UnitMaintenance:
		default:
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "status must be vacant or maintenance")
			return
		}
		current, err := h.store.GetUnit(r.Context(), session.AgencyID, unitID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if current.Status == models.UnitOccupied {
			writeError(w, requestIDFromRequest(r), http.StatusConflict, "unit_unavailable", "unit is occupied by an active lease")
			return
		}
		unit, err := h.store.SetUnitStatus(r.Context(), session.AgencyID, unitID, req.Status)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "unit.status", "unit", unitID)
		writeJSON(w, http.StatusOK, unit)
	case len(parts) <= 2:
		methodNotAllowed(w)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func (h *Handler) handleListings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		session, ok := requirePermission(w, r, permissionListingWrite)
		if !ok {
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		page, ok := parsePage(w, r, store.ListingSorts, "-created_at")
		if !ok {
			return
		}
		listings, total, err := h.store.ListListings(r.Context(), session.AgencyID, status, page)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pagination.NewResult(listings, page, total))
	case http.MethodPost:
		session, ok := requirePermission(w, r, permissionListingWrite)
		if !ok {
			return
		}
		var req listingRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if !isValidUUID(strings.TrimSpace(req.UnitID)) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unit_id must be a UUID")
			return
		}
		listing, ok := validateListing(w, r, models.Listing{
			AgencyID:    session.AgencyID,
			UnitID:      strings.TrimSpace(req.UnitID),
			Title:       req.Title,
			Description: req.Description,
			Price:       req.Price,
			Kind:        req.Kind,
		})
		if !ok {
			return
		}
		created, err := h.store.CreateListing(r.Context(), listing)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "listing.create", "listing", created.ListingID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w)
	}
}

// handleListing serves /api/listings/{id} and
// /api/listings/{id}/actions/{publish|unpublish|archive}.
func (h *Handler) handleListing(w http.ResponseWriter, r *http.Request) {
	session, ok := requirePermission(w, r, permissionListingWrite)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, "/api/listings/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "listing id must be a UUID")
		return
	}
	listingID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		listing, err := h.store.GetListing(r.Context(), session.AgencyID, listingID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	case len(parts) == 1 && r.Method == http.MethodPut:
		var req listingRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		current, err := h.store.GetListing(r.Context(), session.AgencyID, listingID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if current.Status == models.ListingArchived {
			writeError(w, requestIDFromRequest(r), http.StatusConflict, "invalid_transition", "archived listings are read-only")
			return
		}
		current.Title = req.Title
		current.Description = req.Description
		current.Price = req.Price
		current.Kind = req.Kind
		listing, ok := validateListing(w, r, current)
		if !ok {
			return
		}
		updated, err := h.store.UpdateListing(r.Context(), listing)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "listing.update", "listing", listingID)
		writeJSON(w, http.StatusOK, updated)
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		action := parts[2]
		if _, known := store.ListingTransitions.Target(action); !known {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown listing action")
			return
		}
		listing, err := h.store.ApplyListingAction(r.Context(), session.AgencyID, listingID, action)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		h.recordAudit(r, session.AgencyID, "listing."+action, "listing", listingID)
		writeJSON(w, http.StatusOK, listing)
	case len(parts) == 1 || (len(parts) == 3 && parts[1] == "actions"):
		methodNotAllowed(w)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	}
}

func validateListing(w http.ResponseWriter, r *http.Request, listing models.Listing) (models.Listing, bool) {
	listing.Title = strings.TrimSpace(listing.Title)
	listing.Description = strings.TrimSpace(listing.Description)
	listing.Kind = strings.TrimSpace(listing.Kind)
	if listing.Kind == "" {
		listing.Kind = models.ListingKindRent
	}
	if listing.Title == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "title is required")
		return models.Listing{}, false
	}
	if listing.Price < 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "price must not be negative")
		return models.Listing{}, false
	}
	if listing.Kind != models.ListingKindRent && listing.Kind != models.ListingKindSale {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "kind must be rent or sale")
		return models.Listing{}, false
	}
	return listing, true
}

// handleListingSearch is public and only ever returns published listings.
func (h *Handler) handleListingSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	query := r.URL.Query()
	filter := models.ListingFilter{
		AgencyID: strings.TrimSpace(query.Get("agency_id")),
		City:     strings.TrimSpace(query.Get("city")),
		Kind:     strings.TrimSpace(query.Get("kind")),
		Query:    strings.TrimSpace(query.Get("q")),
	}
	if filter.AgencyID != "" && !isValidUUID(filter.AgencyID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "agency_id must be a UUID")
		return
	}
	if filter.Kind != "" && filter.Kind != models.ListingKindRent && filter.Kind != models.ListingKindSale {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "kind must be rent or sale")
		return
	}
	var err error
	if filter.MinPrice, err = parseNonNegative(query.Get("min_price")); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "min_price must be a non-negative integer")
		return
	}
	if filter.MaxPrice, err = parseNonNegative(query.Get("max_price")); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "max_price must be a non-negative integer")
		return
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "min_price must not exceed max_price")
		return
	}
	bedrooms, err := parseNonNegative(query.Get("min_bedrooms"))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "min_bedrooms must be a non-negative integer")
		return
	}
	filter.MinBedrooms = int(bedrooms)

	page, ok := parsePage(w, r, store.ListingSorts, "-published_at")
	if !ok {
		return
	}
	listings, total, err := h.store.SearchListings(r.Context(), filter, page)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(listings, page, total))
}

func parseNonNegative(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
