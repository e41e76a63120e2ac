package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"rentdesk/internal/mailbox"
	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPropertyID     = "66666666-6666-6666-6666-666666666666"
	testListingID      = "77777777-7777-7777-7777-777777777777"
	testLeadID         = "88888888-8888-8888-8888-888888888888"
	testLeaseID        = "12121212-1212-1212-1212-121212121212"
	testNotificationID = "13131313-1313-1313-1313-131313131313"
)

func (f *fakeStore) GetUser(ctx context.Context, agencyID, userID string) (models.User, error) {
	return f.getUserFn(ctx, agencyID, userID)
}

func (f *fakeStore) GetAgency(ctx context.Context, agencyID string) (models.Agency, error) {
	return f.getAgencyFn(ctx, agencyID)
}

func (f *fakeStore) UpsertCommissionConfig(ctx context.Context, cfg models.CommissionConfig) (models.CommissionConfig, error) {
	return f.upsertCommissionFn(ctx, cfg)
}

func (f *fakeStore) ListProperties(ctx context.Context, scope store.Scope, page pagination.Params) ([]models.Property, int, error) {
	return f.listPropertiesFn(ctx, scope, page)
}

func (f *fakeStore) CreateProperty(ctx context.Context, property models.Property) (models.Property, error) {
	return f.createPropertyFn(ctx, property)
}

func (f *fakeStore) GetProperty(ctx context.Context, agencyID, propertyID string) (models.Property, error) {
	return f.getPropertyFn(ctx, agencyID, propertyID)
}

func (f *fakeStore) ListUnits(ctx context.Context, agencyID, propertyID string, page pagination.Params) ([]models.Unit, int, error) {
	return f.listUnitsFn(ctx, agencyID, propertyID, page)
}

func (f *fakeStore) CreateUnit(ctx context.Context, unit models.Unit) (models.Unit, error) {
	return f.createUnitFn(ctx, unit)
}

func (f *fakeStore) GetUnit(ctx context.Context, agencyID, unitID string) (models.Unit, error) {
	return f.getUnitFn(ctx, agencyID, unitID)
}

func (f *fakeStore) SetUnitStatus(ctx context.Context, agencyID, unitID, status string) (models.Unit, error) {
	return f.setUnitStatusFn(ctx, agencyID, unitID, status)
}

func (f *fakeStore) CreateListing(ctx context.Context, listing models.Listing) (models.Listing, error) {
	return f.createListingFn(ctx, listing)
}

func (f *fakeStore) GetListing(ctx context.Context, agencyID, listingID string) (models.Listing, error) {
	return f.getListingFn(ctx, agencyID, listingID)
}

func (f *fakeStore) UpdateListing(ctx context.Context, listing models.Listing) (models.Listing, error) {
	return f.updateListingFn(ctx, listing)
}

func (f *fakeStore) ApplyListingAction(ctx context.Context, agencyID, listingID, action string) (models.Listing, error) {
	return f.listingActionFn(ctx, agencyID, listingID, action)
}

func (f *fakeStore) SearchListings(ctx context.Context, filter models.ListingFilter, page pagination.Params) ([]models.Listing, int, error) {
	return f.searchListingsFn(ctx, filter, page)
}

func (f *fakeStore) UpdateLeadStatus(ctx context.Context, agencyID, leadID, status string) (models.Lead, error) {
	return f.updateLeadStatusFn(ctx, agencyID, leadID, status)
}

func (f *fakeStore) CreateLease(ctx context.Context, lease models.Lease) (models.Lease, error) {
	return f.createLeaseFn(ctx, lease)
}

func (f *fakeStore) GetLease(ctx context.Context, agencyID, leaseID string) (models.Lease, error) {
	return f.getLeaseFn(ctx, agencyID, leaseID)
}

func (f *fakeStore) ApplyLeaseAction(ctx context.Context, input store.LeaseActionInput) (models.Lease, error) {
	return f.leaseActionFn(ctx, input)
}

func (f *fakeStore) ListNotifications(ctx context.Context, agencyID, userID string, unreadOnly bool, page pagination.Params) ([]models.Notification, int, error) {
	return f.listNotificationsFn(ctx, agencyID, userID, unreadOnly, page)
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error) {
	return f.markReadFn(ctx, agencyID, userID, notificationID)
}

func (f *fakeStore) MarkAllNotificationsRead(ctx context.Context, agencyID, userID string) (int, error) {
	return f.markAllReadFn(ctx, agencyID, userID)
}

func (f *fakeStore) GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	return f.getPreferencesFn(ctx, userID)
}

func (f *fakeStore) SetPreferences(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
	return f.setPreferencesFn(ctx, userID, prefs)
}

func (f *fakeStore) ListAudit(ctx context.Context, agencyID string, filter store.AuditFilter, page pagination.Params) ([]models.AuditLog, int, error) {
	return f.listAuditFn(ctx, agencyID, filter, page)
}

func (f *fakeStore) GetMailboxSettings(ctx context.Context, agencyID string) (models.MailboxSettings, error) {
	return f.getMailboxFn(ctx, agencyID)
}

func (f *fakeStore) UpsertMailboxSettings(ctx context.Context, settings models.MailboxSettings, sealedPassword []byte) (models.MailboxSettings, error) {
	return f.upsertMailboxFn(ctx, settings, sealedPassword)
}

func auditActions(st *fakeStore) []string {
	actions := make([]string, 0, len(st.audits))
	for _, audit := range st.audits {
		actions = append(actions, audit.ActionType)
	}
	return actions
}

func TestCreatePropertyChecksOwnerRole(t *testing.T) {
	var created models.Property
	st := &fakeStore{
		getUserFn: func(ctx context.Context, agencyID, userID string) (models.User, error) {
			if userID == tenantUserID {
				return models.User{UserID: userID, AgencyID: agencyID, Role: models.RoleTenant}, nil
			}
			return models.User{UserID: userID, AgencyID: agencyID, Role: models.RoleOwner}, nil
		},
		createPropertyFn: func(ctx context.Context, property models.Property) (models.Property, error) {
			created = property
			property.PropertyID = testPropertyID
			return property, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodPost, "/api/properties", adminToken, map[string]string{
		"name": "Harbor House", "address": "1 Quay St", "city": "Porto", "owner_user_id": tenantUserID,
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "owner_user_id must reference an owner", decodeError(t, resp).Error.Message)

	resp = doRequest(t, server, http.MethodPost, "/api/properties", adminToken, map[string]string{
		"name": "Harbor House", "address": "1 Quay St",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/properties", adminToken, map[string]string{
		"name": " Harbor House ", "address": "1 Quay St", "city": "Porto", "owner_user_id": ownerUserID,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, models.Property{AgencyID: testAgencyID, OwnerUserID: ownerUserID, Name: "Harbor House", Address: "1 Quay St", City: "Porto"}, created)
	assert.Equal(t, []string{"property.create"}, auditActions(st))

	resp = doRequest(t, server, http.MethodPost, "/api/properties", ownerToken, map[string]string{
		"name": "Mine", "address": "2 Quay St", "city": "Porto",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestPropertyAccessForOwners(t *testing.T) {
	var scope store.Scope
	var unitsFor string
	st := &fakeStore{
		listPropertiesFn: func(ctx context.Context, s store.Scope, page pagination.Params) ([]models.Property, int, error) {
			scope = s
			return []models.Property{{PropertyID: testPropertyID, OwnerUserID: ownerUserID}}, 1, nil
		},
		getPropertyFn: func(ctx context.Context, agencyID, propertyID string) (models.Property, error) {
			return models.Property{PropertyID: propertyID, AgencyID: agencyID, OwnerUserID: ownerUserID}, nil
		},
		listUnitsFn: func(ctx context.Context, agencyID, propertyID string, page pagination.Params) ([]models.Unit, int, error) {
			unitsFor = propertyID
			assert.Equal(t, "label", page.Sort)
			return []models.Unit{{UnitID: testUnitID, PropertyID: propertyID}}, 1, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodGet, "/api/properties", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, store.Scope{AgencyID: testAgencyID, UserID: ownerUserID, Role: models.RoleOwner}, scope)

	resp = doRequest(t, server, http.MethodGet, "/api/properties/"+testPropertyID+"/units", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, testPropertyID, unitsFor)
	var units pagination.Result[models.Unit]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&units))
	assert.Equal(t, 1, units.Total)

	st.getPropertyFn = func(ctx context.Context, agencyID, propertyID string) (models.Property, error) {
		return models.Property{PropertyID: propertyID, AgencyID: agencyID, OwnerUserID: agentUserID}, nil
	}
	resp = doRequest(t, server, http.MethodGet, "/api/properties/"+testPropertyID, ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/properties/"+testPropertyID, adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	st.getPropertyFn = func(ctx context.Context, agencyID, propertyID string) (models.Property, error) {
		return models.Property{}, store.ErrPropertyNotFound
	}
	resp = doRequest(t, server, http.MethodGet, "/api/properties/"+testPropertyID, adminToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "property_not_found", decodeError(t, resp).Error.Code)
}

func TestCreateUnitValidation(t *testing.T) {
	var created models.Unit
	st := &fakeStore{
		createUnitFn: func(ctx context.Context, unit models.Unit) (models.Unit, error) {
			created = unit
			unit.UnitID = testUnitID
			return unit, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodPost, "/api/units", agentToken, map[string]interface{}{
		"property_id": testPropertyID, "label": "2B", "monthly_rent": -1,
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/units", agentToken, map[string]interface{}{
		"property_id": "not-a-uuid", "label": "2B",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/units", tenantToken, map[string]interface{}{
		"property_id": testPropertyID, "label": "2B",
	})
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/units", agentToken, map[string]interface{}{
		"property_id": testPropertyID, "label": " 2B ", "bedrooms": 2, "bathrooms": 1, "area_m2": 64, "monthly_rent": 125000,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	want := models.Unit{
		PropertyID:  testPropertyID,
		AgencyID:    testAgencyID,
		Label:       "2B",
		Bedrooms:    2,
		Bathrooms:   1,
		AreaM2:      64,
		MonthlyRent: 125000,
		Status:      models.UnitVacant,
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Fatalf("unit mismatch (-want +got):\n%s", diff)
	}
}

func TestGetUnitChecksAccess(t *testing.T) {
	st := &fakeStore{
		canAccessUnitFn: func(ctx context.Context, scope store.Scope, unitID string) (bool, error) {
			return scope.Role != models.RoleOwner, nil
		},
		getUnitFn: func(ctx context.Context, agencyID, unitID string) (models.Unit, error) {
			return models.Unit{UnitID: unitID, AgencyID: agencyID, Status: models.UnitVacant}, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodGet, "/api/units/"+testUnitID, ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/units/"+testUnitID, maintToken, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestUnitStatusLeavesOccupiedToLeases(t *testing.T) {
	current := models.UnitOccupied
	var setTo string
	st := &fakeStore{
		getUnitFn: func(ctx context.Context, agencyID, unitID string) (models.Unit, error) {
			return models.Unit{UnitID: unitID, AgencyID: agencyID, Status: current}, nil
		},
		setUnitStatusFn: func(ctx context.Context, agencyID, unitID, status string) (models.Unit, error) {
			setTo = status
			return models.Unit{UnitID: unitID, AgencyID: agencyID, Status: status}, nil
		},
	}
	server := newTestServer(st)
	path := "/api/units/" + testUnitID + "/status"

	resp := doRequest(t, server, http.MethodPost, path, adminToken, map[string]string{"status": models.UnitOccupied})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, path, adminToken, map[string]string{"status": models.UnitMaintenance})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "unit_unavailable", decodeError(t, resp).Error.Code)
	assert.Empty(t, setTo)

	current = models.UnitVacant
	resp = doRequest(t, server, http.MethodPost, path, adminToken, map[string]string{"status": models.UnitMaintenance})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.UnitMaintenance, setTo)
	assert.Equal(t, []string{"unit.status"}, auditActions(st))
}

func TestListingLifecycle(t *testing.T) {
	var created, updated models.Listing
	var action string
	stored := models.Listing{ListingID: testListingID, AgencyID: testAgencyID, UnitID: testUnitID, Title: "Loft", Kind: models.ListingKindRent, Status: models.ListingDraft}
	st := &fakeStore{
		createListingFn: func(ctx context.Context, listing models.Listing) (models.Listing, error) {
			created = listing
			listing.ListingID = testListingID
			return listing, nil
		},
		getListingFn: func(ctx context.Context, agencyID, listingID string) (models.Listing, error) {
			return stored, nil
		},
		updateListingFn: func(ctx context.Context, listing models.Listing) (models.Listing, error) {
			updated = listing
			return listing, nil
		},
		listingActionFn: func(ctx context.Context, agencyID, listingID, a string) (models.Listing, error) {
			action = a
			if a == "unpublish" {
				return models.Listing{}, store.ErrInvalidTransition
			}
			return models.Listing{ListingID: listingID, Status: models.ListingPublished}, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodPost, "/api/listings", agentToken, map[string]interface{}{
		"unit_id": testUnitID, "title": " Sunny loft ", "price": 120000,
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, models.ListingKindRent, created.Kind)
	assert.Equal(t, "Sunny loft", created.Title)

	resp = doRequest(t, server, http.MethodPost, "/api/listings", agentToken, map[string]interface{}{
		"unit_id": testUnitID, "title": "Loft", "kind": "lease",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPut, "/api/listings/"+testListingID, agentToken, map[string]interface{}{
		"title": "Loft with view", "price": 130000, "kind": models.ListingKindSale,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Loft with view", updated.Title)
	assert.Equal(t, int64(130000), updated.Price)
	assert.Equal(t, testUnitID, updated.UnitID)

	stored.Status = models.ListingArchived
	resp = doRequest(t, server, http.MethodPut, "/api/listings/"+testListingID, agentToken, map[string]interface{}{"title": "Again"})
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/listings/"+testListingID+"/actions/publish", agentToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "publish", action)

	resp = doRequest(t, server, http.MethodPost, "/api/listings/"+testListingID+"/actions/unpublish", agentToken, nil)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "invalid_transition", decodeError(t, resp).Error.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/listings/"+testListingID+"/actions/promote", agentToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/listings/"+testListingID+"/actions/publish", tenantToken, nil)
	require.Equal(t, http.StatusForbidden, resp.Code)

	assert.Equal(t, []string{"listing.create", "listing.update", "listing.publish"}, auditActions(st))
}

func TestListingSearchFilters(t *testing.T) {
	var got models.ListingFilter
	st := &fakeStore{
		searchListingsFn: func(ctx context.Context, filter models.ListingFilter, page pagination.Params) ([]models.Listing, int, error) {
			got = filter
			assert.Equal(t, "published_at", page.Sort)
			assert.True(t, page.Desc)
			return nil, 0, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodGet, "/api/listings/search?agency_id="+testAgencyID+"&city=Porto&kind=sale&min_price=100&max_price=500&min_bedrooms=2&q=loft", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	want := models.ListingFilter{
		AgencyID:    testAgencyID,
		City:        "Porto",
		Kind:        models.ListingKindSale,
		MinPrice:    100,
		MaxPrice:    500,
		MinBedrooms: 2,
		Query:       "loft",
	}
	assert.Equal(t, want, got)

	for _, query := range []string{
		"min_price=600&max_price=500",
		"min_price=-1",
		"kind=lease",
		"agency_id=acme",
		"min_bedrooms=two",
		"sort=owner_user_id",
	} {
		resp := doRequest(t, server, http.MethodGet, "/api/listings/search?"+query, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}

func TestLeadStatusTransitions(t *testing.T) {
	var gotStatus string
	st := &fakeStore{
		updateLeadStatusFn: func(ctx context.Context, agencyID, leadID, status string) (models.Lead, error) {
			gotStatus = status
			if status == models.LeadConverted {
				return models.Lead{}, store.ErrInvalidTransition
			}
			return models.Lead{LeadID: leadID, AgencyID: agencyID, Status: status}, nil
		},
	}
	server := newTestServer(st)
	path := "/api/leads/" + testLeadID + "/status"

	resp := doRequest(t, server, http.MethodPost, path, agentToken, map[string]string{"status": " contacted "})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.LeadContacted, gotStatus)
	assert.Equal(t, []string{"lead.contacted"}, auditActions(st))

	resp = doRequest(t, server, http.MethodPost, path, agentToken, map[string]string{"status": models.LeadConverted})
	require.Equal(t, http.StatusConflict, resp.Code)

	resp = doRequest(t, server, http.MethodPost, path, agentToken, map[string]string{"status": "reopened"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "unknown lead status", decodeError(t, resp).Error.Message)

	resp = doRequest(t, server, http.MethodPost, path, maintToken, map[string]string{"status": models.LeadContacted})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCreateLeaseValidation(t *testing.T) {
	var created models.Lease
	st := &fakeStore{
		getUserFn: func(ctx context.Context, agencyID, userID string) (models.User, error) {
			if userID == ownerUserID {
				return models.User{UserID: userID, Role: models.RoleOwner}, nil
			}
			return models.User{UserID: userID, Role: models.RoleTenant}, nil
		},
		createLeaseFn: func(ctx context.Context, lease models.Lease) (models.Lease, error) {
			created = lease
			lease.LeaseID = testLeaseID
			lease.Status = models.LeaseDraft
			return lease, nil
		},
	}
	server := newTestServer(st)
	payload := func(tenant, start, end string) map[string]interface{} {
		return map[string]interface{}{
			"unit_id": testUnitID, "tenant_user_id": tenant, "start_date": start, "end_date": end, "monthly_rent": 90000, "deposit": 180000,
		}
	}

	resp := doRequest(t, server, http.MethodPost, "/api/leases", agentToken, payload(tenantUserID, "2026-02-01", "2026-01-01"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/leases", agentToken, payload(tenantUserID, "02/01/2026", "2027-01-31"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/leases", agentToken, payload(ownerUserID, "2026-02-01", "2027-01-31"))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "tenant_user_id must reference a tenant", decodeError(t, resp).Error.Message)

	resp = doRequest(t, server, http.MethodPost, "/api/leases", agentToken, payload(tenantUserID, "2026-02-01", "2027-01-31"))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, agentUserID, created.AgentUserID)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), created.StartDate)
	assert.Equal(t, int64(90000), created.MonthlyRent)
}

func TestLeaseActions(t *testing.T) {
	var got store.LeaseActionInput
	st := &fakeStore{
		leaseActionFn: func(ctx context.Context, input store.LeaseActionInput) (models.Lease, error) {
			got = input
			if input.Action == "activate" {
				return models.Lease{}, store.ErrUnitUnavailable
			}
			return models.Lease{LeaseID: input.LeaseID, Status: models.LeasePendingSignature}, nil
		},
	}
	server := newTestServer(st)
	base := "/api/leases/" + testLeaseID + "/actions/"

	resp := doRequest(t, server, http.MethodPost, base+"submit", agentToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, store.LeaseActionInput{
		AgencyID:    testAgencyID,
		LeaseID:     testLeaseID,
		Action:      "submit",
		ActorUserID: agentUserID,
		OccurredAt:  fixedNow,
	}, got)

	resp = doRequest(t, server, http.MethodPost, base+"activate", agentToken, nil)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "unit_unavailable", decodeError(t, resp).Error.Code)

	resp = doRequest(t, server, http.MethodPost, base+"renew", agentToken, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, base+"end", tenantToken, nil)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, server, http.MethodGet, base+"end", agentToken, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)

	assert.Equal(t, []string{"lease.submit"}, auditActions(st))
}

func TestGetLeaseHiddenFromOtherTenant(t *testing.T) {
	st := &fakeStore{
		getLeaseFn: func(ctx context.Context, agencyID, leaseID string) (models.Lease, error) {
			return models.Lease{LeaseID: leaseID, AgencyID: agencyID, TenantUserID: "someone-else"}, nil
		},
	}
	resp := doRequest(t, newTestServer(st), http.MethodGet, "/api/leases/"+testLeaseID, tenantToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doRequest(t, newTestServer(st), http.MethodGet, "/api/leases/"+testLeaseID, agentToken, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListNotificationsForCaller(t *testing.T) {
	var gotUser string
	var gotUnread bool
	st := &fakeStore{
		listNotificationsFn: func(ctx context.Context, agencyID, userID string, unreadOnly bool, page pagination.Params) ([]models.Notification, int, error) {
			gotUser, gotUnread = userID, unreadOnly
			return []models.Notification{{NotificationID: testNotificationID, UserID: userID}}, 1, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodGet, "/api/notifications?unread=true", tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, tenantUserID, gotUser)
	assert.True(t, gotUnread)
	var body pagination.Result[models.Notification]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)

	resp = doRequest(t, server, http.MethodGet, "/api/notifications?unread=maybe", tenantToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMarkNotificationsRead(t *testing.T) {
	st := &fakeStore{
		markReadFn: func(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error) {
			if userID != tenantUserID {
				return models.Notification{}, store.ErrNotificationNotFound
			}
			readAt := fixedNow
			return models.Notification{NotificationID: notificationID, UserID: userID, ReadAt: &readAt}, nil
		},
		markAllReadFn: func(ctx context.Context, agencyID, userID string) (int, error) {
			return 4, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodPost, "/api/notifications/"+testNotificationID+"/read", tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var read models.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&read))
	require.NotNil(t, read.ReadAt)

	resp = doRequest(t, server, http.MethodPost, "/api/notifications/"+testNotificationID+"/read", agentToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "notification_not_found", decodeError(t, resp).Error.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/notifications/latest/read", tenantToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPost, "/api/notifications/read-all", tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var updated map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, 4, updated["updated"])
}

func TestNotificationPreferences(t *testing.T) {
	var saved []models.NotificationPreference
	st := &fakeStore{
		setPreferencesFn: func(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
			saved = prefs
			return nil
		},
		getPreferencesFn: func(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
			return saved, nil
		},
	}
	server := newTestServer(st)
	path := "/api/notifications/preferences"

	resp := doRequest(t, server, http.MethodPut, path, tenantToken, map[string]interface{}{
		"preferences": []map[string]interface{}{{"kind": "billing", "in_app": true}},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPut, path, tenantToken, map[string]interface{}{
		"preferences": []map[string]interface{}{
			{"kind": models.NotificationKindTicket, "in_app": true},
			{"kind": models.NotificationKindTicket, "email": true},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, saved)

	resp = doRequest(t, server, http.MethodPut, path, tenantToken, map[string]interface{}{
		"preferences": []map[string]interface{}{
			{"kind": models.NotificationKindTicket, "in_app": true, "email": false},
			{"kind": models.NotificationKindLease, "in_app": false, "email": true},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	want := []models.NotificationPreference{
		{UserID: tenantUserID, Kind: models.NotificationKindTicket, InApp: true},
		{UserID: tenantUserID, Kind: models.NotificationKindLease, Email: true},
	}
	assert.Equal(t, want, saved)

	resp = doRequest(t, server, http.MethodGet, path, tenantToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Preferences []models.NotificationPreference `json:"preferences"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, want, body.Preferences)
}

func TestUpdateAgencyCommission(t *testing.T) {
	var saved models.CommissionConfig
	st := &fakeStore{
		getAgencyFn: func(ctx context.Context, agencyID string) (models.Agency, error) {
			return models.Agency{AgencyID: agencyID, Active: true}, nil
		},
		upsertCommissionFn: func(ctx context.Context, cfg models.CommissionConfig) (models.CommissionConfig, error) {
			saved = cfg
			return cfg, nil
		},
	}
	server := newTestServer(st)
	path := "/api/agencies/" + testAgencyID + "/commission"

	for _, payload := range []map[string]int{
		{"listing_commission_bp": 10001, "agent_split_bp": 4000},
		{"listing_commission_bp": 800, "agent_split_bp": -1},
		{"listing_commission_bp": 800, "agent_split_bp": 4000, "admin_fee_bp": 20000},
	} {
		resp := doRequest(t, server, http.MethodPut, path, adminToken, payload)
		require.Equal(t, http.StatusBadRequest, resp.Code, payload)
		assert.Contains(t, decodeError(t, resp).Error.Message, "invalid commission config")
	}
	assert.Zero(t, saved)

	resp := doRequest(t, server, http.MethodPut, path, adminToken, map[string]int{
		"listing_commission_bp": 800, "agent_split_bp": 4000, "admin_fee_bp": 300,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.CommissionConfig{AgencyID: testAgencyID, ListingCommissionBP: 800, AgentSplitBP: 4000, AdminFeeBP: 300}, saved)
	assert.Equal(t, []string{"commission.update"}, auditActions(st))

	resp = doRequest(t, server, http.MethodPut, path, agentToken, map[string]int{"listing_commission_bp": 800})
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestAgencyMailboxSettings(t *testing.T) {
	sealer, err := mailbox.NewSealer("test secret")
	require.NoError(t, err)

	var stored *models.MailboxSettings
	var sealed []byte
	st := &fakeStore{
		getMailboxFn: func(ctx context.Context, agencyID string) (models.MailboxSettings, error) {
			if stored == nil {
				return models.MailboxSettings{}, store.ErrMailboxNotFound
			}
			return *stored, nil
		},
		upsertMailboxFn: func(ctx context.Context, settings models.MailboxSettings, sealedPassword []byte) (models.MailboxSettings, error) {
			if sealedPassword != nil {
				sealed = sealedPassword
			}
			settings.PasswordSet = sealed != nil
			stored = &settings
			return settings, nil
		},
	}
	server := AuthMiddleware(st, NewHandler(st, Options{MailboxSealer: sealer, Now: func() time.Time { return fixedNow }}).Routes())
	path := "/api/agencies/" + testAgencyID + "/mailbox"

	resp := doRequest(t, server, http.MethodGet, path, adminToken, nil)
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "mailbox_not_found", decodeError(t, resp).Error.Code)

	resp = doRequest(t, server, http.MethodPut, path, adminToken, map[string]interface{}{
		"enabled": true, "protocol": "imap", "host": "mail.harbor.example", "username": "inbox",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decodeError(t, resp).Error.Message, "needs a password")

	resp = doRequest(t, server, http.MethodPut, path, adminToken, map[string]interface{}{
		"enabled": true, "protocol": "imap", "host": "mail.harbor.example", "username": "inbox", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.NotContains(t, resp.Body.String(), "s3cret-pass")
	var saved models.MailboxSettings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.True(t, saved.PasswordSet)
	assert.Equal(t, 993, saved.Port)
	assert.Equal(t, models.ImportAsLead, saved.ImportAs)
	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", plain)

	first := sealed
	resp = doRequest(t, server, http.MethodPut, path, adminToken, map[string]interface{}{
		"enabled": true, "protocol": "imap", "host": "mail.harbor.example", "username": "inbox", "import_as": "ticket", "poll_interval_minutes": 30,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, first, sealed)
	assert.Equal(t, models.ImportAsTicket, stored.ImportAs)

	resp = doRequest(t, server, http.MethodPut, path, adminToken, map[string]interface{}{
		"protocol": "smtp", "host": "mail.harbor.example", "username": "inbox",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodGet, path, agentToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	assert.Equal(t, []string{"mailbox.update", "mailbox.update"}, auditActions(st))
}

func TestAgencyMailboxWithoutSecret(t *testing.T) {
	st := &fakeStore{
		getMailboxFn: func(ctx context.Context, agencyID string) (models.MailboxSettings, error) {
			return models.MailboxSettings{}, store.ErrMailboxNotFound
		},
	}
	resp := doRequest(t, newTestServer(st), http.MethodPut, "/api/agencies/"+testAgencyID+"/mailbox", adminToken, map[string]interface{}{
		"protocol": "pop3", "host": "pop.harbor.example", "username": "inbox", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "mailbox_secret_missing", decodeError(t, resp).Error.Code)
}

func TestListAudit(t *testing.T) {
	var got store.AuditFilter
	st := &fakeStore{
		listAuditFn: func(ctx context.Context, agencyID string, filter store.AuditFilter, page pagination.Params) ([]models.AuditLog, int, error) {
			assert.Equal(t, testAgencyID, agencyID)
			got = filter
			return []models.AuditLog{{AuditID: "a-1", AgencyID: agencyID, ActionType: filter.ActionType}}, 1, nil
		},
	}
	server := newTestServer(st)

	resp := doRequest(t, server, http.MethodGet, "/api/audit?action_type=lease.activate&actor_user_id="+agentUserID, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, store.AuditFilter{ActionType: "lease.activate", ActorUserID: agentUserID}, got)
	var body pagination.Result[models.AuditLog]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)

	resp = doRequest(t, server, http.MethodGet, "/api/audit?actor_user_id=bob", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/audit", agentToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}
