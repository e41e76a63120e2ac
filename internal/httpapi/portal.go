package httpapi

import (
	"context"
	"net/http"

	"rentdesk/internal/models"
	"rentdesk/internal/store"

	"golang.org/x/sync/errgroup"
)

type portalSummary struct {
	Role                string `json:"role"`
	OpenTickets         *int   `json:"open_tickets,omitempty"`
	ActiveLeases        *int   `json:"active_leases,omitempty"`
	UnreadNotifications *int   `json:"unread_notifications,omitempty"`
	PendingQuotations   *int   `json:"pending_quotations,omitempty"`
	PublishedListings   *int   `json:"published_listings,omitempty"`
}

type summaryCount struct {
	target **int
	count  func(ctx context.Context, scope store.Scope) (int, error)
}

func (h *Handler) handlePortalSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	summary := portalSummary{Role: session.Role}
	counts := []summaryCount{
		{&summary.OpenTickets, h.store.CountOpenTickets},
		{&summary.UnreadNotifications, h.store.CountUnreadNotifications},
	}
	switch session.Role {
	case models.RolePlatformAdmin, models.RoleAgencyAdmin, models.RoleAgent:
		counts = append(counts,
			summaryCount{&summary.ActiveLeases, h.store.CountActiveLeases},
			summaryCount{&summary.PendingQuotations, h.store.CountPendingQuotations},
			summaryCount{&summary.PublishedListings, h.store.CountPublishedListings},
		)
	case models.RoleOwner:
		counts = append(counts,
			summaryCount{&summary.ActiveLeases, h.store.CountActiveLeases},
			summaryCount{&summary.PublishedListings, h.store.CountPublishedListings},
		)
	case models.RoleTenant:
		counts = append(counts, summaryCount{&summary.ActiveLeases, h.store.CountActiveLeases})
	}

	scope := scopeFor(session)
	group, ctx := errgroup.WithContext(r.Context())
	for _, c := range counts {
		value := new(int)
		*c.target = value
		count := c.count
		group.Go(func() error {
			n, err := count(ctx, scope)
			if err != nil {
				return err
			}
			*value = n
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
