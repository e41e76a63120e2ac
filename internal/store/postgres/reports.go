package postgres

import (
	"context"
	"database/sql"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/store"
)

// ListCommissionEntries returns entries earned in [from, to].
func (s *Store) ListCommissionEntries(ctx context.Context, agencyID string, from, to time.Time) ([]models.CommissionEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, agency_id, lease_id, agent_user_id, gross, agent_share, agency_share, earned_on, created_at
		FROM commission_entries
		WHERE agency_id = $1 AND earned_on BETWEEN $2 AND $3
		ORDER BY earned_on ASC, entry_id ASC
	`, agencyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CommissionEntry
	for rows.Next() {
		var entry models.CommissionEntry
		var agentNull sql.NullString
		if err := rows.Scan(&entry.EntryID, &entry.AgencyID, &entry.LeaseID, &agentNull, &entry.Gross, &entry.AgentShare, &entry.AgencyShare, &entry.EarnedOn, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.AgentUserID = nullString(agentNull)
		entry.EarnedOn = entry.EarnedOn.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListMaintenanceCosts returns closed tickets that carried a cost, by close date.
func (s *Store) ListMaintenanceCosts(ctx context.Context, agencyID string, from, to time.Time) ([]models.MaintenanceCost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, unit_id, kind, cost, (closed_at AT TIME ZONE 'UTC')::date
		FROM tickets
		WHERE agency_id = $1 AND status = 'closed' AND cost > 0
			AND (closed_at AT TIME ZONE 'UTC')::date BETWEEN $2 AND $3
		ORDER BY closed_at ASC, ticket_id ASC
	`, agencyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var costs []models.MaintenanceCost
	for rows.Next() {
		var cost models.MaintenanceCost
		if err := rows.Scan(&cost.TicketID, &cost.UnitID, &cost.Kind, &cost.Cost, &cost.ClosedOn); err != nil {
			return nil, err
		}
		cost.ClosedOn = cost.ClosedOn.UTC()
		costs = append(costs, cost)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return costs, nil
}

func (s *Store) CountOpenTickets(ctx context.Context, scope store.Scope) (int, error) {
	var where whereBuilder
	where.add("t.agency_id = $%d", scope.AgencyID)
	where.raw("t.status IN ('open', 'in_progress', 'on_hold')")
	switch scope.Role {
	case models.RoleTenant:
		where.add("t.reporter_user_id = $%d", scope.UserID)
	case models.RoleMaintenance:
		where.add("t.assignee_user_id = $%d", scope.UserID)
	case models.RoleOwner:
		where.add("p.owner_user_id = $%d", scope.UserID)
	}
	return countRows(ctx, s.pool, "tickets t JOIN units u ON u.unit_id = t.unit_id JOIN properties p ON p.property_id = u.property_id", where)
}

func (s *Store) CountActiveLeases(ctx context.Context, scope store.Scope) (int, error) {
	var where whereBuilder
	where.add("l.agency_id = $%d", scope.AgencyID)
	where.add("l.status = $%d", models.LeaseActive)
	switch scope.Role {
	case models.RoleTenant:
		where.add("l.tenant_user_id = $%d", scope.UserID)
	case models.RoleAgent:
		where.add("l.agent_user_id = $%d", scope.UserID)
	case models.RoleOwner:
		where.add("p.owner_user_id = $%d", scope.UserID)
	}
	return countRows(ctx, s.pool, "leases l JOIN units u ON u.unit_id = l.unit_id JOIN properties p ON p.property_id = u.property_id", where)
}

func (s *Store) CountUnreadNotifications(ctx context.Context, scope store.Scope) (int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", scope.AgencyID)
	where.add("user_id = $%d", scope.UserID)
	where.raw("read_at IS NULL")
	return countRows(ctx, s.pool, "notifications", where)
}

func (s *Store) CountPendingQuotations(ctx context.Context, scope store.Scope) (int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", scope.AgencyID)
	where.add("status = $%d", models.QuotationSent)
	if scope.Role == models.RoleAgent {
		where.add("created_by = $%d", scope.UserID)
	}
	return countRows(ctx, s.pool, "quotations", where)
}

func (s *Store) CountPublishedListings(ctx context.Context, scope store.Scope) (int, error) {
	var where whereBuilder
	where.add("l.agency_id = $%d", scope.AgencyID)
	where.add("l.status = $%d", models.ListingPublished)
	if scope.Role == models.RoleOwner {
		where.add("p.owner_user_id = $%d", scope.UserID)
	}
	return countRows(ctx, s.pool, "listings l JOIN units u ON u.unit_id = l.unit_id JOIN properties p ON p.property_id = u.property_id", where)
}
