package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rentdesk/internal/commission"
	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var leaseSortColumns = map[string]string{
	"created_at":   "created_at",
	"start_date":   "start_date",
	"end_date":     "end_date",
	"monthly_rent": "monthly_rent",
	"status":       "status",
}

const leaseColumns = "lease_id, agency_id, unit_id, tenant_user_id, agent_user_id, start_date, end_date, monthly_rent, deposit, status, activated_at, ended_at, created_at"

func (s *Store) CreateLease(ctx context.Context, lease models.Lease) (models.Lease, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Lease{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	unit, err := getUnit(ctx, tx, lease.AgencyID, lease.UnitID)
	if err != nil {
		return models.Lease{}, err
	}
	if err = requireAgencyUser(ctx, tx, lease.AgencyID, lease.TenantUserID); err != nil {
		return models.Lease{}, err
	}
	if lease.AgentUserID != "" {
		if err = requireAgencyUser(ctx, tx, lease.AgencyID, lease.AgentUserID); err != nil {
			return models.Lease{}, err
		}
	}
	if lease.MonthlyRent == 0 {
		lease.MonthlyRent = unit.MonthlyRent
	}

	lease.LeaseID = uuid.NewString()
	lease.Status = models.LeaseDraft
	lease.CreatedAt = s.now()
	_, err = tx.Exec(ctx, `
		INSERT INTO leases (lease_id, agency_id, unit_id, tenant_user_id, agent_user_id, start_date, end_date, monthly_rent, deposit, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, lease.LeaseID, lease.AgencyID, lease.UnitID, lease.TenantUserID, nullIfEmpty(lease.AgentUserID), lease.StartDate, lease.EndDate, lease.MonthlyRent, lease.Deposit, lease.Status, lease.CreatedAt)
	if err != nil {
		return models.Lease{}, err
	}
	if err = insertOutboxEvent(ctx, tx, lease.AgencyID, "lease.created", leaseEventPayload(lease)); err != nil {
		return models.Lease{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Lease{}, err
	}
	return lease, nil
}

func (s *Store) GetLease(ctx context.Context, agencyID, leaseID string) (models.Lease, error) {
	return getLease(ctx, s.pool, agencyID, leaseID, false)
}

func (s *Store) ListLeases(ctx context.Context, agencyID string, filter store.LeaseFilter, page pagination.Params) ([]models.Lease, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if filter.TenantUserID != "" {
		where.add("tenant_user_id = $%d", filter.TenantUserID)
	}
	if filter.AgentUserID != "" {
		where.add("agent_user_id = $%d", filter.AgentUserID)
	}
	if filter.UnitID != "" {
		where.add("unit_id = $%d", filter.UnitID)
	}
	total, err := countRows(ctx, s.pool, "leases", where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+leaseColumns+" FROM leases"+where.sql()+orderClause(page, leaseSortColumns, "lease_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var leases []models.Lease
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, 0, err
		}
		leases = append(leases, lease)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return leases, total, nil
}

// ApplyLeaseAction moves a lease through its workflow. Activation occupies
// the unit and books the commission entry; ending frees the unit.
func (s *Store) ApplyLeaseAction(ctx context.Context, input store.LeaseActionInput) (models.Lease, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Lease{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	lease, err := getLease(ctx, tx, input.AgencyID, input.LeaseID, true)
	if err != nil {
		return models.Lease{}, err
	}
	next, err := store.LeaseTransitions.Next(input.Action, lease.Status)
	if err != nil {
		return models.Lease{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	switch next {
	case models.LeaseActive:
		var unitStatus string
		if err = tx.QueryRow(ctx, `SELECT status FROM units WHERE unit_id = $1 FOR UPDATE`, lease.UnitID).Scan(&unitStatus); err != nil {
			return models.Lease{}, err
		}
		if unitStatus != models.UnitVacant {
			err = store.ErrUnitUnavailable
			return models.Lease{}, err
		}
		if _, err = tx.Exec(ctx, `UPDATE units SET status = $1 WHERE unit_id = $2`, models.UnitOccupied, lease.UnitID); err != nil {
			return models.Lease{}, err
		}
		lease.ActivatedAt = &occurredAt

		cfg, cfgErr := getCommissionConfig(ctx, tx, lease.AgencyID)
		if cfgErr != nil {
			err = cfgErr
			return models.Lease{}, err
		}
		entry, splitErr := commission.ForLease(lease, cfg, occurredAt)
		if splitErr != nil {
			err = splitErr
			return models.Lease{}, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO commission_entries (entry_id, agency_id, lease_id, agent_user_id, gross, agent_share, agency_share, earned_on)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (lease_id) DO NOTHING
		`, uuid.NewString(), entry.AgencyID, entry.LeaseID, nullIfEmpty(entry.AgentUserID), entry.Gross, entry.AgentShare, entry.AgencyShare, entry.EarnedOn)
		if err != nil {
			return models.Lease{}, err
		}
	case models.LeaseEnded:
		if _, err = tx.Exec(ctx, `UPDATE units SET status = $1 WHERE unit_id = $2 AND status = $3`, models.UnitVacant, lease.UnitID, models.UnitOccupied); err != nil {
			return models.Lease{}, err
		}
		lease.EndedAt = &occurredAt
	}

	lease.Status = next
	_, err = tx.Exec(ctx, `
		UPDATE leases SET status = $1, activated_at = $2, ended_at = $3
		WHERE lease_id = $4
	`, lease.Status, lease.ActivatedAt, lease.EndedAt, lease.LeaseID)
	if err != nil {
		return models.Lease{}, err
	}
	if err = insertOutboxEvent(ctx, tx, lease.AgencyID, "lease."+input.Action, leaseEventPayload(lease)); err != nil {
		return models.Lease{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Lease{}, err
	}
	return lease, nil
}

func leaseEventPayload(lease models.Lease) map[string]interface{} {
	return map[string]interface{}{
		"lease_id":       lease.LeaseID,
		"agency_id":      lease.AgencyID,
		"unit_id":        lease.UnitID,
		"tenant_user_id": lease.TenantUserID,
		"agent_user_id":  lease.AgentUserID,
		"status":         lease.Status,
		"monthly_rent":   lease.MonthlyRent,
		"start_date":     lease.StartDate.Format("2006-01-02"),
		"end_date":       lease.EndDate.Format("2006-01-02"),
	}
}

func requireAgencyUser(ctx context.Context, q querier, agencyID, userID string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1 AND agency_id = $2)`, userID, agencyID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrUserNotFound
	}
	return nil
}

func getLease(ctx context.Context, q querier, agencyID, leaseID string, forUpdate bool) (models.Lease, error) {
	query := "SELECT " + leaseColumns + " FROM leases WHERE lease_id = $1 AND agency_id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	lease, err := scanLease(q.QueryRow(ctx, query, leaseID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Lease{}, store.ErrLeaseNotFound
		}
		return models.Lease{}, err
	}
	return lease, nil
}

func scanLease(row pgx.Row) (models.Lease, error) {
	var lease models.Lease
	var agentNull sql.NullString
	var activatedNull, endedNull sql.NullTime
	if err := row.Scan(&lease.LeaseID, &lease.AgencyID, &lease.UnitID, &lease.TenantUserID, &agentNull, &lease.StartDate, &lease.EndDate, &lease.MonthlyRent, &lease.Deposit, &lease.Status, &activatedNull, &endedNull, &lease.CreatedAt); err != nil {
		return models.Lease{}, err
	}
	lease.AgentUserID = nullString(agentNull)
	lease.ActivatedAt = nullTimePtr(activatedNull)
	lease.EndedAt = nullTimePtr(endedNull)
	return lease, nil
}
