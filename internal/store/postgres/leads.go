package postgres

import (
	"context"
	"database/sql"
	"errors"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var leadSortColumns = map[string]string{
	"created_at": "created_at",
	"status":     "status",
	"name":       "name",
}

const leadColumns = "lead_id, agency_id, listing_id, name, email, phone, message, status, created_at, updated_at"

func (s *Store) CreateLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Lead{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var active bool
	if err = tx.QueryRow(ctx, `SELECT active FROM agencies WHERE agency_id = $1`, lead.AgencyID).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrAgencyNotFound
		}
		return models.Lead{}, err
	}
	if !active {
		err = store.ErrAgencyNotFound
		return models.Lead{}, err
	}
	if lead.ListingID != "" {
		if _, err = getListing(ctx, tx, lead.AgencyID, lead.ListingID, false); err != nil {
			return models.Lead{}, err
		}
	}

	lead.LeadID = uuid.NewString()
	lead.Status = models.LeadNew
	lead.CreatedAt = s.now()
	lead.UpdatedAt = lead.CreatedAt
	_, err = tx.Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, lead.LeadID, lead.AgencyID, nullIfEmpty(lead.ListingID), lead.Name, lead.Email, lead.Phone, lead.Message, lead.Status, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return models.Lead{}, err
	}

	if err = insertOutboxEvent(ctx, tx, lead.AgencyID, "lead.created", map[string]interface{}{
		"lead_id":    lead.LeadID,
		"agency_id":  lead.AgencyID,
		"listing_id": lead.ListingID,
		"name":       lead.Name,
		"email":      lead.Email,
		"message":    lead.Message,
	}); err != nil {
		return models.Lead{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Lead{}, err
	}
	return lead, nil
}

func (s *Store) ListLeads(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Lead, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if status != "" {
		where.add("status = $%d", status)
	}
	total, err := countRows(ctx, s.pool, "leads", where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+leadColumns+" FROM leads"+where.sql()+orderClause(page, leadSortColumns, "lead_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (s *Store) UpdateLeadStatus(ctx context.Context, agencyID, leadID, status string) (models.Lead, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Lead{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanLead(tx.QueryRow(ctx, "SELECT "+leadColumns+" FROM leads WHERE lead_id = $1 AND agency_id = $2 FOR UPDATE", leadID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrLeadNotFound
		}
		return models.Lead{}, err
	}
	next, err := store.LeadTransitions.Next(status, current.Status)
	if err != nil {
		return models.Lead{}, err
	}

	updated, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads SET status = $1, updated_at = $2
		WHERE lead_id = $3
		RETURNING `+leadColumns, next, s.now(), leadID))
	if err != nil {
		return models.Lead{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Lead{}, err
	}
	return updated, nil
}

func scanLead(row pgx.Row) (models.Lead, error) {
	var lead models.Lead
	var listingNull sql.NullString
	if err := row.Scan(&lead.LeadID, &lead.AgencyID, &listingNull, &lead.Name, &lead.Email, &lead.Phone, &lead.Message, &lead.Status, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return models.Lead{}, err
	}
	lead.ListingID = nullString(listingNull)
	return lead, nil
}
