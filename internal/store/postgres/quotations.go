package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/quotation"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var quotationSortColumns = map[string]string{
	"created_at": "created_at",
	"number":     "number",
	"total":      "total",
	"status":     "status",
}

const quotationColumns = "quotation_id, agency_id, number, client_name, client_email, admin_fee_bp, items_json, subtotal, admin_fee, total, status, public_token, valid_until, created_by, created_at, sent_at, responded_at"

func (s *Store) CreateQuotation(ctx context.Context, q models.Quotation) (models.Quotation, error) {
	if err := quotation.Apply(&q); err != nil {
		return models.Quotation{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Quotation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.now()
	var seq int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO quotation_counters (agency_id, year, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (agency_id, year) DO UPDATE SET last_seq = quotation_counters.last_seq + 1
		RETURNING last_seq
	`, q.AgencyID, now.Year()).Scan(&seq); err != nil {
		if isForeignKeyViolation(err) {
			err = store.ErrAgencyNotFound
		}
		return models.Quotation{}, err
	}

	q.QuotationID = uuid.NewString()
	q.Number = quotation.Number(now.Year(), seq)
	q.Status = models.QuotationDraft
	q.PublicToken = uuid.NewString()
	q.CreatedAt = now
	q.SentAt = nil
	q.RespondedAt = nil

	itemsJSON, err := jsonBytes(q.Items)
	if err != nil {
		return models.Quotation{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO quotations (quotation_id, agency_id, number, client_name, client_email, admin_fee_bp, items_json, subtotal, admin_fee, total, status, public_token, valid_until, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, q.QuotationID, q.AgencyID, q.Number, q.ClientName, q.ClientEmail, q.AdminFeeBP, itemsJSON, q.Subtotal, q.AdminFee, q.Total, q.Status, q.PublicToken, q.ValidUntil, q.CreatedBy, q.CreatedAt)
	if err != nil {
		return models.Quotation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Quotation{}, err
	}
	return q, nil
}

func (s *Store) GetQuotation(ctx context.Context, agencyID, quotationID string) (models.Quotation, error) {
	return getQuotation(ctx, s.pool, "quotation_id = $1 AND agency_id = $2", false, quotationID, agencyID)
}

func (s *Store) GetQuotationByToken(ctx context.Context, token string) (models.Quotation, error) {
	return getQuotation(ctx, s.pool, "public_token = $1", false, token)
}

func (s *Store) UpdateQuotationDraft(ctx context.Context, q models.Quotation) (models.Quotation, error) {
	if err := quotation.Apply(&q); err != nil {
		return models.Quotation{}, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Quotation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := getQuotation(ctx, tx, "quotation_id = $1 AND agency_id = $2", true, q.QuotationID, q.AgencyID)
	if err != nil {
		return models.Quotation{}, err
	}
	if current.Status != models.QuotationDraft {
		err = store.ErrInvalidTransition
		return models.Quotation{}, err
	}
	itemsJSON, err := jsonBytes(q.Items)
	if err != nil {
		return models.Quotation{}, err
	}
	if _, err = tx.Exec(ctx, `
		UPDATE quotations
		SET client_name = $1, client_email = $2, admin_fee_bp = $3, items_json = $4, subtotal = $5, admin_fee = $6, total = $7, valid_until = $8
		WHERE quotation_id = $9
	`, q.ClientName, q.ClientEmail, q.AdminFeeBP, itemsJSON, q.Subtotal, q.AdminFee, q.Total, q.ValidUntil, q.QuotationID); err != nil {
		return models.Quotation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Quotation{}, err
	}

	current.ClientName = q.ClientName
	current.ClientEmail = q.ClientEmail
	current.AdminFeeBP = q.AdminFeeBP
	current.Items = q.Items
	current.Subtotal = q.Subtotal
	current.AdminFee = q.AdminFee
	current.Total = q.Total
	current.ValidUntil = q.ValidUntil
	return current, nil
}

func (s *Store) ListQuotations(ctx context.Context, agencyID, status string, page pagination.Params) ([]models.Quotation, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if status != "" {
		where.add("status = $%d", status)
	}
	total, err := countRows(ctx, s.pool, "quotations", where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+quotationColumns+" FROM quotations"+where.sql()+orderClause(page, quotationSortColumns, "quotation_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotations []models.Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		quotations = append(quotations, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return quotations, total, nil
}

func (s *Store) ApplyQuotationAction(ctx context.Context, input store.QuotationActionInput) (models.Quotation, error) {
	return s.transitionQuotation(ctx, "quotation_id = $1 AND agency_id = $2", input.Action, input.ActorUserID, input.OccurredAt, input.QuotationID, input.AgencyID)
}

// RespondQuotation records the client's answer through the public token.
func (s *Store) RespondQuotation(ctx context.Context, token, action string) (models.Quotation, error) {
	if action != "accept" && action != "reject" {
		return models.Quotation{}, store.ErrInvalidTransition
	}
	return s.transitionQuotation(ctx, "public_token = $1", action, "", time.Time{}, token)
}

func (s *Store) transitionQuotation(ctx context.Context, where, action, actorUserID string, occurredAt time.Time, args ...interface{}) (models.Quotation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Quotation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	q, err := getQuotation(ctx, tx, where, true, args...)
	if err != nil {
		return models.Quotation{}, err
	}
	next, err := store.QuotationTransitions.Next(action, q.Status)
	if err != nil {
		return models.Quotation{}, err
	}
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	if (action == "accept" || action == "reject") && q.ValidUntil != nil && occurredAt.After(q.ValidUntil.AddDate(0, 0, 1)) {
		err = fmt.Errorf("%w: quotation expired", store.ErrInvalidTransition)
		return models.Quotation{}, err
	}

	q.Status = next
	switch next {
	case models.QuotationSent:
		q.SentAt = &occurredAt
	case models.QuotationAccepted, models.QuotationRejected:
		q.RespondedAt = &occurredAt
	}
	if _, err = tx.Exec(ctx, `
		UPDATE quotations SET status = $1, sent_at = $2, responded_at = $3
		WHERE quotation_id = $4
	`, q.Status, q.SentAt, q.RespondedAt, q.QuotationID); err != nil {
		return models.Quotation{}, err
	}

	payload := map[string]interface{}{
		"quotation_id": q.QuotationID,
		"agency_id":    q.AgencyID,
		"number":       q.Number,
		"client_name":  q.ClientName,
		"client_email": q.ClientEmail,
		"total":        q.Total,
		"status":       q.Status,
		"created_by":   q.CreatedBy,
	}
	if next == models.QuotationSent {
		payload["public_token"] = q.PublicToken
	}
	if actorUserID != "" {
		payload["actor_user_id"] = actorUserID
	}
	if err = insertOutboxEvent(ctx, tx, q.AgencyID, "quotation."+next, payload); err != nil {
		return models.Quotation{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Quotation{}, err
	}
	return q, nil
}

func getQuotation(ctx context.Context, q querier, where string, forUpdate bool, args ...interface{}) (models.Quotation, error) {
	query := "SELECT " + quotationColumns + " FROM quotations WHERE " + where
	if forUpdate {
		query += " FOR UPDATE"
	}
	quote, err := scanQuotation(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Quotation{}, store.ErrQuotationNotFound
		}
		return models.Quotation{}, err
	}
	return quote, nil
}

func scanQuotation(row pgx.Row) (models.Quotation, error) {
	var q models.Quotation
	var itemsJSON []byte
	var validNull, sentNull, respondedNull sql.NullTime
	if err := row.Scan(&q.QuotationID, &q.AgencyID, &q.Number, &q.ClientName, &q.ClientEmail, &q.AdminFeeBP, &itemsJSON, &q.Subtotal, &q.AdminFee, &q.Total, &q.Status, &q.PublicToken, &validNull, &q.CreatedBy, &q.CreatedAt, &sentNull, &respondedNull); err != nil {
		return models.Quotation{}, err
	}
	if err := json.Unmarshal(itemsJSON, &q.Items); err != nil {
		return models.Quotation{}, err
	}
	q.ValidUntil = nullTimePtr(validNull)
	q.SentAt = nullTimePtr(sentNull)
	q.RespondedAt = nullTimePtr(respondedNull)
	return q, nil
}
