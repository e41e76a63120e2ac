package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentdesk/internal/pagination"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel announces inserted in-app notifications, by id, to API
// processes.
const NotifyChannel = "rentdesk_notifications"

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type whereBuilder struct {
	clauses []string
	args    []interface{}
}

// add appends a clause; format holds one %d for the placeholder number.
func (w *whereBuilder) add(format string, value interface{}) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func orderClause(params pagination.Params, columns map[string]string, tiebreak string) string {
	column, ok := columns[params.Sort]
	if !ok {
		column = tiebreak
	}
	direction := "ASC"
	if params.Desc {
		direction = "DESC"
	}
	if column == tiebreak {
		return fmt.Sprintf(" ORDER BY %s %s", column, direction)
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, %s ASC", column, direction, tiebreak)
}

func pageClause(params pagination.Params) string {
	return fmt.Sprintf(" LIMIT %d OFFSET %d", params.Limit(), params.Offset())
}

func countRows(ctx context.Context, q querier, from string, where whereBuilder) (int, error) {
	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(1) FROM "+from+where.sql(), where.args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func insertOutboxEvent(ctx context.Context, q querier, agencyID, eventType string, payload interface{}) error {
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, agency_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), agencyID, eventType, payloadJSON, time.Now().UTC())
	return err
}

func jsonBytes(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullString(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
