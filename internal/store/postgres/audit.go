package postgres

import (
	"context"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
)

var auditSortColumns = map[string]string{
	"created_at":  "created_at",
	"action_type": "action_type",
}

func (s *Store) InsertAudit(ctx context.Context, audit models.AuditLog) error {
	if audit.AuditID == "" {
		audit.AuditID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, agency_id, actor_user_id, action_type, target_type, target_id, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, audit.AuditID, audit.AgencyID, audit.ActorUserID, audit.ActionType, audit.TargetType, audit.TargetID, audit.IP, audit.UserAgent, audit.CreatedAt)
	return err
}

func (s *Store) ListAudit(ctx context.Context, agencyID string, filter store.AuditFilter, page pagination.Params) ([]models.AuditLog, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if filter.ActionType != "" {
		where.add("action_type = $%d", filter.ActionType)
	}
	if filter.ActorUserID != "" {
		where.add("actor_user_id = $%d", filter.ActorUserID)
	}
	total, err := countRows(ctx, s.pool, "audit_logs", where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, agency_id, actor_user_id, action_type, target_type, target_id, ip, user_agent, created_at
		FROM audit_logs`+where.sql()+orderClause(page, auditSortColumns, "audit_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var log models.AuditLog
		if err := rows.Scan(&log.AuditID, &log.AgencyID, &log.ActorUserID, &log.ActionType, &log.TargetType, &log.TargetID, &log.IP, &log.UserAgent, &log.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
