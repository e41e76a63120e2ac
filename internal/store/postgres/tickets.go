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
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ticketSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"priority":   "CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
	"status":     "status",
}

const ticketColumns = "ticket_id, agency_id, unit_id, reporter_user_id, assignee_user_id, kind, priority, title, description, status, cost, request_id, created_at, updated_at, started_at, resolved_at, closed_at"

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if existing.AgencyID != input.AgencyID {
			err = store.ErrConflict
			return models.Ticket{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	if _, err = getUnit(ctx, tx, input.AgencyID, input.UnitID); err != nil {
		return models.Ticket{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	ticket := models.Ticket{
		TicketID:       uuid.NewString(),
		AgencyID:       input.AgencyID,
		UnitID:         input.UnitID,
		ReporterUserID: input.ReporterUserID,
		Kind:           input.Kind,
		Priority:       input.Priority,
		Title:          input.Title,
		Description:    input.Description,
		Status:         models.TicketOpen,
		RequestID:      input.RequestID,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO tickets (
			ticket_id, agency_id, unit_id, reporter_user_id, kind, priority, title, description,
			status, cost, request_id, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11,$11)
		ON CONFLICT (request_id) DO NOTHING
	`, ticket.TicketID, ticket.AgencyID, ticket.UnitID, ticket.ReporterUserID, ticket.Kind, ticket.Priority, ticket.Title, ticket.Description, ticket.Status, ticket.RequestID, ticket.CreatedAt)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrConflict
		return models.Ticket{}, false, err
	}

	if err = recordTicketEvent(ctx, tx, ticket, "ticket.created", input.ReporterUserID, ""); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) GetTicket(ctx context.Context, agencyID, ticketID string) (models.Ticket, error) {
	return getTicketByID(ctx, s.pool, agencyID, ticketID, false)
}

func (s *Store) ListTickets(ctx context.Context, agencyID string, filter models.TicketFilter, page pagination.Params) ([]models.Ticket, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if filter.UnitID != "" {
		where.add("unit_id = $%d", filter.UnitID)
	}
	if filter.AssigneeUserID != "" {
		where.add("assignee_user_id = $%d", filter.AssigneeUserID)
	}
	if filter.ReporterUserID != "" {
		where.add("reporter_user_id = $%d", filter.ReporterUserID)
	}
	if filter.OwnerUserID != "" {
		where.add("(reporter_user_id = $%[1]d OR unit_id IN (SELECT u.unit_id FROM units u JOIN properties p ON p.property_id = u.property_id WHERE p.owner_user_id = $%[1]d))", filter.OwnerUserID)
	}
	total, err := countRows(ctx, s.pool, "tickets", where)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, "SELECT "+ticketColumns+" FROM tickets"+where.sql()+orderClause(page, ticketSortColumns, "ticket_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// ApplyTicketAction performs one workflow action. A replayed request_id
// returns the ticket in its current state with applied=false.
func (s *Store) ApplyTicketAction(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	toStatus, ok := store.TicketTransitions.Target(input.Action)
	if !ok {
		return models.Ticket{}, false, store.ErrInvalidTransition
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findActionRequest(ctx, tx, input.AgencyID, input.TicketID, input.Action, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	ticket, err := getTicketByID(ctx, tx, input.AgencyID, input.TicketID, true)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if input.Authorize != nil {
		if err = input.Authorize(ticket); err != nil {
			return models.Ticket{}, false, err
		}
	}
	if !store.TicketTransitions.Allowed(input.Action, ticket.Status) {
		err = store.ErrInvalidTransition
		return models.Ticket{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}

	ticket.Status = toStatus
	ticket.UpdatedAt = occurredAt
	switch input.Action {
	case "start":
		if ticket.StartedAt == nil {
			ticket.StartedAt = &occurredAt
		}
	case "resolve":
		ticket.ResolvedAt = &occurredAt
	case "reopen":
		ticket.ResolvedAt = nil
	case "close":
		ticket.ClosedAt = &occurredAt
	}
	if input.Cost != nil {
		ticket.Cost = *input.Cost
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets
		SET status = $1, updated_at = $2, started_at = $3, resolved_at = $4, closed_at = $5, cost = $6, stale_notified_at = NULL
		WHERE ticket_id = $7 AND agency_id = $8
	`, ticket.Status, ticket.UpdatedAt, ticket.StartedAt, ticket.ResolvedAt, ticket.ClosedAt, ticket.Cost, ticket.TicketID, ticket.AgencyID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertActionRequest(ctx, tx, input.Action, input.RequestID, input.AgencyID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if err = recordTicketEvent(ctx, tx, ticket, "ticket."+input.Action, input.ActorUserID, input.Note); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) AssignTicket(ctx context.Context, input store.AssignTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ticket, err := getTicketByID(ctx, tx, input.AgencyID, input.TicketID, true)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.Status == models.TicketClosed {
		err = store.ErrInvalidTransition
		return models.Ticket{}, err
	}

	var role string
	if err = tx.QueryRow(ctx, `SELECT role FROM users WHERE user_id = $1 AND agency_id = $2 AND active = TRUE`, input.AssigneeUserID, input.AgencyID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrUserNotFound
		}
		return models.Ticket{}, err
	}
	switch role {
	case models.RoleMaintenance, models.RoleAgent, models.RoleAgencyAdmin:
	default:
		err = fmt.Errorf("%w: %s cannot be assigned tickets", store.ErrConflict, role)
		return models.Ticket{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	assignee := input.AssigneeUserID
	ticket.AssigneeUserID = &assignee
	ticket.UpdatedAt = occurredAt
	if _, err = tx.Exec(ctx, `
		UPDATE tickets SET assignee_user_id = $1, updated_at = $2
		WHERE ticket_id = $3
	`, assignee, occurredAt, ticket.TicketID); err != nil {
		return models.Ticket{}, err
	}
	if err = recordTicketEvent(ctx, tx, ticket, "ticket.assigned", input.ActorUserID, ""); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) AddTicketComment(ctx context.Context, agencyID string, comment models.TicketComment) (models.TicketComment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TicketComment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ticket, err := getTicketByID(ctx, tx, agencyID, comment.TicketID, false)
	if err != nil {
		return models.TicketComment{}, err
	}

	comment.CommentID = uuid.NewString()
	comment.CreatedAt = s.now()
	if _, err = tx.Exec(ctx, `
		INSERT INTO ticket_comments (comment_id, ticket_id, author_user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.CommentID, comment.TicketID, comment.AuthorUserID, comment.Body, comment.CreatedAt); err != nil {
		return models.TicketComment{}, err
	}

	payload := ticketOutboxPayload(ticket, comment.AuthorUserID, comment.Body)
	if err = insertOutboxEvent(ctx, tx, agencyID, "ticket.commented", payload); err != nil {
		return models.TicketComment{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.TicketComment{}, err
	}
	return comment, nil
}

func (s *Store) ListTicketComments(ctx context.Context, agencyID, ticketID string) ([]models.TicketComment, error) {
	if _, err := getTicketByID(ctx, s.pool, agencyID, ticketID, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT comment_id, ticket_id, author_user_id, body, created_at
		FROM ticket_comments
		WHERE ticket_id = $1
		ORDER BY created_at ASC, comment_id ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.TicketComment
	for rows.Next() {
		var comment models.TicketComment
		if err := rows.Scan(&comment.CommentID, &comment.TicketID, &comment.AuthorUserID, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, agencyID, ticketID string) ([]store.TicketEvent, error) {
	if _, err := getTicketByID(ctx, s.pool, agencyID, ticketID, false); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, actor_user_id, payload, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		var actorNull sql.NullString
		var payload []byte
		if err := rows.Scan(&event.TicketID, &event.TicketSeq, &event.Type, &actorNull, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.ActorUserID = nullString(actorNull)
		event.Payload = json.RawMessage(payload)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// FlagStaleTickets emits one ticket.stale event per open or in-progress
// ticket untouched since olderThan. Any later transition re-arms the flag.
func (s *Store) FlagStaleTickets(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		UPDATE tickets
		SET stale_notified_at = NOW()
		WHERE ticket_id IN (
			SELECT ticket_id FROM tickets
			WHERE status IN ('open', 'in_progress') AND updated_at < $1 AND stale_notified_at IS NULL
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+ticketColumns, olderThan, limit)
	if err != nil {
		return 0, err
	}
	var stale []models.Ticket
	for rows.Next() {
		ticket, scanErr := scanTicket(rows)
		if scanErr != nil {
			rows.Close()
			err = scanErr
			return 0, err
		}
		stale = append(stale, ticket)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, ticket := range stale {
		payload := ticketOutboxPayload(ticket, "", "")
		payload["stale_since"] = ticket.UpdatedAt
		if err = insertOutboxEvent(ctx, tx, ticket.AgencyID, "ticket.stale", payload); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// recordTicketEvent appends to the hash chain and the outbox in the
// caller's transaction.
func recordTicketEvent(ctx context.Context, tx pgx.Tx, ticket models.Ticket, eventType, actorUserID, note string) error {
	payloadJSON, err := jsonBytes(store.NewTicketEventPayload(ticket, note))
	if err != nil {
		return err
	}
	if err := insertTicketEvent(ctx, tx, ticket.TicketID, eventType, actorUserID, payloadJSON); err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, ticket.AgencyID, eventType, ticketOutboxPayload(ticket, actorUserID, note))
}

func ticketOutboxPayload(ticket models.Ticket, actorUserID, note string) map[string]interface{} {
	payload := map[string]interface{}{
		"ticket_id":        ticket.TicketID,
		"agency_id":        ticket.AgencyID,
		"unit_id":          ticket.UnitID,
		"reporter_user_id": ticket.ReporterUserID,
		"kind":             ticket.Kind,
		"priority":         ticket.Priority,
		"title":            ticket.Title,
		"status":           ticket.Status,
		"request_id":       ticket.RequestID,
	}
	if ticket.AssigneeUserID != nil {
		payload["assignee_user_id"] = *ticket.AssigneeUserID
	}
	if actorUserID != "" {
		payload["actor_user_id"] = actorUserID
	}
	if note != "" {
		payload["note"] = note
	}
	return payload
}

func insertTicketEvent(ctx context.Context, tx pgx.Tx, ticketID, eventType, actorUserID string, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ticketID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
	`, ticketID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := nullString(prevHash)
	// Postgres keeps microseconds; hash what will be read back.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeTicketEventHash(prev, ticketID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, actor_user_id, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ticketID, nextSeq, eventType, nullIfEmpty(actorUserID), payload, createdAt, prev, hash)
	return err
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	ticket, err := scanTicket(tx.QueryRow(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE request_id = $1", requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// findActionRequest returns the ticket a request id already acted on. Reusing
// the id for another action or another ticket is a conflict.
func findActionRequest(ctx context.Context, tx pgx.Tx, agencyID, ticketID, action, requestID string) (models.Ticket, bool, error) {
	var storedTicketID sql.NullString
	var storedAction string
	row := tx.QueryRow(ctx, `
		SELECT ticket_id, action
		FROM ticket_action_requests
		WHERE request_id = $1 AND agency_id = $2
	`, requestID, agencyID)
	if err := row.Scan(&storedTicketID, &storedAction); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	if storedAction != action || !storedTicketID.Valid || storedTicketID.String != ticketID {
		return models.Ticket{}, false, store.ErrConflict
	}
	ticket, err := getTicketByID(ctx, tx, agencyID, ticketID, false)
	if err != nil {
		return models.Ticket{}, false, err
	}
	ticket.RequestID = requestID
	return ticket, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, agencyID, ticketID string) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO ticket_action_requests (request_id, action, agency_id, ticket_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, agencyID, nullIfEmpty(ticketID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func getTicketByID(ctx context.Context, q querier, agencyID, ticketID string, forUpdate bool) (models.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE ticket_id = $1 AND agency_id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	ticket, err := scanTicket(q.QueryRow(ctx, query, ticketID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var assigneeNull sql.NullString
	var startedNull, resolvedNull, closedNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &ticket.AgencyID, &ticket.UnitID, &ticket.ReporterUserID, &assigneeNull, &ticket.Kind, &ticket.Priority, &ticket.Title, &ticket.Description, &ticket.Status, &ticket.Cost, &ticket.RequestID, &ticket.CreatedAt, &ticket.UpdatedAt, &startedNull, &resolvedNull, &closedNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.AssigneeUserID = nullStringPtr(assigneeNull)
	ticket.StartedAt = nullTimePtr(startedNull)
	ticket.ResolvedAt = nullTimePtr(resolvedNull)
	ticket.ClosedAt = nullTimePtr(closedNull)
	ticket.CreatedAt = ticket.CreatedAt.UTC()
	ticket.UpdatedAt = ticket.UpdatedAt.UTC()
	return ticket, nil
}
