package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/pagination"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var notificationSortColumns = map[string]string{
	"created_at": "created_at",
}

const (
	notificationColumns = "notification_id, agency_id, user_id, kind, event_type, title, body, read_at, created_at"
	deliveryColumns     = "delivery_id, agency_id, idempotency_key, recipient, subject, html_body, text_body, status, attempts, last_error, next_attempt_at, created_at"

	claimLease = 5 * time.Minute
)

func (s *Store) ListNotifications(ctx context.Context, agencyID, userID string, unreadOnly bool, page pagination.Params) ([]models.Notification, int, error) {
	var where whereBuilder
	where.add("agency_id = $%d", agencyID)
	where.add("user_id = $%d", userID)
	if unreadOnly {
		where.raw("read_at IS NULL")
	}
	total, err := countRows(ctx, s.pool, "notifications", where)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+notificationColumns+" FROM notifications"+where.sql()+orderClause(page, notificationSortColumns, "notification_id")+pageClause(page), where.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error) {
	notification, err := scanNotification(s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE notification_id = $1 AND agency_id = $2 AND user_id = $3
		RETURNING `+notificationColumns, notificationID, agencyID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, store.ErrNotificationNotFound
		}
		return models.Notification{}, err
	}
	return notification, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, agencyID, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE agency_id = $1 AND user_id = $2 AND read_at IS NULL
	`, agencyID, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetPreferences returns one row per notification kind; kinds without a
// stored row default to both channels on.
func (s *Store) GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, in_app, email
		FROM notification_preferences
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stored := make(map[string]models.NotificationPreference)
	for rows.Next() {
		pref := models.NotificationPreference{UserID: userID}
		if err := rows.Scan(&pref.Kind, &pref.InApp, &pref.Email); err != nil {
			return nil, err
		}
		stored[pref.Kind] = pref
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var prefs []models.NotificationPreference
	for _, kind := range models.NotificationKinds() {
		pref, ok := stored[kind]
		if !ok {
			pref = models.NotificationPreference{UserID: userID, Kind: kind, InApp: true, Email: true}
		}
		prefs = append(prefs, pref)
	}
	return prefs, nil
}

func (s *Store) SetPreferences(ctx context.Context, userID string, prefs []models.NotificationPreference) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, pref := range prefs {
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_preferences (user_id, kind, in_app, email)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, kind) DO UPDATE
			SET in_app = EXCLUDED.in_app, email = EXCLUDED.email
		`, userID, pref.Kind, pref.InApp, pref.Email)
		if err != nil {
			return err
		}
	}
	err = tx.Commit(ctx)
	return err
}

// ClaimOutboxEvents leases unprocessed events whose retry time has come.
// Selection is by per-event state rather than a sequence watermark, so an
// event whose transaction commits after a higher seq is still picked up.
func (s *Store) ClaimOutboxEvents(ctx context.Context, now time.Time, limit int) ([]store.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE outbox_events
		SET next_attempt_at = $1
		WHERE seq IN (
			SELECT seq FROM outbox_events
			WHERE processed_at IS NULL AND dead_lettered_at IS NULL AND next_attempt_at <= $2
			ORDER BY seq ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING seq, event_id, agency_id, type, payload_json, attempts, created_at
	`, now.Add(claimLease), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.Seq, &event.EventID, &event.AgencyID, &event.Type, &payload, &event.Attempts, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = json.RawMessage(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (s *Store) MarkOutboxProcessed(ctx context.Context, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET processed_at = NOW(), last_error = ''
		WHERE seq = $1
	`, seq)
	return err
}

func (s *Store) MarkOutboxRetry(ctx context.Context, seq int64, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $1, last_error = $2, next_attempt_at = $3
		WHERE seq = $4
	`, attempts, lastError, nextAttemptAt, seq)
	return err
}

// DeadLetterOutboxEvent parks an event that kept failing; it stays in the
// table for inspection but is never claimed again.
func (s *Store) DeadLetterOutboxEvent(ctx context.Context, seq int64, attempts int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = $1, last_error = $2, dead_lettered_at = NOW()
		WHERE seq = $3
	`, attempts, lastError, seq)
	return err
}

func (s *Store) ListUsersByRole(ctx context.Context, agencyID string, roles []string) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, agency_id, role, email, full_name, phone, active, created_at
		FROM users
		WHERE agency_id = $1 AND role = ANY($2) AND active = TRUE
		ORDER BY user_id ASC
	`, agencyID, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Store) GetUsers(ctx context.Context, agencyID string, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, agency_id, role, email, full_name, phone, active, created_at
		FROM users
		WHERE agency_id = $1 AND user_id = ANY($2) AND active = TRUE
		ORDER BY user_id ASC
	`, agencyID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// InsertNotification is idempotent per (source event, user) and announces
// new rows on NotifyChannel within the same transaction. Only ids travel on
// the channel so the payload stays far below the pg_notify limit no matter
// how long the body is.
func (s *Store) InsertNotification(ctx context.Context, notification models.Notification, sourceEventID string) (models.Notification, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Notification{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	notification.NotificationID = uuid.NewString()
	notification.CreatedAt = s.now()
	tag, err := tx.Exec(ctx, `
		INSERT INTO notifications (notification_id, agency_id, user_id, source_event_id, kind, event_type, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_event_id, user_id) DO NOTHING
	`, notification.NotificationID, notification.AgencyID, notification.UserID, sourceEventID, notification.Kind, notification.EventType, notification.Title, notification.Body, notification.CreatedAt)
	if err != nil {
		return models.Notification{}, false, err
	}
	if tag.RowsAffected() == 0 {
		err = tx.Commit(ctx)
		return models.Notification{}, false, err
	}

	payload, err := jsonBytes(store.NotificationRef{
		NotificationID: notification.NotificationID,
		AgencyID:       notification.AgencyID,
		UserID:         notification.UserID,
	})
	if err != nil {
		return models.Notification{}, false, err
	}
	if _, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		return models.Notification{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Notification{}, false, err
	}
	return notification, true, nil
}

// GetNotification loads one notification owned by the given user.
func (s *Store) GetNotification(ctx context.Context, agencyID, userID, notificationID string) (models.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE agency_id = $1 AND user_id = $2 AND notification_id = $3
	`, agencyID, userID, notificationID)
	notification, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Notification{}, store.ErrNotificationNotFound
		}
		return models.Notification{}, err
	}
	return notification, nil
}

// ListenNotifications blocks on NotifyChannel and hands every announced
// notification reference to deliver until ctx is cancelled.
func (s *Store) ListenNotifications(ctx context.Context, deliver func(store.NotificationRef)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	for {
		msg, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var ref store.NotificationRef
		if err := json.Unmarshal([]byte(msg.Payload), &ref); err != nil || ref.NotificationID == "" {
			continue
		}
		deliver(ref)
	}
}

func (s *Store) EnqueueEmail(ctx context.Context, delivery models.EmailDelivery) (bool, error) {
	if delivery.DeliveryID == "" {
		delivery.DeliveryID = uuid.NewString()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO email_deliveries (delivery_id, agency_id, idempotency_key, recipient, subject, html_body, text_body, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, delivery.DeliveryID, delivery.AgencyID, delivery.IdempotencyKey, delivery.Recipient, delivery.Subject, delivery.HTMLBody, delivery.TextBody)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimDueEmails leases due deliveries to this worker by pushing their
// next_attempt_at forward, so concurrent workers skip them.
func (s *Store) ClaimDueEmails(ctx context.Context, now time.Time, limit int) ([]models.EmailDelivery, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE email_deliveries
		SET next_attempt_at = $1
		WHERE delivery_id IN (
			SELECT delivery_id FROM email_deliveries
			WHERE status = 'pending' AND next_attempt_at <= $2
			ORDER BY next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryColumns, now.Add(claimLease), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.EmailDelivery
	for rows.Next() {
		var delivery models.EmailDelivery
		var next sql.NullTime
		if err := rows.Scan(&delivery.DeliveryID, &delivery.AgencyID, &delivery.IdempotencyKey, &delivery.Recipient, &delivery.Subject, &delivery.HTMLBody, &delivery.TextBody, &delivery.Status, &delivery.Attempts, &delivery.LastError, &next, &delivery.CreatedAt); err != nil {
			return nil, err
		}
		delivery.NextAttemptAt = nullTimePtr(next)
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (s *Store) MarkEmailSent(ctx context.Context, deliveryID string, attempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_deliveries
		SET status = 'sent', attempts = $1, last_error = '', sent_at = NOW()
		WHERE delivery_id = $2
	`, attempts, deliveryID)
	return err
}

func (s *Store) MarkEmailRetry(ctx context.Context, deliveryID string, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_deliveries
		SET attempts = $1, last_error = $2, next_attempt_at = $3
		WHERE delivery_id = $4
	`, attempts, lastError, nextAttemptAt, deliveryID)
	return err
}

func (s *Store) MoveEmailToDLQ(ctx context.Context, delivery models.EmailDelivery, attempts int, lastError string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `
		UPDATE email_deliveries
		SET status = 'failed', attempts = $1, last_error = $2
		WHERE delivery_id = $3
	`, attempts, lastError, delivery.DeliveryID); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO notification_dlq (dlq_id, delivery_id, agency_id, idempotency_key, recipient, subject, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), delivery.DeliveryID, delivery.AgencyID, delivery.IdempotencyKey, delivery.Recipient, delivery.Subject, attempts, lastError); err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

func collectUsers(rows pgx.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var notification models.Notification
	var readNull sql.NullTime
	if err := row.Scan(&notification.NotificationID, &notification.AgencyID, &notification.UserID, &notification.Kind, &notification.EventType, &notification.Title, &notification.Body, &readNull, &notification.CreatedAt); err != nil {
		return models.Notification{}, err
	}
	notification.ReadAt = nullTimePtr(readNull)
	return notification, nil
}
