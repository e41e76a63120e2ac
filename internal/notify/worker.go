package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rentdesk/internal/markdown"
	"rentdesk/internal/models"
	"rentdesk/internal/money"
	"rentdesk/internal/store"

	"go.uber.org/zap"
)

type Config struct {
	BatchSize     int
	MaxAttempts   int
	PublicBaseURL string
	Catalog       Catalog
}

type Worker struct {
	store         Store
	logger        *zap.Logger
	batchSize     int
	maxAttempts   int
	publicBaseURL string
	catalog       Catalog
	now           func() time.Time
}

func NewWorker(st Store, logger *zap.Logger, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:         st,
		logger:        logger,
		batchSize:     batch,
		maxAttempts:   maxAttempts,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		catalog:       catalog,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run claims one batch of due outbox events and fans each out on its own.
// A failing event is rescheduled with backoff, or parked once it reaches
// maxAttempts, and never holds back the events behind it.
func (w *Worker) Run(ctx context.Context) error {
	now := w.now()
	events, err := w.store.ClaimOutboxEvents(ctx, now, w.batchSize)
	if err != nil {
		return err
	}

	failed := 0
	for _, event := range events {
		processErr := w.processEvent(ctx, event)
		if processErr == nil {
			if err := w.store.MarkOutboxProcessed(ctx, event.Seq); err != nil {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed++
		if err := w.reschedule(ctx, now, event, processErr); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d outbox events failed", failed, len(events))
	}
	return nil
}

func (w *Worker) reschedule(ctx context.Context, now time.Time, event store.OutboxEvent, cause error) error {
	attempts := event.Attempts + 1
	fields := []zap.Field{
		zap.Int64("seq", event.Seq),
		zap.String("event_id", event.EventID),
		zap.String("type", event.Type),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	}
	if attempts >= w.maxAttempts {
		w.logger.Error("outbox event dead-lettered", fields...)
		return w.store.DeadLetterOutboxEvent(ctx, event.Seq, attempts, cause.Error())
	}
	next := now.Add(RetryDelay(attempts))
	w.logger.Warn("outbox event retry scheduled", append(fields, zap.Time("next_attempt_at", next))...)
	return w.store.MarkOutboxRetry(ctx, event.Seq, attempts, cause.Error(), next)
}

type recipient struct {
	userID string
	email  string
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	tmpl, ok := w.catalog[event.Type]
	if !ok {
		return nil
	}

	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		w.logger.Warn("skip undecodable outbox event", zap.Int64("seq", event.Seq), zap.String("type", event.Type), zap.Error(err))
		return nil
	}
	w.decorate(event.Type, payload)

	recipients, err := w.recipients(ctx, event, payload)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	kind := kindForEvent(event.Type)
	title := renderTemplate(tmpl.Title, payload)
	body := renderTemplate(tmpl.Body, payload)
	html, err := markdown.ToHTML(body)
	if err != nil {
		return err
	}

	for _, r := range recipients {
		inApp, email := true, true
		if r.userID != "" {
			inApp, email, err = w.channels(ctx, r.userID, kind)
			if err != nil {
				return err
			}
		}

		if inApp && r.userID != "" {
			_, created, err := w.store.InsertNotification(ctx, models.Notification{
				AgencyID:  event.AgencyID,
				UserID:    r.userID,
				Kind:      kind,
				EventType: event.Type,
				Title:     title,
				Body:      body,
			}, event.EventID)
			if err != nil {
				return err
			}
			if created {
				w.logger.Debug("notification stored", zap.String("event_id", event.EventID), zap.String("user_id", r.userID))
			}
		}

		if email && r.email != "" {
			_, err := w.store.EnqueueEmail(ctx, models.EmailDelivery{
				AgencyID:       event.AgencyID,
				IdempotencyKey: event.EventID + ":" + strings.ToLower(r.email),
				Recipient:      r.email,
				Subject:        title,
				HTMLBody:       html,
				TextBody:       body,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) decorate(eventType string, payload payloadData) {
	if total, ok := payload["total"].(float64); ok {
		payload["total_display"] = money.Format(int64(total))
	}
	if token, ok := payload["public_token"].(string); ok && token != "" {
		payload["accept_url"] = w.publicBaseURL + "/api/public/quotations/" + token
	}
	if strings.HasPrefix(eventType, "ticket.") {
		if status, ok := payload["status"].(string); ok {
			payload["status"] = strings.ReplaceAll(status, "_", " ")
		}
	}
}

func (w *Worker) channels(ctx context.Context, userID, kind string) (bool, bool, error) {
	prefs, err := w.store.GetPreferences(ctx, userID)
	if err != nil {
		return false, false, err
	}
	for _, pref := range prefs {
		if pref.Kind == kind {
			return pref.InApp, pref.Email, nil
		}
	}
	return true, true, nil
}

var staffRoles = []string{models.RoleAgencyAdmin, models.RoleAgent}

// recipients resolves who hears about an event. The acting user is never
// notified of their own action.
func (w *Worker) recipients(ctx context.Context, event store.OutboxEvent, payload payloadData) ([]recipient, error) {
	var userIDs []string
	includeStaff := false
	var external []recipient

	switch {
	case event.Type == "ticket.stale":
		userIDs = append(userIDs, str(payload, "assignee_user_id"))
		includeStaff = true
	case strings.HasPrefix(event.Type, "ticket."):
		userIDs = append(userIDs, str(payload, "reporter_user_id"), str(payload, "assignee_user_id"))
		includeStaff = true
	case event.Type == "lead.created":
		includeStaff = true
	case strings.HasPrefix(event.Type, "lease."):
		userIDs = append(userIDs, str(payload, "tenant_user_id"), str(payload, "agent_user_id"))
	case event.Type == "quotation.sent":
		if email := str(payload, "client_email"); email != "" {
			external = append(external, recipient{email: email})
		}
	case strings.HasPrefix(event.Type, "quotation."):
		userIDs = append(userIDs, str(payload, "created_by"))
	default:
		return nil, nil
	}

	var users []models.User
	if ids := compact(userIDs); len(ids) > 0 {
		found, err := w.store.GetUsers(ctx, event.AgencyID, ids)
		if err != nil {
			return nil, err
		}
		users = append(users, found...)
	}
	if includeStaff {
		staff, err := w.store.ListUsersByRole(ctx, event.AgencyID, staffRoles)
		if err != nil {
			return nil, err
		}
		users = append(users, staff...)
	}

	actor := str(payload, "actor_user_id")
	seen := map[string]bool{}
	var recipients []recipient
	for _, user := range users {
		if user.UserID == actor || seen[user.UserID] {
			continue
		}
		seen[user.UserID] = true
		recipients = append(recipients, recipient{userID: user.UserID, email: user.Email})
	}
	return append(recipients, external...), nil
}

func kindForEvent(eventType string) string {
	prefix, _, _ := strings.Cut(eventType, ".")
	return prefix
}

func compact(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range values {
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
