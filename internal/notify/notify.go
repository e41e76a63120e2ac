// Package notify turns outbox events into in-app notifications and email
// deliveries, and drains the email queue with retries.
package notify

import (
	"context"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/store"
)

// Store is the persistence the worker and the delivery loop need.
type Store interface {
	ClaimOutboxEvents(ctx context.Context, now time.Time, limit int) ([]store.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, seq int64) error
	MarkOutboxRetry(ctx context.Context, seq int64, attempts int, lastError string, nextAttemptAt time.Time) error
	DeadLetterOutboxEvent(ctx context.Context, seq int64, attempts int, lastError string) error
	ListUsersByRole(ctx context.Context, agencyID string, roles []string) ([]models.User, error)
	GetUsers(ctx context.Context, agencyID string, userIDs []string) ([]models.User, error)
	GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error)
	InsertNotification(ctx context.Context, notification models.Notification, sourceEventID string) (models.Notification, bool, error)
	EnqueueEmail(ctx context.Context, delivery models.EmailDelivery) (bool, error)
	ClaimDueEmails(ctx context.Context, now time.Time, limit int) ([]models.EmailDelivery, error)
	MarkEmailSent(ctx context.Context, deliveryID string, attempts int) error
	MarkEmailRetry(ctx context.Context, deliveryID string, attempts int, lastError string, nextAttemptAt time.Time) error
	MoveEmailToDLQ(ctx context.Context, delivery models.EmailDelivery, attempts int, lastError string) error
}

type runner interface {
	Run(ctx context.Context) error
}

// Start calls r.Run every interval until ctx is done.
func Start(ctx context.Context, interval time.Duration, r runner, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil && ctx.Err() == nil && onError != nil {
				onError(err)
			}
		}
	}
}
