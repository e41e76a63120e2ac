package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

type DeliveryConfig struct {
	BatchSize   int
	MaxAttempts int
	From        string
}

// Deliverer drains due email deliveries through a Provider.
type Deliverer struct {
	store       Store
	provider    Provider
	logger      *zap.Logger
	batchSize   int
	maxAttempts int
	from        string
	now         func() time.Time
}

func NewDeliverer(st Store, provider Provider, logger *zap.Logger, cfg DeliveryConfig) *Deliverer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{
		store:       st,
		provider:    provider,
		logger:      logger,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		from:        cfg.From,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *Deliverer) Run(ctx context.Context) error {
	now := d.now()
	deliveries, err := d.store.ClaimDueEmails(ctx, now, d.batchSize)
	if err != nil {
		return err
	}

	for _, delivery := range deliveries {
		attempts := delivery.Attempts + 1
		sendErr := d.provider.Send(ctx, Message{
			From:    d.from,
			To:      delivery.Recipient,
			Subject: delivery.Subject,
			HTML:    delivery.HTMLBody,
			Text:    delivery.TextBody,
		})
		if sendErr == nil {
			if err := d.store.MarkEmailSent(ctx, delivery.DeliveryID, attempts); err != nil {
				return err
			}
			continue
		}

		fields := []zap.Field{
			zap.String("delivery_id", delivery.DeliveryID),
			zap.Int("attempts", attempts),
			zap.Error(sendErr),
		}
		if attempts >= d.maxAttempts {
			d.logger.Warn("email moved to dlq", fields...)
			if err := d.store.MoveEmailToDLQ(ctx, delivery, attempts, sendErr.Error()); err != nil {
				return err
			}
			continue
		}
		next := now.Add(RetryDelay(attempts))
		d.logger.Info("email retry scheduled", append(fields, zap.Time("next_attempt_at", next))...)
		if err := d.store.MarkEmailRetry(ctx, delivery.DeliveryID, attempts, sendErr.Error(), next); err != nil {
			return err
		}
	}
	return nil
}

// RetryDelay is the wait after the given failed attempt: 30s doubling up
// to 30m, without jitter.
func RetryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     30 * time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         30 * time.Minute,
	}
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
