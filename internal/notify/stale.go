package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type staleFlagger interface {
	FlagStaleTickets(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// StaleSweep emits one ticket.stale reminder for tickets left open or in
// progress longer than After.
type StaleSweep struct {
	store  staleFlagger
	after  time.Duration
	limit  int
	logger *zap.Logger
	now    func() time.Time
}

func NewStaleSweep(st staleFlagger, after time.Duration, logger *zap.Logger) *StaleSweep {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaleSweep{store: st, after: after, limit: 100, logger: logger, now: time.Now}
}

func (s *StaleSweep) Run(ctx context.Context) error {
	if s.after <= 0 {
		return nil
	}
	flagged, err := s.store.FlagStaleTickets(ctx, s.now().Add(-s.after), s.limit)
	if err != nil {
		return err
	}
	if flagged > 0 {
		s.logger.Info("stale tickets flagged", zap.Int("count", flagged))
	}
	return nil
}
