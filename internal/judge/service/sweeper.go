package service

import (
	"context"
	"fmt"
	"time"

	"codejudge/internal/judge/repository"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultSweepInterval  = 30 * time.Second
	defaultSweepGrace     = time.Minute
	defaultSweepBatchSize = 100
)

// SweeperOptions controls redelivery of first-accept signals.
type SweeperOptions struct {
	Interval       time.Duration
	Grace          time.Duration
	BatchSize      int
	PublishTimeout time.Duration
}

// NotificationSweeper redelivers first-accept signals whose post-commit publish failed.
type NotificationSweeper struct {
	store          repository.JudgementStore
	publisher      repository.FirstAcceptPublisher
	interval       time.Duration
	grace          time.Duration
	batchSize      int
	publishTimeout time.Duration
	now            func() time.Time
}

func NewNotificationSweeper(store repository.JudgementStore, publisher repository.FirstAcceptPublisher, opts SweeperOptions) (*NotificationSweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("judgement store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("first accept publisher is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultSweepGrace
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &NotificationSweeper{
		store:          store,
		publisher:      publisher,
		interval:       opts.Interval,
		grace:          opts.Grace,
		batchSize:      opts.BatchSize,
		publishTimeout: opts.PublishTimeout,
		now:            time.Now,
	}, nil
}

// Run sweeps every interval until ctx is done.
func (w *NotificationSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				logger.Warn(ctx, "first accept sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce redelivers one batch and returns how many signals were delivered.
func (w *NotificationSweeper) SweepOnce(ctx context.Context) (int, error) {
	pending, err := w.store.ListPendingFirstAccepts(ctx, w.now().Add(-w.grace), w.batchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, event := range pending {
		if err := deliverFirstAccept(ctx, w.publisher, w.store, event, w.publishTimeout); err != nil {
			logger.Warn(ctx, "redeliver first accept failed",
				zap.Int64("user_id", event.UserID),
				zap.Int64("problem_id", event.ProblemID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		logger.Info(ctx, "first accept signals redelivered", zap.Int("count", delivered))
	}
	return delivered, nil
}
