package service

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/backoffice/internal/observability"
	"github.com/clinicore/backoffice/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPendingScanInterval = 30 * time.Second
	defaultPendingScanLimit    = 100
	defaultPendingCutoff       = time.Minute
)

// PendingScanner periodically re-dispatches PENDING records whose trigger
// call never completed, e.g. after a crash between the record commit and the
// provider call. The cutoff keeps it from racing in-flight dispatches.
type PendingScanner struct {
	notifications repository.NotificationRepository
	dispatcher    *DispatchService
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	limit         int
	cutoff        time.Duration
	now           func() time.Time
}

func NewPendingScanner(
	notifications repository.NotificationRepository,
	dispatcher *DispatchService,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*PendingScanner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	if interval <= 0 {
		interval = defaultPendingScanInterval
	}
	if limit <= 0 {
		limit = defaultPendingScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PendingScanner{
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
		interval:      interval,
		limit:         limit,
		cutoff:        defaultPendingCutoff,
		now:           time.Now,
	}, nil
}

func (s *PendingScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *PendingScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so stale records do not wait for the first ticker edge.
	if err := s.scanStale(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("pending scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanStale(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("pending scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *PendingScanner) scanStale(ctx context.Context) error {
	olderThan := s.now().UTC().Add(-s.cutoff)
	staleRecords, err := s.notifications.ListStalePending(ctx, olderThan, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch stale pending notifications: %w", err)
	}

	for i := range staleRecords {
		record := staleRecords[i]
		s.metrics.IncPendingReprocessed()

		if _, err := s.dispatcher.Dispatch(ctx, &record); err != nil {
			s.logger.Error("failed to re-dispatch pending notification",
				zap.String("notificationId", record.ID),
				zap.String("eventType", record.EventType),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("re-dispatched pending notification",
			zap.String("notificationId", record.ID),
			zap.String("status", record.Status.String()),
		)
	}

	return nil
}
