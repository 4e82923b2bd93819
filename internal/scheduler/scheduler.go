package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"go-ingenico/internal/models"
)

const (
	sweepBatch    = 100
	pruneInterval = time.Hour
)

// Store is the persistence the scheduled tasks read and clean up
type Store interface {
	GetStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]*models.Order, error)
	PruneAuditLog(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reconciler re-polls the processor for an order
type Reconciler interface {
	HandleReturn(ctx context.Context, orderID int64, hostedCheckoutID string) (*models.Order, error)
}

// Options controls which tasks run. A zero duration disables the task.
type Options struct {
	SweepInterval  time.Duration
	StaleAfter     time.Duration
	AuditRetention time.Duration
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	store      Store
	reconciler Reconciler
	opts       Options
	logger     *slog.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler
func New(store Store, reconciler Reconciler, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		store:      store,
		reconciler: reconciler,
		opts:       opts,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
	}
}

// Enabled reports whether any task is configured
func (s *Scheduler) Enabled() bool {
	return s.opts.SweepInterval > 0 || s.opts.AuditRetention > 0
}

// Start launches the configured tasks until ctx is done or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.SweepInterval > 0 {
		s.every(ctx, s.opts.SweepInterval, func(ctx context.Context) {
			if _, err := s.SweepPending(ctx); err != nil {
				s.logger.Error("pending order sweep failed", "error", err)
			}
		})
		s.logger.Info("pending order sweep enabled", "interval", s.opts.SweepInterval, "stale_after", s.opts.StaleAfter)
	}

	if s.opts.AuditRetention > 0 {
		s.every(ctx, pruneInterval, func(ctx context.Context) {
			if _, err := s.PruneAudit(ctx); err != nil {
				s.logger.Error("audit log prune failed", "error", err)
			}
		})
		s.logger.Info("audit log pruning enabled", "retention", s.opts.AuditRetention)
	}
}

// Stop cancels running tasks and waits for them to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, task func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()
}

// SweepPending reconciles pending orders whose hosted checkout has been open
// longer than StaleAfter. It returns how many orders left pending.
func (s *Scheduler) SweepPending(ctx context.Context) (int, error) {
	orders, err := s.store.GetStalePendingOrders(ctx, s.now().Add(-s.opts.StaleAfter), sweepBatch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := s.reconciler.HandleReturn(ctx, order.ID, "")
		if err != nil {
			s.logger.Warn("sweep reconciliation failed", "order_id", order.ID, "error", err)
			continue
		}
		if updated != nil && updated.Status != models.OrderPending {
			settled++
			s.logger.Info("sweep settled order", "order_id", order.ID, "status", updated.Status)
		}
	}
	if len(orders) > 0 {
		s.logger.Debug("pending order sweep finished", "checked", len(orders), "settled", settled)
	}
	return settled, nil
}

// PruneAudit deletes audit entries older than AuditRetention
func (s *Scheduler) PruneAudit(ctx context.Context) (int64, error) {
	if s.opts.AuditRetention <= 0 {
		return 0, nil
	}
	n, err := s.store.PruneAuditLog(ctx, s.now().Add(-s.opts.AuditRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned audit log", "deleted", n)
	}
	return n, nil
}
