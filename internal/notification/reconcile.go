package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/gateway"
	"notify-delivery-backend/internal/model"
	"notify-delivery-backend/internal/store"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned     int `json:"scanned"`
	Resubmitted int `json:"resubmitted"`
	Exhausted   int `json:"exhausted"`
	Abandoned   int `json:"abandoned"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// Reconciler re-drives delivery logs left PENDING by a task that died, was
// cancelled or never got scheduled.
type Reconciler struct {
	store      store.Store
	dispatch   func(Job) error
	maxAttempt int
	staleAfter time.Duration
	batchSize  int
	abandon    bool
	log        *zap.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewReconciler creates a reconciler. dispatch hands jobs to the same worker
// pool used by Notify.
func NewReconciler(s store.Store, dispatch func(Job) error, policy RetryPolicy, cfg config.ReconcileConfig, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	abandon := true
	if cfg.AbandonExhausted != nil {
		abandon = *cfg.AbandonExhausted
	}
	return &Reconciler{
		store:      s,
		dispatch:   dispatch,
		maxAttempt: policy.MaxAttempts,
		staleAfter: cfg.StaleAfter,
		batchSize:  cfg.BatchSize,
		abandon:    abandon,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one pass. Passes are serialized.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report ReconcileReport
	now := r.now()
	stale, err := r.store.FindStalePending(ctx, now.Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return report, err
	}
	report.Scanned = len(stale)

	for _, row := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.reconcileOne(ctx, row, now, &report); err != nil {
			report.Errors++
			r.log.Error("reconcile delivery log failed",
				zap.String("delivery_log_id", row.ID), zap.Error(err))
		}
	}

	r.log.Info("reconciliation pass finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("resubmitted", report.Resubmitted),
		zap.Int("exhausted", report.Exhausted),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors))
	return report, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, row model.DeliveryLog, now time.Time, report *ReconcileReport) error {
	if row.AttemptCount >= r.maxAttempt {
		report.Exhausted++
		r.log.Warn("stale delivery has no attempts left",
			zap.String("delivery_log_id", row.ID),
			zap.String("notification_id", row.NotificationID),
			zap.Int("attempts", row.AttemptCount),
			zap.Time("last_activity", row.UpdatedAt))
		if !r.abandon {
			return nil
		}
		return r.abandonRow(ctx, row, "attempts exhausted without a recorded outcome", now, report)
	}

	n, err := r.store.GetNotification(ctx, row.NotificationID)
	if errors.Is(err, store.ErrNotFound) {
		return r.abandonRow(ctx, row, "notification removed", now, report)
	}
	if err != nil {
		return err
	}
	endpoint, err := r.store.GetEndpoint(ctx, row.Token)
	if errors.Is(err, store.ErrNotFound) {
		return r.abandonRow(ctx, row, "endpoint removed", now, report)
	}
	if err != nil {
		return err
	}

	claimed, err := r.store.TouchPending(ctx, row.ID, now)
	if err != nil {
		return err
	}
	if !claimed {
		report.Skipped++
		return nil
	}

	msg := gateway.Message{Title: n.Title, Body: n.Body}
	if n.Link != nil {
		msg.Link = *n.Link
	}
	job := Job{
		DeliveryLogID: row.ID,
		Endpoint:      *endpoint,
		Message:       msg,
		AttemptsMade:  row.AttemptCount,
		Recheck:       true,
	}
	if err := r.dispatch(job); err != nil {
		return fmt.Errorf("resubmit: %w", err)
	}
	report.Resubmitted++
	r.log.Info("stale delivery resubmitted",
		zap.String("delivery_log_id", row.ID),
		zap.Int("attempts", row.AttemptCount))
	return nil
}

func (r *Reconciler) abandonRow(ctx context.Context, row model.DeliveryLog, reason string, now time.Time, report *ReconcileReport) error {
	ok, err := r.store.MarkAbandoned(ctx, row.ID, reason, now)
	if err != nil {
		return err
	}
	if !ok {
		report.Skipped++
		return nil
	}
	report.Abandoned++
	r.log.Warn("delivery abandoned",
		zap.String("delivery_log_id", row.ID),
		zap.String("reason", reason))
	return nil
}
