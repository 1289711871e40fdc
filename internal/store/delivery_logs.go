package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"notify-delivery-backend/internal/model"
)

func (s *gormStore) CreateDeliveryLogs(ctx context.Context, logs []model.DeliveryLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("failed to create %d delivery logs: %w", len(logs), err)
	}
	return nil
}

func (s *gormStore) GetDeliveryLog(ctx context.Context, id string) (*model.DeliveryLog, error) {
	var l model.DeliveryLog
	if err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *gormStore) ListDeliveryLogs(ctx context.Context, notificationID string) ([]model.DeliveryLog, error) {
	var logs []model.DeliveryLog
	if err := s.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list delivery logs of %s: %w", notificationID, err)
	}
	return logs, nil
}

// RecordAttempt counts one attempt and applies the resulting status in a
// single guarded UPDATE. It reports false when the row was already terminal
// or out of attempt budget, in which case nothing was written.
func (s *gormStore) RecordAttempt(ctx context.Context, a AttemptRecord) (bool, error) {
	updates := map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"status":        a.Status,
		"updated_at":    a.At,
	}
	if a.LastError != nil {
		updates["last_error"] = *a.LastError
	}
	if a.Status.Terminal() {
		updates["completed_at"] = a.At
	}

	res := s.db.WithContext(ctx).
		Model(&model.DeliveryLog{}).
		Where("id = ? AND status = ? AND attempt_count < ?", a.ID, model.DeliveryPending, a.MaxAttempts).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record attempt on delivery log %s: %w", a.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkAbandoned moves a PENDING row to ABANDONED without counting an attempt.
func (s *gormStore) MarkAbandoned(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.DeliveryLog{}).
		Where("id = ? AND status = ?", id, model.DeliveryPending).
		Updates(map[string]any{
			"status":       model.DeliveryAbandoned,
			"last_error":   reason,
			"updated_at":   at,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to abandon delivery log %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TouchPending refreshes the activity timestamp of a row that is still
// PENDING. Reconciliation claims a stale row with it before resubmitting.
func (s *gormStore) TouchPending(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.DeliveryLog{}).
		Where("id = ? AND status = ?", id, model.DeliveryPending).
		Update("updated_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to touch delivery log %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// FindStalePending returns PENDING rows with no activity since idleSince,
// oldest first.
func (s *gormStore) FindStalePending(ctx context.Context, idleSince time.Time, limit int) ([]model.DeliveryLog, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.DeliveryPending, idleSince).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var logs []model.DeliveryLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale delivery logs: %w", err)
	}
	return logs, nil
}

// CountFailuresByToken groups logs created since the given time whose last
// error starts with errorPrefix, keeping tokens with at least threshold rows.
func (s *gormStore) CountFailuresByToken(ctx context.Context, since time.Time, errorPrefix string, threshold int) ([]TokenFailures, error) {
	var rows []TokenFailures
	err := s.db.WithContext(ctx).
		Model(&model.DeliveryLog{}).
		Select("token, COUNT(*) AS failures").
		Where("created_at >= ? AND last_error LIKE ?", since, errorPrefix+"%").
		Group("token").
		Having("COUNT(*) >= ?", threshold).
		Order("token").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count failures by token: %w", err)
	}
	return rows, nil
}

func (s *gormStore) DeliveryStats(ctx context.Context, notificationID string) (DeliveryStats, error) {
	type statusCount struct {
		Status model.DeliveryStatus
		Count  int64
	}
	var counts []statusCount
	err := s.db.WithContext(ctx).
		Model(&model.DeliveryLog{}).
		Select("status, COUNT(*) AS count").
		Where("notification_id = ?", notificationID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return DeliveryStats{}, fmt.Errorf("failed to aggregate delivery logs of %s: %w", notificationID, err)
	}

	var stats DeliveryStats
	for _, c := range counts {
		stats.Total += c.Count
		switch c.Status {
		case model.DeliveryPending:
			stats.Pending = c.Count
		case model.DeliverySuccess:
			stats.Success = c.Count
		case model.DeliveryFailed:
			stats.Failed = c.Count
		case model.DeliveryAbandoned:
			stats.Abandoned = c.Count
		}
	}
	return stats, nil
}
