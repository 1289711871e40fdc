package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"notify-delivery-backend/internal/model"
)

func (s *gormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification for user %d: %w", n.UserID, err)
	}
	return nil
}

// CreateNotificationWithDeliveries stores a notification together with its
// PENDING delivery logs. Either all rows are written or none.
func (s *gormStore) CreateNotificationWithDeliveries(ctx context.Context, n *model.Notification, logs []model.DeliveryLog) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}
		return tx.Create(&logs).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create notification for user %d with %d deliveries: %w", n.UserID, len(logs), err)
	}
	return nil
}

func (s *gormStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *gormStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", filter.UserID)
	if filter.Category != nil {
		q = q.Where("category = ?", *filter.Category)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var notifications []model.Notification
	if err := q.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %d: %w", filter.UserID, err)
	}
	return notifications, nil
}

func (s *gormStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications for user %d: %w", userID, err)
	}
	return count, nil
}

// MarkRead flips the read flag once. Marking an already-read notification
// keeps its original read timestamp.
func (s *gormStore) MarkRead(ctx context.Context, userID int64, id string, at time.Time) (*model.Notification, error) {
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Updates(map[string]any{"is_read": true, "read_at": at}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}

	var n model.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}
