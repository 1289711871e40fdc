package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"notify-delivery-backend/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store defines the interface for all database operations.
type Store interface {
	NotificationStore
	DeliveryLogStore
	EndpointStore

	// DB exposes the underlying handle for health checks.
	DB() *gorm.DB
}

// NotificationStore persists logical notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	CreateNotificationWithDeliveries(ctx context.Context, n *model.Notification, logs []model.DeliveryLog) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID int64, id string, at time.Time) (*model.Notification, error)
}

// DeliveryLogStore persists delivery attempts. Every mutation is guarded on
// the row still being PENDING.
type DeliveryLogStore interface {
	CreateDeliveryLogs(ctx context.Context, logs []model.DeliveryLog) error
	GetDeliveryLog(ctx context.Context, id string) (*model.DeliveryLog, error)
	ListDeliveryLogs(ctx context.Context, notificationID string) ([]model.DeliveryLog, error)
	RecordAttempt(ctx context.Context, a AttemptRecord) (bool, error)
	MarkAbandoned(ctx context.Context, id, reason string, at time.Time) (bool, error)
	TouchPending(ctx context.Context, id string, at time.Time) (bool, error)
	FindStalePending(ctx context.Context, idleSince time.Time, limit int) ([]model.DeliveryLog, error)
	CountFailuresByToken(ctx context.Context, since time.Time, errorPrefix string, threshold int) ([]TokenFailures, error)
	DeliveryStats(ctx context.Context, notificationID string) (DeliveryStats, error)
}

// EndpointStore is the endpoint registry.
type EndpointStore interface {
	UpsertEndpoint(ctx context.Context, e *model.Endpoint) (*model.Endpoint, error)
	GetEndpoint(ctx context.Context, token string) (*model.Endpoint, error)
	ListActiveEndpoints(ctx context.Context, userID int64, c model.Category) ([]model.Endpoint, error)
	DeleteEndpoint(ctx context.Context, token string) (EndpointRemoval, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
