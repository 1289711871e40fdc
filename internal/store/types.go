package store

import (
	"time"

	"notify-delivery-backend/internal/model"
)

// NotificationFilter narrows a notification listing. A nil Category lists
// every category.
type NotificationFilter struct {
	UserID   int64
	Category *model.Category
	Limit    int
	Offset   int
}

// AttemptRecord is the write-back of one send attempt. It is applied only if
// the row is still PENDING and has attempt budget left under MaxAttempts.
type AttemptRecord struct {
	ID          string
	Status      model.DeliveryStatus
	LastError   *string
	MaxAttempts int
	At          time.Time
}

// TokenFailures is the number of matching failures seen for one token.
type TokenFailures struct {
	Token    string
	Failures int64
}

// DeliveryStats counts the delivery logs of a notification by status.
type DeliveryStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Success   int64 `json:"success"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`
}

// EndpointRemoval reports what DeleteEndpoint removed.
type EndpointRemoval struct {
	EndpointDeleted bool  `json:"endpoint_deleted"`
	LogsPurged      int64 `json:"logs_purged"`
}
