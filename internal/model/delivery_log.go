package model

import "time"

// DeliveryStatus is the state of a single delivery attempt row.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailed  DeliveryStatus = "FAILED"
	// DeliveryAbandoned marks a stale row whose attempt budget was already
	// spent when reconciliation found it. No send happened for the transition.
	DeliveryAbandoned DeliveryStatus = "ABANDONED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed || s == DeliveryAbandoned
}

// DeliveryLog tracks sending one notification to one endpoint token.
type DeliveryLog struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	NotificationID string         `gorm:"index;size:36;not null" json:"notification_id"`
	Token          string         `gorm:"index;size:1024;not null" json:"token"`
	Status         DeliveryStatus `gorm:"index:idx_delivery_logs_status_updated;size:16;not null" json:"status"`
	AttemptCount   int            `gorm:"not null;default:0" json:"attempt_count"`
	LastError      *string        `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index:idx_delivery_logs_status_updated;not null" json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}
