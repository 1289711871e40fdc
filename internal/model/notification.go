package model

import "time"

// Notification is a logical notification decided for a user. It backs the
// in-app notification list independently of push delivery.
type Notification struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    int64      `gorm:"index:idx_notifications_user_category;not null" json:"user_id"`
	Title     string     `gorm:"size:256;not null" json:"title"`
	Body      string     `gorm:"type:text;not null" json:"body"`
	Category  Category   `gorm:"index:idx_notifications_user_category;size:32;not null" json:"category"`
	Link      *string    `gorm:"size:512" json:"link,omitempty"`
	IsRead    bool       `gorm:"not null" json:"is_read"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`

	// Associations
	DeliveryLogs []DeliveryLog `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"-"`
}
