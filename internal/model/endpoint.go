package model

import "time"

// Platform identifies the gateway an endpoint token belongs to.
type Platform string

const (
	PlatformWebPush Platform = "webpush"
	PlatformFCM     Platform = "fcm"
	PlatformSNS     Platform = "sns"
)

// Endpoint is a registered device destination. For web push the token is
// the subscription endpoint URL and P256DH/Auth carry the subscription keys.
type Endpoint struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Token     string    `gorm:"uniqueIndex;size:1024;not null" json:"token"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Platform  Platform  `gorm:"size:16;not null" json:"platform"`
	P256DH    string    `gorm:"column:p256dh" json:"p256dh,omitempty"`
	Auth      string    `json:"auth,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Per-category flags.
	BookmarkActive bool `gorm:"not null" json:"bookmark_active"`
	Top3Active     bool `gorm:"not null" json:"top3_active"`
	NewItemActive  bool `gorm:"not null" json:"new_item_active"`
	FeedbackActive bool `gorm:"not null" json:"feedback_active"`
}

// ActiveFor reports whether the endpoint receives pushes for c.
func (e *Endpoint) ActiveFor(c Category) bool {
	switch c {
	case CategoryBookmark:
		return e.BookmarkActive
	case CategoryTop3:
		return e.Top3Active
	case CategoryNewItem:
		return e.NewItemActive
	case CategoryFeedback:
		return e.FeedbackActive
	}
	return false
}

// SetActive toggles the flag for c.
func (e *Endpoint) SetActive(c Category, active bool) {
	switch c {
	case CategoryBookmark:
		e.BookmarkActive = active
	case CategoryTop3:
		e.Top3Active = active
	case CategoryNewItem:
		e.NewItemActive = active
	case CategoryFeedback:
		e.FeedbackActive = active
	}
}
