package model

import "strings"

// Category is the closed set of notification categories.
type Category string

const (
	CategoryBookmark Category = "BOOKMARK"
	CategoryTop3     Category = "TOP3"
	CategoryNewItem  Category = "NEW_ITEM"
	CategoryFeedback Category = "FEEDBACK"
)

// Categories lists every supported category in display order.
var Categories = []Category{
	CategoryBookmark,
	CategoryTop3,
	CategoryNewItem,
	CategoryFeedback,
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts the category name in any case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// ActiveColumn returns the endpoint column holding the flag for c.
func (c Category) ActiveColumn() string {
	switch c {
	case CategoryBookmark:
		return "bookmark_active"
	case CategoryTop3:
		return "top3_active"
	case CategoryNewItem:
		return "new_item_active"
	case CategoryFeedback:
		return "feedback_active"
	}
	return ""
}
