package models

import (
	"time"
)

// Notification represents system notifications for users
type Notification struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userID" gorm:"not null;index"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	Type  string `json:"type" gorm:"size:40;index"` // booking_requested, deposit_decision, ticket_reply, ...
	Title string `json:"title" gorm:"size:100"`
	Body  string `json:"body" gorm:"size:500"`
	Link  string `json:"link" gorm:"size:255"`

	// Reference data
	RefType string `json:"refType" gorm:"size:32"` // booking, listing, ticket
	RefID   uint   `json:"refID"`

	IsRead    bool       `json:"isRead" gorm:"default:false"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}
