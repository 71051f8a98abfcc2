package models

import (
	"time"

	"gorm.io/gorm"
)

// Support queues
const (
	QueueCS  = "cs"  // customer support
	QueueMod = "mod" // moderation
	QueueMD  = "md"  // deposit managers
)

// Ticket statuses
const (
	TicketNew      = "new"
	TicketOpen     = "open"
	TicketResolved = "resolved"
)

// LastFrom markers. System marks tickets moved between queues so inboxes can
// distinguish user-originated tickets from transfers.
const (
	FromUser   = "user"
	FromStaff  = "staff"
	FromSystem = "system"
)

type SupportTicket struct {
	gorm.Model
	UserID  uint   `json:"userID" gorm:"index;not null"`
	User    User   `json:"user" gorm:"foreignKey:UserID"`
	Queue   string `json:"queue" gorm:"size:8;index;default:cs"`
	Status  string `json:"status" gorm:"size:12;index;default:new"`
	Subject string `json:"subject" gorm:"size:200"`

	AssignedTo *uint  `json:"assignedTo" gorm:"index"`
	LastFrom   string `json:"lastFrom" gorm:"size:8;default:user"`

	UserUnread  bool `json:"userUnread" gorm:"default:false"`
	StaffUnread bool `json:"staffUnread" gorm:"default:true"`

	// Optional reference to the thing the ticket is about
	RefType string `json:"refType" gorm:"size:32"` // booking, listing, user
	RefID   uint   `json:"refID"`

	ResolvedAt *time.Time       `json:"resolvedAt"`
	ResolvedBy *uint            `json:"resolvedBy"`
	Messages   []SupportMessage `json:"messages" gorm:"foreignKey:TicketID"`
}

type SupportMessage struct {
	gorm.Model
	TicketID   uint   `json:"ticketID" gorm:"index;not null"`
	SenderID   uint   `json:"senderID"`
	SenderRole string `json:"senderRole" gorm:"size:20"`
	Body       string `json:"body" gorm:"size:4000"`
}
