package models

import (
	"time"

	"gorm.io/gorm"
)

type Conversation struct {
	gorm.Model
	OwnerID       uint       `json:"ownerID" gorm:"index;not null"`
	RenterID      uint       `json:"renterID" gorm:"index;not null"`
	ListingID     *uint      `json:"listingID" gorm:"index"`
	BookingID     *uint      `json:"bookingID" gorm:"index"`
	LastMessageAt *time.Time `json:"lastMessageAt" gorm:"index"`
	Messages      []Message  `json:"messages"`
}

type Message struct {
	gorm.Model
	ConversationID uint
	SenderID       uint   `json:"senderID"`
	ReceiverID     uint   `json:"receiverID"`
	Text           string `json:"text"`
	// Optional typed payload for rich messages (e.g., listing card)
	Type            string `json:"type" gorm:"size:32"` // text | listing_card
	PreviewTitle    string `json:"previewTitle" gorm:"size:256"`
	PreviewSubtitle string `json:"previewSubtitle" gorm:"size:256"`
	PreviewImageURL string `json:"previewImageURL" gorm:"size:512"`
	RefType         string `json:"refType" gorm:"size:32"` // listing | booking
	RefID           *uint  `json:"refID" gorm:"index"`
	// Delivery state
	State       string     `json:"state" gorm:"size:16;index"` // sent|delivered|seen
	DeliveredAt *time.Time `json:"deliveredAt"`
	SeenAt      *time.Time `json:"seenAt"`
}
