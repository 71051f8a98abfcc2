package models

import (
	"time"

	"gorm.io/gorm"
)

// Rental lifecycle
const (
	BookingRequested = "requested"
	BookingAccepted  = "accepted"
	BookingDeclined  = "declined"
	BookingCancelled = "cancelled"
	BookingPaid      = "paid"
	BookingPickedUp  = "picked_up"
	BookingReturned  = "returned"
	BookingClosed    = "closed"
)

// Deposit sub-state layered onto the booking
const (
	DepositNone              = "none"
	DepositHeld              = "held"
	DepositInDispute         = "in_dispute"
	DepositAwaitingRenter    = "awaiting_renter"
	DepositReleased          = "released"
	DepositPartiallyRefunded = "partially_refunded"
	DepositClaimed           = "claimed"
)

// Pending deposit-manager decisions
const (
	DecisionRelease  = "release"
	DecisionWithhold = "withhold"
)

type Booking struct {
	gorm.Model
	ListingID uint    `json:"listingID" gorm:"index;not null"`
	Listing   Listing `json:"listing" gorm:"foreignKey:ListingID"`
	RenterID  uint    `json:"renterID" gorm:"index;not null"`
	OwnerID   uint    `json:"ownerID" gorm:"index;not null"`

	StartDate    time.Time `json:"startDate" gorm:"not null"`
	EndDate      time.Time `json:"endDate" gorm:"not null"`
	Days         int       `json:"days"`
	RentalAmount float64   `json:"rentalAmount"`
	Status       string    `json:"status" gorm:"size:20;default:requested;index"`

	PaymentMethod string     `json:"paymentMethod" gorm:"size:16"` // cash, card, wallet
	PaidAt        *time.Time `json:"paidAt"`
	PickedUpAt    *time.Time `json:"pickedUpAt"`
	ReturnedAt    *time.Time `json:"returnedAt"`
	ClosedAt      *time.Time `json:"closedAt"`

	// Deposit workflow. DepositHoldRef is the processor authorization id
	// (charge id for card, wallet transaction id for wallet holds).
	DepositAmount        float64    `json:"depositAmount"`
	DepositStatus        string     `json:"depositStatus" gorm:"size:24;default:none;index"`
	DepositHoldRef       string     `json:"depositHoldRef" gorm:"size:64"`
	DepositChargedAmount float64    `json:"depositChargedAmount"`
	DisputeDeadline      *time.Time `json:"disputeDeadline" gorm:"index"`
	OwnerReturnNote      string     `json:"ownerReturnNote" gorm:"size:2000"`

	DMDecision       string     `json:"dmDecision" gorm:"size:16"`
	DMDecisionAmount float64    `json:"dmDecisionAmount"`
	DMDecisionReason string     `json:"dmDecisionReason" gorm:"size:2000"`
	DMDecisionBy     *uint      `json:"dmDecisionBy"`

	RenterResponseDeadline *time.Time `json:"renterResponseDeadline" gorm:"index"`
	RenterRespondedAt      *time.Time `json:"renterRespondedAt"`
	RenterResponseNote     string     `json:"renterResponseNote" gorm:"size:2000"`
}

// DepositSettled reports whether the deposit reached a terminal state.
func (b *Booking) DepositSettled() bool {
	switch b.DepositStatus {
	case DepositNone, DepositReleased, DepositPartiallyRefunded, DepositClaimed:
		return true
	}
	return false
}
