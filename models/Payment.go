package models

import (
	"gorm.io/gorm"
)

// Payment kinds
const (
	PaymentRent           = "rent"
	PaymentDepositHold    = "deposit_hold"
	PaymentDepositCapture = "deposit_capture"
	PaymentDepositRefund  = "deposit_refund"
	PaymentWalletTopUp    = "wallet_topup"
)

type Payment struct {
	gorm.Model
	BookingID    *uint   `json:"bookingID" gorm:"index"`
	PayerID      uint    `json:"payerID" gorm:"index;not null"`
	Method       string  `json:"method" gorm:"size:16"` // cash, card, wallet
	Kind         string  `json:"kind" gorm:"size:24;index"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency" gorm:"size:8"`
	ProcessorRef string  `json:"processorRef" gorm:"size:64;index"`
	Status       string  `json:"status" gorm:"size:16;default:pending;index"` // pending, succeeded, failed, reversed
}
