package models

import (
	"gorm.io/gorm"
)

// Wallet is the alternate processor: rent debits and deposit holds move money
// between Balance and HeldBalance instead of going through the card gateway.
type Wallet struct {
	gorm.Model
	UserID      uint    `json:"userID" gorm:"uniqueIndex;not null"`
	Balance     float64 `json:"balance" gorm:"not null;default:0"`
	HeldBalance float64 `json:"heldBalance" gorm:"not null;default:0"`
}

// Wallet transaction kinds
const (
	WalletTopUp       = "topup"
	WalletDebit       = "debit"
	WalletHold        = "hold"
	WalletHoldRelease = "hold_release"
	WalletHoldCapture = "hold_capture"
	WalletCredit      = "credit"
)

type WalletTransaction struct {
	gorm.Model
	WalletID uint    `json:"walletID" gorm:"index;not null"`
	Kind     string  `json:"kind" gorm:"size:16;index"`
	Amount   float64 `json:"amount"`
	Ref      string  `json:"ref" gorm:"size:64;index"` // hold refs carry the wallet: prefix
	Note     string  `json:"note" gorm:"size:255"`
}
