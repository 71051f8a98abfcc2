package models

import (
	"time"
)

// Deposit audit actions
const (
	AuditDepositHeld     = "deposit_held"
	AuditOwnerReport     = "owner_report"
	AuditDecisionRelease = "decision_release"
	AuditDecisionPending = "decision_withhold_pending"
	AuditRenterResponse  = "renter_response"
	AuditAutoReleased    = "auto_released"
	AuditExecutedRelease = "executed_release"
	AuditExecutedPartial = "executed_partial_capture"
	AuditExecutedClaim   = "executed_full_capture"
)

// DepositAudit is append-only: rows are created by deposit handlers and the
// sweeper and never updated or deleted afterwards.
type DepositAudit struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	BookingID uint      `json:"bookingID" gorm:"index;not null"`
	ActorID   uint      `json:"actorID" gorm:"index"` // 0 for the sweeper
	Action    string    `json:"action" gorm:"size:40;index"`
	Amount    float64   `json:"amount"`
	Note      string    `json:"note" gorm:"size:2000"`
	CreatedAt time.Time `json:"createdAt"`
}
