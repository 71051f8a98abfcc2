package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount     = errors.New("withhold amount must be > 0 and <= the held deposit")
	ErrWrongState        = errors.New("deposit is not in a state that allows this action")
	ErrNotParticipant    = errors.New("user is not a party to this booking")
	ErrWindowClosed      = errors.New("the dispute window for this booking has closed")
	ErrAlreadyResponded  = errors.New("renter already responded to the pending decision")
	ErrNoPendingDecision = errors.New("no pending decision stored on this booking")
)

// DepositService drives the security-deposit state machine:
//
//	none → held → in_dispute → awaiting_renter → released/partially_refunded/claimed
//
// Gateway calls always happen before any row mutation, so a processor failure
// leaves the booking untouched and the operation safe to re-run.
type DepositService struct {
	DB      *gorm.DB
	Gateway DepositGateway
	Notify  *NotificationService

	DisputeWindow  time.Duration // owner report window after return
	ResponseWindow time.Duration // renter response window after a withhold decision

	// Now is overridable in tests.
	Now func() time.Time
}

func NewDepositService(db *gorm.DB, gw DepositGateway, notify *NotificationService, disputeWindow, responseWindow time.Duration) *DepositService {
	return &DepositService{
		DB:             db,
		Gateway:        gw,
		Notify:         notify,
		DisputeWindow:  disputeWindow,
		ResponseWindow: responseWindow,
		Now:            time.Now,
	}
}

// MarkHeld records a successful deposit authorization inside the caller's
// payment transaction. A zero deposit never enters held.
func (ds *DepositService) MarkHeld(tx *gorm.DB, b *models.Booking, holdRef string, actorID uint) error {
	if b.DepositAmount <= 0 {
		return nil
	}
	if b.DepositStatus != models.DepositNone {
		return ErrWrongState
	}
	b.DepositStatus = models.DepositHeld
	b.DepositHoldRef = holdRef
	if err := tx.Model(b).Updates(map[string]interface{}{
		"deposit_status":   models.DepositHeld,
		"deposit_hold_ref": holdRef,
	}).Error; err != nil {
		return err
	}
	return tx.Create(&models.DepositAudit{
		BookingID: b.ID,
		ActorID:   actorID,
		Action:    models.AuditDepositHeld,
		Amount:    b.DepositAmount,
	}).Error
}

// OnBookingReturned opens the owner's dispute window, or closes the booking
// right away when there is nothing held.
func (ds *DepositService) OnBookingReturned(b *models.Booking) error {
	now := ds.Now()
	updates := map[string]interface{}{}
	if b.DepositStatus == models.DepositHeld {
		deadline := now.Add(ds.DisputeWindow)
		b.DisputeDeadline = &deadline
		updates["dispute_deadline"] = deadline
	} else if b.DepositSettled() {
		b.Status = models.BookingClosed
		b.ClosedAt = &now
		updates["status"] = models.BookingClosed
		updates["closed_at"] = now
	}
	if len(updates) == 0 {
		return nil
	}
	return ds.DB.Model(b).Updates(updates).Error
}

// OwnerReport files a dispute against the held deposit within the window.
func (ds *DepositService) OwnerReport(bookingID, ownerID uint, note string) (*models.Booking, error) {
	var b models.Booking
	if err := ds.DB.First(&b, bookingID).Error; err != nil {
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, ErrNotParticipant
	}
	if b.Status != models.BookingReturned || b.DepositStatus != models.DepositHeld {
		return nil, ErrWrongState
	}
	if b.DisputeDeadline != nil && ds.Now().After(*b.DisputeDeadline) {
		return nil, ErrWindowClosed
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&b).Updates(map[string]interface{}{
			"deposit_status":    models.DepositInDispute,
			"owner_return_note": note,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.DepositAudit{
			BookingID: b.ID,
			ActorID:   ownerID,
			Action:    models.AuditOwnerReport,
			Amount:    b.DepositAmount,
			Note:      note,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	b.DepositStatus = models.DepositInDispute
	b.OwnerReturnNote = note

	ds.notify(b.RenterID, "deposit_dispute", "Deposit dispute opened",
		fmt.Sprintf("The owner reported an issue with booking #%d. A deposit manager will review it.", b.ID), b.ID)
	ds.Notify.NotifyAdmins("deposit_dispute", "Deposit dispute opened",
		fmt.Sprintf("Booking #%d has a new deposit dispute.", b.ID), "booking", b.ID)
	return &b, nil
}

// Decide applies a deposit-manager decision to a held or disputed deposit.
// release cancels the hold immediately and is idempotent when the deposit is
// already released. withhold stores the pending decision and opens the renter
// response window; nothing is captured yet.
func (ds *DepositService) Decide(bookingID, managerID uint, decision string, amount float64, reason string) (*models.Booking, error) {
	var b models.Booking
	if err := ds.DB.First(&b, bookingID).Error; err != nil {
		return nil, err
	}

	switch decision {
	case models.DecisionRelease:
		if b.DepositStatus == models.DepositReleased {
			return &b, nil // already done, no-op
		}
		if b.DepositStatus != models.DepositHeld && b.DepositStatus != models.DepositInDispute {
			return nil, ErrWrongState
		}
		if err := ds.Gateway.ReleaseHold(b.DepositHoldRef); err != nil {
			return nil, err
		}
		now := ds.Now()
		err := ds.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&b).Updates(map[string]interface{}{
				"deposit_status":         models.DepositReleased,
				"deposit_charged_amount": 0,
				"status":                 models.BookingClosed,
				"closed_at":              now,
			}).Error; err != nil {
				return err
			}
			return tx.Create(&models.DepositAudit{
				BookingID: b.ID,
				ActorID:   managerID,
				Action:    models.AuditDecisionRelease,
				Amount:    b.DepositAmount,
				Note:      reason,
			}).Error
		})
		if err != nil {
			return nil, err
		}
		b.DepositStatus = models.DepositReleased
		ds.notify(b.RenterID, "deposit_released", "Deposit released",
			fmt.Sprintf("Your deposit for booking #%d was fully released.", b.ID), b.ID)
		ds.notify(b.OwnerID, "deposit_released", "Deposit released",
			fmt.Sprintf("The deposit for booking #%d was released to the renter.", b.ID), b.ID)
		return &b, nil

	case models.DecisionWithhold:
		if b.DepositStatus != models.DepositHeld && b.DepositStatus != models.DepositInDispute {
			return nil, ErrWrongState
		}
		if amount <= 0 || amount > b.DepositAmount {
			return nil, ErrInvalidAmount
		}
		deadline := ds.Now().Add(ds.ResponseWindow)
		err := ds.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&b).Updates(map[string]interface{}{
				"deposit_status":           models.DepositAwaitingRenter,
				"dm_decision":              models.DecisionWithhold,
				"dm_decision_amount":       amount,
				"dm_decision_reason":       reason,
				"dm_decision_by":           managerID,
				"renter_response_deadline": deadline,
			}).Error; err != nil {
				return err
			}
			return tx.Create(&models.DepositAudit{
				BookingID: b.ID,
				ActorID:   managerID,
				Action:    models.AuditDecisionPending,
				Amount:    amount,
				Note:      reason,
			}).Error
		})
		if err != nil {
			return nil, err
		}
		b.DepositStatus = models.DepositAwaitingRenter
		b.DMDecision = models.DecisionWithhold
		b.DMDecisionAmount = amount
		b.RenterResponseDeadline = &deadline
		ds.notify(b.RenterID, "deposit_withhold_pending", "Deposit decision pending",
			fmt.Sprintf("A manager intends to withhold %.2f from your deposit for booking #%d. You have until %s to respond with evidence.",
				amount, b.ID, deadline.Format(time.RFC1123)), b.ID)
		return &b, nil
	}
	return nil, fmt.Errorf("unknown decision %q", decision)
}

// RenterRespond records the renter's one allowed response to a pending
// withhold decision. It does not resolve the dispute.
func (ds *DepositService) RenterRespond(bookingID, renterID uint, note string) (*models.Booking, error) {
	var b models.Booking
	if err := ds.DB.First(&b, bookingID).Error; err != nil {
		return nil, err
	}
	if b.RenterID != renterID {
		return nil, ErrNotParticipant
	}
	if b.DepositStatus != models.DepositAwaitingRenter {
		return nil, ErrWrongState
	}
	if b.RenterRespondedAt != nil {
		return nil, ErrAlreadyResponded
	}

	now := ds.Now()
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&b).Updates(map[string]interface{}{
			"renter_responded_at":  now,
			"renter_response_note": note,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.DepositAudit{
			BookingID: b.ID,
			ActorID:   renterID,
			Action:    models.AuditRenterResponse,
			Note:      note,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	b.RenterRespondedAt = &now
	ds.Notify.NotifyAdmins("deposit_renter_response", "Renter responded to deposit decision",
		fmt.Sprintf("The renter responded on booking #%d before the deadline.", b.ID), "booking", b.ID)
	return &b, nil
}

// Execute applies the stored pending decision immediately (explicit manager
// action before the window expires).
func (ds *DepositService) Execute(bookingID, actorID uint) (*models.Booking, error) {
	var b models.Booking
	if err := ds.DB.First(&b, bookingID).Error; err != nil {
		return nil, err
	}
	if b.DepositStatus != models.DepositAwaitingRenter {
		return nil, ErrWrongState
	}
	if err := ds.applyPendingDecision(&b, actorID, false); err != nil {
		return nil, err
	}
	return &b, nil
}

// SweepExpired applies pending decisions whose renter response window has
// elapsed. Per booking the gateway call is the only fallible step: on failure
// the row is skipped untouched and the next run retries it.
func (ds *DepositService) SweepExpired(limit int) (processed, skipped int) {
	var expired []models.Booking
	err := ds.DB.
		Where("deposit_status = ? AND renter_response_deadline < ?", models.DepositAwaitingRenter, ds.Now()).
		Order("renter_response_deadline").
		Limit(limit).
		Find(&expired).Error
	if err != nil {
		log.Printf("deposit sweeper: scan: %v", err)
		return 0, 0
	}

	for i := range expired {
		b := expired[i]
		if err := ds.applyPendingDecision(&b, 0, true); err != nil {
			log.Printf("deposit sweeper: booking %d skipped: %v", b.ID, err)
			skipped++
			continue
		}
		processed++
	}
	return processed, skipped
}

// AutoRelease releases held deposits whose dispute window passed without an
// owner report.
func (ds *DepositService) AutoRelease(limit int) (processed, skipped int) {
	var stale []models.Booking
	err := ds.DB.
		Where("status = ? AND deposit_status = ? AND dispute_deadline < ?",
			models.BookingReturned, models.DepositHeld, ds.Now()).
		Order("dispute_deadline").
		Limit(limit).
		Find(&stale).Error
	if err != nil {
		log.Printf("deposit auto-release: scan: %v", err)
		return 0, 0
	}

	for i := range stale {
		b := stale[i]
		if err := ds.Gateway.ReleaseHold(b.DepositHoldRef); err != nil {
			log.Printf("deposit auto-release: booking %d skipped: %v", b.ID, err)
			skipped++
			continue
		}
		now := ds.Now()
		flipped := false
		err := ds.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Booking{}).
				Where("id = ? AND deposit_status = ?", b.ID, models.DepositHeld).
				Updates(map[string]interface{}{
					"deposit_status":         models.DepositReleased,
					"deposit_charged_amount": 0,
					"status":                 models.BookingClosed,
					"closed_at":              now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil // raced with another resolution path
			}
			flipped = true
			return tx.Create(&models.DepositAudit{
				BookingID: b.ID,
				Action:    models.AuditAutoReleased,
				Amount:    b.DepositAmount,
			}).Error
		})
		if err != nil {
			log.Printf("deposit auto-release: booking %d: %v", b.ID, err)
			skipped++
			continue
		}
		if !flipped {
			// Whoever settled the row already notified both parties.
			continue
		}
		processed++
		ds.notify(b.RenterID, "deposit_released", "Deposit released",
			fmt.Sprintf("Your deposit for booking #%d was released automatically.", b.ID), b.ID)
		ds.notify(b.OwnerID, "deposit_released", "Deposit released",
			fmt.Sprintf("The dispute window for booking #%d closed; the deposit was released.", b.ID), b.ID)
	}
	return processed, skipped
}

// applyPendingDecision settles an awaiting_renter booking. Gateway first, then
// a guarded status flip so a concurrent or repeated run settles exactly once.
func (ds *DepositService) applyPendingDecision(b *models.Booking, actorID uint, fromSweeper bool) error {
	if b.DMDecision == "" {
		return ErrNoPendingDecision
	}

	var (
		finalStatus string
		charged     float64
		auditAction string
	)
	switch b.DMDecision {
	case models.DecisionRelease:
		if err := ds.Gateway.ReleaseHold(b.DepositHoldRef); err != nil {
			return err
		}
		finalStatus = models.DepositReleased
		auditAction = models.AuditExecutedRelease
	case models.DecisionWithhold:
		if b.DMDecisionAmount <= 0 || b.DMDecisionAmount > b.DepositAmount {
			return ErrInvalidAmount
		}
		if err := ds.Gateway.CaptureHold(b.DepositHoldRef, b.DepositAmount, b.DMDecisionAmount, b.OwnerID); err != nil {
			return err
		}
		charged = b.DMDecisionAmount
		if b.DepositAmount-charged < 0.01 {
			finalStatus = models.DepositClaimed
			auditAction = models.AuditExecutedClaim
		} else {
			finalStatus = models.DepositPartiallyRefunded
			auditAction = models.AuditExecutedPartial
		}
	default:
		return fmt.Errorf("unknown stored decision %q", b.DMDecision)
	}

	now := ds.Now()
	flipped := false
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Booking{}).
			Where("id = ? AND deposit_status = ?", b.ID, models.DepositAwaitingRenter).
			Updates(map[string]interface{}{
				"deposit_status":         finalStatus,
				"deposit_charged_amount": charged,
				"status":                 models.BookingClosed,
				"closed_at":              now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already settled by someone else
		}
		flipped = true
		return tx.Create(&models.DepositAudit{
			BookingID: b.ID,
			ActorID:   actorID,
			Action:    auditAction,
			Amount:    charged,
			Note:      b.DMDecisionReason,
		}).Error
	})
	if err != nil {
		return err
	}
	if !flipped {
		// Lost the race: take the winner's final state and stay quiet, the
		// winning path already notified both parties.
		return ds.DB.First(b, b.ID).Error
	}
	b.DepositStatus = finalStatus
	b.DepositChargedAmount = charged

	switch finalStatus {
	case models.DepositReleased:
		ds.notify(b.RenterID, "deposit_released", "Deposit released",
			fmt.Sprintf("Your deposit for booking #%d was fully released.", b.ID), b.ID)
		ds.notify(b.OwnerID, "deposit_released", "Deposit released",
			fmt.Sprintf("The deposit for booking #%d was released to the renter.", b.ID), b.ID)
	case models.DepositClaimed:
		ds.notify(b.RenterID, "deposit_claimed", "Deposit claimed",
			fmt.Sprintf("Your full deposit of %.2f for booking #%d was charged.", charged, b.ID), b.ID)
		ds.notify(b.OwnerID, "deposit_claimed", "Deposit claimed",
			fmt.Sprintf("The full deposit for booking #%d was charged in your favor.", b.ID), b.ID)
	case models.DepositPartiallyRefunded:
		ds.notify(b.RenterID, "deposit_partial", "Deposit partially withheld",
			fmt.Sprintf("%.2f of your deposit for booking #%d was charged; the rest was refunded.", charged, b.ID), b.ID)
		ds.notify(b.OwnerID, "deposit_partial", "Deposit partially withheld",
			fmt.Sprintf("%.2f of the deposit for booking #%d was charged in your favor.", charged, b.ID), b.ID)
	}
	if fromSweeper {
		ds.Notify.NotifyAdmins("deposit_auto_executed", "Deposit decision auto-executed",
			fmt.Sprintf("The pending decision on booking #%d was executed after the response window expired.", b.ID), "booking", b.ID)
	}
	return nil
}

func (ds *DepositService) notify(userID uint, ntype, title, body string, bookingID uint) {
	ds.Notify.Notify(userID, ntype, title, body, "booking", bookingID)
}
