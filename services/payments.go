package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/google/uuid"
	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrHoldNotFound      = errors.New("deposit hold not found")
)

// DepositGateway is the slice of the payment layer the deposit workflow needs:
// turning an authorization into money, or letting it go. Implemented by
// PaymentService in production and by a fake in tests.
type DepositGateway interface {
	// CaptureHold captures amount out of heldAmount and returns the remainder
	// to the payer. amount == heldAmount is a full claim.
	CaptureHold(holdRef string, heldAmount, amount float64, ownerID uint) error
	// ReleaseHold cancels the authorization without moving money.
	ReleaseHold(holdRef string) error
}

// PaymentService fronts the two processors: Omise for cards and the internal
// wallet ledger. Hold references are omise charge ids (chrg_...) or
// wallet:<uuid> for wallet holds.
type PaymentService struct {
	DB       *gorm.DB
	Omise    *omise.Client
	Currency string
}

func NewPaymentService(db *gorm.DB, omc *omise.Client, currency string) *PaymentService {
	return &PaymentService{DB: db, Omise: omc, Currency: currency}
}

// subunits converts a major-unit amount to the processor's integer subunits.
func subunits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

const walletRefPrefix = "wallet:"

// ---------- Card (Omise) ----------

// ChargeRentCard captures the rental amount immediately.
func (ps *PaymentService) ChargeRentCard(bookingID, payerID uint, cardToken string, amount float64) (*omise.Charge, error) {
	if amount <= 0 || cardToken == "" {
		return nil, errors.New("invalid params")
	}
	charge := &omise.Charge{}
	err := ps.Omise.Do(charge, &operations.CreateCharge{
		Amount:   subunits(amount),
		Currency: ps.Currency,
		Card:     cardToken,
		Metadata: map[string]interface{}{"booking_id": fmt.Sprintf("%d", bookingID), "kind": models.PaymentRent},
	})
	if err != nil {
		ps.recordPayment(&bookingID, payerID, "card", models.PaymentRent, amount, "", "failed")
		return nil, err
	}
	ps.recordPayment(&bookingID, payerID, "card", models.PaymentRent, amount, charge.ID, "succeeded")
	return charge, nil
}

// AuthorizeDepositCard places an uncaptured authorization for the deposit and
// returns the charge id as the hold reference.
func (ps *PaymentService) AuthorizeDepositCard(bookingID, payerID uint, cardToken string, amount float64) (string, error) {
	if amount <= 0 || cardToken == "" {
		return "", errors.New("invalid params")
	}
	charge := &omise.Charge{}
	err := ps.Omise.Do(charge, &operations.CreateCharge{
		Amount:      subunits(amount),
		Currency:    ps.Currency,
		Card:        cardToken,
		DontCapture: true,
		Metadata:    map[string]interface{}{"booking_id": fmt.Sprintf("%d", bookingID), "kind": models.PaymentDepositHold},
	})
	if err != nil {
		return "", err
	}
	ps.recordPayment(&bookingID, payerID, "card", models.PaymentDepositHold, amount, charge.ID, "succeeded")
	return charge.ID, nil
}

func (ps *PaymentService) captureCardHold(holdRef string, heldAmount, amount float64, ownerID uint) error {
	charge := &omise.Charge{}
	if err := ps.Omise.Do(charge, &operations.CaptureCharge{ChargeID: holdRef}); err != nil {
		return err
	}
	ps.recordPayment(nil, ownerID, "card", models.PaymentDepositCapture, amount, holdRef, "succeeded")

	// Partial withhold: capture the full authorization, then refund the rest.
	if remainder := heldAmount - amount; remainder > 0.009 {
		refund := &omise.Refund{}
		if err := ps.Omise.Do(refund, &operations.CreateRefund{
			ChargeID: holdRef,
			Amount:   subunits(remainder),
		}); err != nil {
			// The capture went through; surface the refund failure for retry.
			return fmt.Errorf("refund remainder: %w", err)
		}
		ps.recordPayment(nil, ownerID, "card", models.PaymentDepositRefund, remainder, refund.ID, "succeeded")
	}
	return nil
}

func (ps *PaymentService) releaseCardHold(holdRef string) error {
	charge := &omise.Charge{}
	return ps.Omise.Do(charge, &operations.ReverseCharge{ChargeID: holdRef})
}

// ---------- Wallet ----------

// lockForUpdate adds row locking on dialects that support it. The sqlite
// dialect used by tests has no SELECT ... FOR UPDATE.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func walletFor(tx *gorm.DB, userID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := lockForUpdate(tx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w = models.Wallet{UserID: userID}
		if err := tx.Create(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	return &w, err
}

// PayWithWallet debits the rent to the owner's wallet and moves the deposit
// into the renter's held balance, all in one transaction. Returns the deposit
// hold reference ("" when no deposit).
func (ps *PaymentService) PayWithWallet(bookingID, renterID, ownerID uint, rent, deposit float64) (string, error) {
	holdRef := ""
	err := ps.DB.Transaction(func(tx *gorm.DB) error {
		renterWallet, err := walletFor(tx, renterID)
		if err != nil {
			return err
		}
		if renterWallet.Balance < rent+deposit {
			return ErrInsufficientFunds
		}

		ownerWallet, err := walletFor(tx, ownerID)
		if err != nil {
			return err
		}

		bookingRef := fmt.Sprintf("booking:%d", bookingID)
		renterWallet.Balance -= rent
		ownerWallet.Balance += rent
		rows := []models.WalletTransaction{
			{WalletID: renterWallet.ID, Kind: models.WalletDebit, Amount: rent, Ref: bookingRef},
			{WalletID: ownerWallet.ID, Kind: models.WalletCredit, Amount: rent, Ref: bookingRef},
		}

		if deposit > 0 {
			holdRef = walletRefPrefix + uuid.NewString()
			renterWallet.Balance -= deposit
			renterWallet.HeldBalance += deposit
			rows = append(rows, models.WalletTransaction{
				WalletID: renterWallet.ID, Kind: models.WalletHold, Amount: deposit, Ref: holdRef,
			})
		}

		if err := tx.Save(renterWallet).Error; err != nil {
			return err
		}
		if err := tx.Save(ownerWallet).Error; err != nil {
			return err
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		bid := bookingID
		return tx.Create(&models.Payment{
			BookingID: &bid, PayerID: renterID, Method: "wallet", Kind: models.PaymentRent,
			Amount: rent, Currency: ps.Currency, ProcessorRef: bookingRef, Status: "succeeded",
		}).Error
	})
	if err != nil {
		holdRef = ""
	}
	return holdRef, err
}

// TopUpWallet credits a confirmed top-up payment to the user's balance.
func (ps *PaymentService) TopUpWallet(userID uint, amount float64, processorRef string) error {
	if amount <= 0 {
		return errors.New("invalid amount")
	}
	return ps.DB.Transaction(func(tx *gorm.DB) error {
		w, err := walletFor(tx, userID)
		if err != nil {
			return err
		}
		w.Balance += amount
		if err := tx.Save(w).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.WalletTransaction{
			WalletID: w.ID, Kind: models.WalletTopUp, Amount: amount, Ref: processorRef,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Payment{
			PayerID: userID, Method: "card", Kind: models.PaymentWalletTopUp,
			Amount: amount, Currency: ps.Currency, ProcessorRef: processorRef, Status: "succeeded",
		}).Error
	})
}

// ChargeTopUpCard charges the card and credits the wallet on success.
func (ps *PaymentService) ChargeTopUpCard(userID uint, cardToken string, amount float64) error {
	if amount <= 0 || cardToken == "" {
		return errors.New("invalid params")
	}
	charge := &omise.Charge{}
	err := ps.Omise.Do(charge, &operations.CreateCharge{
		Amount:   subunits(amount),
		Currency: ps.Currency,
		Card:     cardToken,
		Metadata: map[string]interface{}{"user_id": fmt.Sprintf("%d", userID), "kind": models.PaymentWalletTopUp},
	})
	if err != nil {
		return err
	}
	return ps.TopUpWallet(userID, amount, charge.ID)
}

func (ps *PaymentService) holdTransaction(tx *gorm.DB, holdRef string) (*models.WalletTransaction, error) {
	var holdTx models.WalletTransaction
	err := tx.Where("ref = ? AND kind = ?", holdRef, models.WalletHold).First(&holdTx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHoldNotFound
	}
	return &holdTx, err
}

func (ps *PaymentService) captureWalletHold(holdRef string, heldAmount, amount float64, ownerID uint) error {
	return ps.DB.Transaction(func(tx *gorm.DB) error {
		holdTx, err := ps.holdTransaction(tx, holdRef)
		if err != nil {
			return err
		}

		var renterWallet models.Wallet
		if err := lockForUpdate(tx).First(&renterWallet, holdTx.WalletID).Error; err != nil {
			return err
		}
		ownerWallet, err := walletFor(tx, ownerID)
		if err != nil {
			return err
		}

		remainder := heldAmount - amount
		renterWallet.HeldBalance -= heldAmount
		renterWallet.Balance += remainder
		ownerWallet.Balance += amount

		rows := []models.WalletTransaction{
			{WalletID: renterWallet.ID, Kind: models.WalletHoldCapture, Amount: amount, Ref: holdRef},
			{WalletID: ownerWallet.ID, Kind: models.WalletCredit, Amount: amount, Ref: holdRef},
		}
		if remainder > 0 {
			rows = append(rows, models.WalletTransaction{
				WalletID: renterWallet.ID, Kind: models.WalletHoldRelease, Amount: remainder, Ref: holdRef,
			})
		}

		if err := tx.Save(&renterWallet).Error; err != nil {
			return err
		}
		if err := tx.Save(ownerWallet).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
}

func (ps *PaymentService) releaseWalletHold(holdRef string) error {
	return ps.DB.Transaction(func(tx *gorm.DB) error {
		holdTx, err := ps.holdTransaction(tx, holdRef)
		if err != nil {
			return err
		}
		var w models.Wallet
		if err := lockForUpdate(tx).First(&w, holdTx.WalletID).Error; err != nil {
			return err
		}
		w.HeldBalance -= holdTx.Amount
		w.Balance += holdTx.Amount
		if err := tx.Save(&w).Error; err != nil {
			return err
		}
		return tx.Create(&models.WalletTransaction{
			WalletID: w.ID, Kind: models.WalletHoldRelease, Amount: holdTx.Amount, Ref: holdRef,
		}).Error
	})
}

// ---------- DepositGateway ----------

func (ps *PaymentService) CaptureHold(holdRef string, heldAmount, amount float64, ownerID uint) error {
	if strings.HasPrefix(holdRef, walletRefPrefix) {
		return ps.captureWalletHold(holdRef, heldAmount, amount, ownerID)
	}
	return ps.captureCardHold(holdRef, heldAmount, amount, ownerID)
}

func (ps *PaymentService) ReleaseHold(holdRef string) error {
	if strings.HasPrefix(holdRef, walletRefPrefix) {
		return ps.releaseWalletHold(holdRef)
	}
	return ps.releaseCardHold(holdRef)
}

func (ps *PaymentService) recordPayment(bookingID *uint, payerID uint, method, kind string, amount float64, ref, status string) {
	p := models.Payment{
		BookingID: bookingID, PayerID: payerID, Method: method, Kind: kind,
		Amount: amount, Currency: ps.Currency, ProcessorRef: ref, Status: status,
	}
	if err := ps.DB.Create(&p).Error; err != nil {
		log.Printf("payments: record %s/%s: %v", method, kind, err)
	}
}
