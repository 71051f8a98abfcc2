package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"gorm.io/gorm"
)

func newPaymentHarness(t *testing.T) (*PaymentService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	// Card paths need the Omise client; the wallet paths under test do not.
	return NewPaymentService(db, nil, "cad"), db
}

func walletOf(t *testing.T, db *gorm.DB, userID uint) models.Wallet {
	t.Helper()
	var w models.Wallet
	if err := db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		t.Fatalf("wallet for user %d: %v", userID, err)
	}
	return w
}

func TestTopUpWallet(t *testing.T) {
	ps, db := newPaymentHarness(t)

	if err := ps.TopUpWallet(10, 150, "chrg_topup_1"); err != nil {
		t.Fatalf("topup: %v", err)
	}
	if err := ps.TopUpWallet(10, -5, "chrg_topup_2"); err == nil {
		t.Fatal("negative topup accepted")
	}

	w := walletOf(t, db, 10)
	if w.Balance != 150 {
		t.Fatalf("balance = %.2f, want 150", w.Balance)
	}

	var p models.Payment
	if err := db.Where("payer_id = ? AND kind = ?", 10, models.PaymentWalletTopUp).First(&p).Error; err != nil {
		t.Fatalf("payment row: %v", err)
	}
	if p.ProcessorRef != "chrg_topup_1" {
		t.Fatalf("processor ref = %q", p.ProcessorRef)
	}
}

func TestPayWithWalletInsufficientFunds(t *testing.T) {
	ps, db := newPaymentHarness(t)
	if err := ps.TopUpWallet(10, 50, "chrg_1"); err != nil {
		t.Fatalf("topup: %v", err)
	}

	if _, err := ps.PayWithWallet(1, 10, 20, 60, 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Nothing moved.
	if w := walletOf(t, db, 10); w.Balance != 50 || w.HeldBalance != 0 {
		t.Fatalf("wallet mutated: %+v", w)
	}
}

func TestPayWithWalletMovesRentAndHoldsDeposit(t *testing.T) {
	ps, db := newPaymentHarness(t)
	if err := ps.TopUpWallet(10, 200, "chrg_1"); err != nil {
		t.Fatalf("topup: %v", err)
	}

	holdRef, err := ps.PayWithWallet(1, 10, 20, 60, 100)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !strings.HasPrefix(holdRef, walletRefPrefix) {
		t.Fatalf("hold ref %q missing wallet prefix", holdRef)
	}

	renter := walletOf(t, db, 10)
	if renter.Balance != 40 || renter.HeldBalance != 100 {
		t.Fatalf("renter wallet = %.2f/%.2f, want 40/100", renter.Balance, renter.HeldBalance)
	}
	owner := walletOf(t, db, 20)
	if owner.Balance != 60 {
		t.Fatalf("owner balance = %.2f, want 60", owner.Balance)
	}
}

func TestCaptureWalletHoldPartial(t *testing.T) {
	ps, db := newPaymentHarness(t)
	if err := ps.TopUpWallet(10, 200, "chrg_1"); err != nil {
		t.Fatalf("topup: %v", err)
	}
	holdRef, err := ps.PayWithWallet(1, 10, 20, 60, 100)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	// Withhold 40 of the 100 held: owner gains 40, renter gets 60 back.
	if err := ps.CaptureHold(holdRef, 100, 40, 20); err != nil {
		t.Fatalf("capture: %v", err)
	}

	renter := walletOf(t, db, 10)
	if renter.HeldBalance != 0 {
		t.Fatalf("held balance = %.2f, want 0", renter.HeldBalance)
	}
	if renter.Balance != 100 { // 40 after pay + 60 refunded
		t.Fatalf("renter balance = %.2f, want 100", renter.Balance)
	}
	owner := walletOf(t, db, 20)
	if owner.Balance != 100 { // 60 rent + 40 captured
		t.Fatalf("owner balance = %.2f, want 100", owner.Balance)
	}
}

func TestReleaseWalletHold(t *testing.T) {
	ps, db := newPaymentHarness(t)
	if err := ps.TopUpWallet(10, 200, "chrg_1"); err != nil {
		t.Fatalf("topup: %v", err)
	}
	holdRef, err := ps.PayWithWallet(1, 10, 20, 60, 100)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	if err := ps.ReleaseHold(holdRef); err != nil {
		t.Fatalf("release: %v", err)
	}

	renter := walletOf(t, db, 10)
	if renter.Balance != 140 || renter.HeldBalance != 0 {
		t.Fatalf("renter wallet = %.2f/%.2f, want 140/0", renter.Balance, renter.HeldBalance)
	}
}

func TestReleaseUnknownHold(t *testing.T) {
	ps, _ := newPaymentHarness(t)
	if err := ps.ReleaseHold(walletRefPrefix + "missing"); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("err = %v, want ErrHoldNotFound", err)
	}
}
