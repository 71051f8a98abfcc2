package services

import (
	"errors"
	"testing"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps every query on the same in-memory database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Listing{}, &models.Booking{}, &models.DepositAudit{},
		&models.Payment{}, &models.Wallet{}, &models.WalletTransaction{},
		&models.SupportTicket{}, &models.SupportMessage{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type gatewayCall struct {
	op     string // capture | release
	ref    string
	amount float64
}

// fakeGateway records calls and can be told to fail the next one. afterCall,
// when set, runs after a successful call and before the service resumes.
type fakeGateway struct {
	calls     []gatewayCall
	nextErr   error
	afterCall func(op string)
}

func (g *fakeGateway) CaptureHold(holdRef string, heldAmount, amount float64, ownerID uint) error {
	if g.nextErr != nil {
		err := g.nextErr
		g.nextErr = nil
		return err
	}
	g.calls = append(g.calls, gatewayCall{op: "capture", ref: holdRef, amount: amount})
	if g.afterCall != nil {
		g.afterCall("capture")
	}
	return nil
}

func (g *fakeGateway) ReleaseHold(holdRef string) error {
	if g.nextErr != nil {
		err := g.nextErr
		g.nextErr = nil
		return err
	}
	g.calls = append(g.calls, gatewayCall{op: "release", ref: holdRef})
	if g.afterCall != nil {
		g.afterCall("release")
	}
	return nil
}

func newDepositHarness(t *testing.T) (*DepositService, *fakeGateway, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{}
	ds := NewDepositService(db, gw, NewNotificationService(db, nil), 48*time.Hour, 24*time.Hour)
	return ds, gw, db
}

func seedBooking(t *testing.T, db *gorm.DB, deposit float64, status, depositStatus string) *models.Booking {
	t.Helper()
	b := models.Booking{
		ListingID:     1,
		RenterID:      10,
		OwnerID:       20,
		StartDate:     time.Now().AddDate(0, 0, -5),
		EndDate:       time.Now().AddDate(0, 0, -2),
		Days:          3,
		RentalAmount:  60,
		Status:        status,
		DepositAmount: deposit,
		DepositStatus: depositStatus,
		DepositHoldRef: func() string {
			if depositStatus == models.DepositNone {
				return ""
			}
			return "chrg_test_1"
		}(),
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return &b
}

func reload(t *testing.T, db *gorm.DB, id uint) *models.Booking {
	t.Helper()
	var b models.Booking
	if err := db.First(&b, id).Error; err != nil {
		t.Fatalf("reload booking %d: %v", id, err)
	}
	return &b
}

func auditActions(t *testing.T, db *gorm.DB, bookingID uint) []string {
	t.Helper()
	var rows []models.DepositAudit
	if err := db.Where("booking_id = ?", bookingID).Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	actions := make([]string, 0, len(rows))
	for _, r := range rows {
		actions = append(actions, r.Action)
	}
	return actions
}

func TestMarkHeldZeroDepositStaysNone(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 0, models.BookingAccepted, models.DepositNone)

	if err := ds.MarkHeld(db, b, "chrg_x", b.RenterID); err != nil {
		t.Fatalf("MarkHeld: %v", err)
	}
	if got := reload(t, db, b.ID).DepositStatus; got != models.DepositNone {
		t.Fatalf("zero deposit entered %q, want none", got)
	}
}

func TestMarkHeldRejectsDoubleHold(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingAccepted, models.DepositNone)

	if err := ds.MarkHeld(db, b, "chrg_1", b.RenterID); err != nil {
		t.Fatalf("first MarkHeld: %v", err)
	}
	if err := ds.MarkHeld(db, b, "chrg_2", b.RenterID); !errors.Is(err, ErrWrongState) {
		t.Fatalf("second MarkHeld = %v, want ErrWrongState", err)
	}
	if got := reload(t, db, b.ID).DepositHoldRef; got != "chrg_1" {
		t.Fatalf("hold ref overwritten to %q", got)
	}
}

func TestOwnerReportChecks(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	deadline := time.Now().Add(time.Hour)
	db.Model(b).Update("dispute_deadline", deadline)

	if _, err := ds.OwnerReport(b.ID, 999, "scratched"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger report = %v, want ErrNotParticipant", err)
	}

	if _, err := ds.OwnerReport(b.ID, b.OwnerID, "scratched"); err != nil {
		t.Fatalf("owner report: %v", err)
	}
	got := reload(t, db, b.ID)
	if got.DepositStatus != models.DepositInDispute {
		t.Fatalf("deposit status = %q, want in_dispute", got.DepositStatus)
	}
	if got.OwnerReturnNote != "scratched" {
		t.Fatalf("note = %q", got.OwnerReturnNote)
	}
}

func TestOwnerReportAfterWindowClosed(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	deadline := time.Now().Add(-time.Minute)
	db.Model(b).Update("dispute_deadline", deadline)

	if _, err := ds.OwnerReport(b.ID, b.OwnerID, "late"); !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("late report = %v, want ErrWindowClosed", err)
	}
}

func TestDecideWithholdAmountValidation(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositInDispute)

	for _, amount := range []float64{0, -5, 100.01, 250} {
		if _, err := ds.Decide(b.ID, 30, models.DecisionWithhold, amount, "damage"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("withhold %.2f = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if got := reload(t, db, b.ID).DepositStatus; got != models.DepositInDispute {
		t.Fatalf("rejected decision still moved state to %q", got)
	}
}

func TestDecideReleaseIsIdempotent(t *testing.T) {
	ds, gw, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)

	if _, err := ds.Decide(b.ID, 30, models.DecisionRelease, 0, ""); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := ds.Decide(b.ID, 30, models.DecisionRelease, 0, ""); err != nil {
		t.Fatalf("repeat release: %v", err)
	}

	if len(gw.calls) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(gw.calls))
	}
	got := reload(t, db, b.ID)
	if got.DepositStatus != models.DepositReleased || got.Status != models.BookingClosed {
		t.Fatalf("state = %q/%q, want released/closed", got.DepositStatus, got.Status)
	}
}

func TestDecideReleaseGatewayFailureLeavesStateUntouched(t *testing.T) {
	ds, gw, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)

	gw.nextErr = errors.New("processor down")
	if _, err := ds.Decide(b.ID, 30, models.DecisionRelease, 0, ""); err == nil {
		t.Fatal("expected gateway error")
	}
	if got := reload(t, db, b.ID).DepositStatus; got != models.DepositHeld {
		t.Fatalf("state moved to %q despite gateway failure", got)
	}

	// Retry succeeds.
	if _, err := ds.Decide(b.ID, 30, models.DecisionRelease, 0, ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := reload(t, db, b.ID).DepositStatus; got != models.DepositReleased {
		t.Fatalf("retry left state %q", got)
	}
}

// Full partial-withhold walkthrough: deposit 100, owner reports a scratch,
// manager withholds 40, renter responds, manager executes.
func TestPartialWithholdLifecycle(t *testing.T) {
	ds, gw, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	deadline := time.Now().Add(time.Hour)
	db.Model(b).Update("dispute_deadline", deadline)

	if _, err := ds.OwnerReport(b.ID, b.OwnerID, "scratch on the lens"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := ds.Decide(b.ID, 30, models.DecisionWithhold, 40, "repair quote"); err != nil {
		t.Fatalf("decide: %v", err)
	}

	got := reload(t, db, b.ID)
	if got.DepositStatus != models.DepositAwaitingRenter {
		t.Fatalf("status = %q, want awaiting_renter", got.DepositStatus)
	}
	if got.RenterResponseDeadline == nil {
		t.Fatal("no renter response deadline set")
	}
	if len(gw.calls) != 0 {
		t.Fatalf("nothing should be captured before execution, got %d calls", len(gw.calls))
	}

	if _, err := ds.RenterRespond(b.ID, b.RenterID, "it was already there"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := ds.RenterRespond(b.ID, b.RenterID, "again"); !errors.Is(err, ErrAlreadyResponded) {
		t.Fatalf("second respond = %v, want ErrAlreadyResponded", err)
	}

	if _, err := ds.Execute(b.ID, 30); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got = reload(t, db, b.ID)
	if got.DepositStatus != models.DepositPartiallyRefunded {
		t.Fatalf("final status = %q, want partially_refunded", got.DepositStatus)
	}
	if got.DepositChargedAmount != 40 {
		t.Fatalf("charged = %.2f, want 40", got.DepositChargedAmount)
	}
	if got.Status != models.BookingClosed {
		t.Fatalf("booking status = %q, want closed", got.Status)
	}
	if len(gw.calls) != 1 || gw.calls[0].op != "capture" || gw.calls[0].amount != 40 {
		t.Fatalf("gateway calls = %+v", gw.calls)
	}

	want := []string{
		models.AuditOwnerReport,
		models.AuditDecisionPending,
		models.AuditRenterResponse,
		models.AuditExecutedPartial,
	}
	gotActions := auditActions(t, db, b.ID)
	if len(gotActions) != len(want) {
		t.Fatalf("audit trail = %v, want %v", gotActions, want)
	}
	for i := range want {
		if gotActions[i] != want[i] {
			t.Fatalf("audit[%d] = %q, want %q", i, gotActions[i], want[i])
		}
	}
}

func TestFullWithholdEndsClaimed(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositInDispute)

	if _, err := ds.Decide(b.ID, 30, models.DecisionWithhold, 100, "total loss"); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if _, err := ds.Execute(b.ID, 30); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := reload(t, db, b.ID)
	if got.DepositStatus != models.DepositClaimed {
		t.Fatalf("status = %q, want claimed", got.DepositStatus)
	}
	if got.DepositChargedAmount != 100 {
		t.Fatalf("charged = %.2f, want 100", got.DepositChargedAmount)
	}
}

// When another worker settles the booking between the gateway call and the
// guarded status flip, the loser must not notify anyone or write audit rows.
func TestExecuteRaceLoserStaysQuiet(t *testing.T) {
	ds, gw, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositAwaitingRenter)
	db.Model(b).Update("dm_decision", models.DecisionRelease)

	gw.afterCall = func(string) {
		db.Model(&models.Booking{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"deposit_status": models.DepositReleased,
			"status":         models.BookingClosed,
		})
	}

	got, err := ds.Execute(b.ID, 30)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.DepositStatus != models.DepositReleased {
		t.Fatalf("status = %q, want released", got.DepositStatus)
	}
	if actions := auditActions(t, db, b.ID); len(actions) != 0 {
		t.Fatalf("race loser wrote audit rows: %v", actions)
	}
	var notes int64
	db.Model(&models.Notification{}).Count(&notes)
	if notes != 0 {
		t.Fatalf("race loser sent %d notifications", notes)
	}
}

func TestSweepExpiredSkipsGatewayFailuresAndRetries(t *testing.T) {
	ds, gw, db := newDepositHarness(t)

	past := time.Now().Add(-time.Hour)
	mk := func() *models.Booking {
		b := seedBooking(t, db, 100, models.BookingReturned, models.DepositAwaitingRenter)
		db.Model(b).Updates(map[string]interface{}{
			"dm_decision":              models.DecisionWithhold,
			"dm_decision_amount":       100.0,
			"renter_response_deadline": past,
		})
		return b
	}
	b1 := mk()
	b2 := mk()

	gw.nextErr = errors.New("processor down")
	processed, skipped := ds.SweepExpired(10)
	if processed != 1 || skipped != 1 {
		t.Fatalf("sweep = %d processed / %d skipped, want 1/1", processed, skipped)
	}

	settled, pending := reload(t, db, b1.ID), reload(t, db, b2.ID)
	if settled.DepositStatus == models.DepositAwaitingRenter {
		settled, pending = pending, settled
	}
	if settled.DepositStatus != models.DepositClaimed {
		t.Fatalf("settled status = %q, want claimed", settled.DepositStatus)
	}
	if pending.DepositStatus != models.DepositAwaitingRenter {
		t.Fatalf("skipped booking moved to %q", pending.DepositStatus)
	}

	// Next run picks up the skipped row; the settled one is no longer scanned.
	processed, skipped = ds.SweepExpired(10)
	if processed != 1 || skipped != 0 {
		t.Fatalf("second sweep = %d/%d, want 1/0", processed, skipped)
	}

	for _, b := range []*models.Booking{settled, pending} {
		var n int64
		db.Model(&models.DepositAudit{}).
			Where("booking_id = ? AND action = ?", b.ID, models.AuditExecutedClaim).
			Count(&n)
		if n != 1 {
			t.Fatalf("booking %d has %d execution audit rows, want exactly 1", b.ID, n)
		}
	}
}

func TestSweepExpiredIgnoresFutureDeadlines(t *testing.T) {
	ds, _, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositAwaitingRenter)
	db.Model(b).Updates(map[string]interface{}{
		"dm_decision":              models.DecisionWithhold,
		"dm_decision_amount":       50.0,
		"renter_response_deadline": time.Now().Add(time.Hour),
	})

	processed, skipped := ds.SweepExpired(10)
	if processed != 0 || skipped != 0 {
		t.Fatalf("sweep touched a live window: %d/%d", processed, skipped)
	}
}

func TestAutoReleaseAfterQuietWindow(t *testing.T) {
	ds, gw, db := newDepositHarness(t)

	quiet := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	db.Model(quiet).Update("dispute_deadline", time.Now().Add(-time.Minute))

	open := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	db.Model(open).Update("dispute_deadline", time.Now().Add(time.Hour))

	processed, skipped := ds.AutoRelease(10)
	if processed != 1 || skipped != 0 {
		t.Fatalf("auto-release = %d/%d, want 1/0", processed, skipped)
	}

	got := reload(t, db, quiet.ID)
	if got.DepositStatus != models.DepositReleased || got.Status != models.BookingClosed {
		t.Fatalf("quiet booking = %q/%q, want released/closed", got.DepositStatus, got.Status)
	}
	if reload(t, db, open.ID).DepositStatus != models.DepositHeld {
		t.Fatal("open-window booking was released early")
	}
	if len(gw.calls) != 1 || gw.calls[0].op != "release" {
		t.Fatalf("gateway calls = %+v", gw.calls)
	}
}

func TestAutoReleaseRaceLoserStaysQuiet(t *testing.T) {
	ds, gw, db := newDepositHarness(t)
	b := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	db.Model(b).Update("dispute_deadline", time.Now().Add(-time.Minute))

	// Simulate a manager resolving the dispute while the sweeper runs.
	gw.afterCall = func(string) {
		db.Model(&models.Booking{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"deposit_status": models.DepositReleased,
			"status":         models.BookingClosed,
		})
	}

	processed, skipped := ds.AutoRelease(10)
	if processed != 0 || skipped != 0 {
		t.Fatalf("auto-release = %d/%d, want 0/0", processed, skipped)
	}
	if actions := auditActions(t, db, b.ID); len(actions) != 0 {
		t.Fatalf("race loser wrote audit rows: %v", actions)
	}
	var notes int64
	db.Model(&models.Notification{}).Count(&notes)
	if notes != 0 {
		t.Fatalf("race loser sent %d notifications", notes)
	}
}

func TestOnBookingReturnedSetsDeadlineOrCloses(t *testing.T) {
	ds, _, db := newDepositHarness(t)

	held := seedBooking(t, db, 100, models.BookingReturned, models.DepositHeld)
	if err := ds.OnBookingReturned(held); err != nil {
		t.Fatalf("returned with hold: %v", err)
	}
	if reload(t, db, held.ID).DisputeDeadline == nil {
		t.Fatal("no dispute deadline set for held deposit")
	}

	none := seedBooking(t, db, 0, models.BookingReturned, models.DepositNone)
	if err := ds.OnBookingReturned(none); err != nil {
		t.Fatalf("returned without deposit: %v", err)
	}
	if got := reload(t, db, none.ID).Status; got != models.BookingClosed {
		t.Fatalf("no-deposit booking status = %q, want closed", got)
	}
}
