package services

import (
	"errors"
	"testing"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"gorm.io/gorm"
)

func newSupportHarness(t *testing.T) (*SupportService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSupportService(db, NewNotificationService(db, nil)), db
}

func TestCreateTicketDefaultsToCS(t *testing.T) {
	ss, db := newSupportHarness(t)

	ticket, err := ss.Create(10, "", "Refund question", "Where is my refund?", "", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Queue != models.QueueCS {
		t.Fatalf("queue = %q, want cs", ticket.Queue)
	}
	if ticket.Status != models.TicketNew || !ticket.StaffUnread {
		t.Fatalf("ticket = %+v", ticket)
	}

	var messages []models.SupportMessage
	db.Where("ticket_id = ?", ticket.ID).Find(&messages)
	if len(messages) != 1 || messages[0].SenderRole != "user" {
		t.Fatalf("first message = %+v", messages)
	}

	// The thread must load through the association as well.
	var loaded models.SupportTicket
	if err := db.Preload("Messages").First(&loaded, ticket.ID).Error; err != nil {
		t.Fatalf("preload messages: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Body != "Where is my refund?" {
		t.Fatalf("preloaded thread = %+v", loaded.Messages)
	}
}

func TestResolvedTicketIsImmutable(t *testing.T) {
	ss, _ := newSupportHarness(t)

	ticket, err := ss.Create(10, models.QueueCS, "Subject", "Body", "", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ss.Resolve(models.QueueCS, ticket.ID, 30); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := ss.UserReply(ticket.ID, 10, "one more thing"); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("user reply = %v, want ErrTicketResolved", err)
	}
	if _, err := ss.StaffReply(models.QueueCS, ticket.ID, 30, "cs", "hello"); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("staff reply = %v, want ErrTicketResolved", err)
	}
	if _, err := ss.Transfer(models.QueueCS, ticket.ID, models.QueueMD); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("transfer = %v, want ErrTicketResolved", err)
	}
	if _, err := ss.Claim(models.QueueCS, ticket.ID, 31); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("claim = %v, want ErrTicketResolved", err)
	}
}

func TestClaimConflicts(t *testing.T) {
	ss, _ := newSupportHarness(t)

	ticket, _ := ss.Create(10, models.QueueCS, "Subject", "Body", "", 0)

	if _, err := ss.Claim(models.QueueMD, ticket.ID, 30); !errors.Is(err, ErrWrongQueue) {
		t.Fatalf("cross-queue claim = %v, want ErrWrongQueue", err)
	}
	if _, err := ss.Claim(models.QueueCS, ticket.ID, 30); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := ss.Claim(models.QueueCS, ticket.ID, 31); !errors.Is(err, ErrTicketClaimed) {
		t.Fatalf("second claim = %v, want ErrTicketClaimed", err)
	}
}

func TestStaffReplyClaimsUnassignedTicket(t *testing.T) {
	ss, db := newSupportHarness(t)

	ticket, _ := ss.Create(10, models.QueueCS, "Subject", "Body", "", 0)
	if _, err := ss.StaffReply(models.QueueCS, ticket.ID, 30, "cs", "on it"); err != nil {
		t.Fatalf("staff reply: %v", err)
	}

	var got models.SupportTicket
	db.First(&got, ticket.ID)
	if got.Status != models.TicketOpen || got.AssignedTo == nil || *got.AssignedTo != 30 {
		t.Fatalf("ticket after reply = %+v", got)
	}
	if !got.UserUnread || got.StaffUnread {
		t.Fatalf("unread flags = user:%v staff:%v", got.UserUnread, got.StaffUnread)
	}
}

func TestTransferResetsAssignmentAndPartition(t *testing.T) {
	ss, db := newSupportHarness(t)

	ticket, _ := ss.Create(10, models.QueueCS, "Deposit dispute", "The renter broke it", "booking", 7)
	if _, err := ss.Claim(models.QueueCS, ticket.ID, 30); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := ss.Transfer(models.QueueCS, ticket.ID, "nonsense"); err == nil {
		t.Fatal("transfer to unknown queue accepted")
	}

	moved, err := ss.Transfer(models.QueueCS, ticket.ID, models.QueueMD)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.Queue != models.QueueMD || moved.Status != models.TicketNew || moved.AssignedTo != nil {
		t.Fatalf("moved ticket = %+v", moved)
	}

	var got models.SupportTicket
	db.First(&got, ticket.ID)
	if got.LastFrom != models.FromSystem {
		t.Fatalf("last_from = %q, want system", got.LastFrom)
	}

	// The receiving queue sees it under transferred, not new.
	inbox, err := ss.QueueInbox(models.QueueMD, 40)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox.New) != 0 || len(inbox.Transferred) != 1 {
		t.Fatalf("inbox partitions: new=%d transferred=%d", len(inbox.New), len(inbox.Transferred))
	}
}

func TestUserReplyOnlyByTicketOwner(t *testing.T) {
	ss, _ := newSupportHarness(t)

	ticket, _ := ss.Create(10, models.QueueCS, "Subject", "Body", "", 0)
	if _, err := ss.UserReply(ticket.ID, 99, "not mine"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger reply = %v, want ErrNotParticipant", err)
	}
}
