package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"gorm.io/gorm"
)

var (
	ErrTicketResolved = errors.New("ticket is resolved and immutable")
	ErrTicketClaimed  = errors.New("ticket is already claimed")
	ErrWrongQueue     = errors.New("ticket does not belong to this queue")
)

// SupportService is the single parameterized implementation behind all three
// back-office queues (cs, mod, md). Queue access control lives in the route
// middleware; this layer enforces ticket-state rules, in particular that a
// resolved ticket accepts no further mutation from any role.
type SupportService struct {
	DB     *gorm.DB
	Notify *NotificationService
}

func NewSupportService(db *gorm.DB, notify *NotificationService) *SupportService {
	return &SupportService{DB: db, Notify: notify}
}

// Inbox is a queue's partitioned view.
type Inbox struct {
	New         []models.SupportTicket `json:"new"`         // unassigned, user-originated
	Transferred []models.SupportTicket `json:"transferred"` // unassigned, moved here by another queue
	Mine        []models.SupportTicket `json:"mine"`        // open, assigned to the caller
	Resolved    []models.SupportTicket `json:"resolved"`
}

func (ss *SupportService) Create(userID uint, queue, subject, body, refType string, refID uint) (*models.SupportTicket, error) {
	if queue == "" {
		queue = models.QueueCS
	}
	ticket := models.SupportTicket{
		UserID:      userID,
		Queue:       queue,
		Status:      models.TicketNew,
		Subject:     subject,
		LastFrom:    models.FromUser,
		StaffUnread: true,
		RefType:     refType,
		RefID:       refID,
	}
	err := ss.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}
		return tx.Create(&models.SupportMessage{
			TicketID:   ticket.ID,
			SenderID:   userID,
			SenderRole: "user",
			Body:       body,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (ss *SupportService) GetForUpdate(ticketID uint) (*models.SupportTicket, error) {
	var ticket models.SupportTicket
	if err := ss.DB.First(&ticket, ticketID).Error; err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketResolved {
		return nil, ErrTicketResolved
	}
	return &ticket, nil
}

// UserReply appends a message from the ticket owner.
func (ss *SupportService) UserReply(ticketID, userID uint, body string) (*models.SupportTicket, error) {
	ticket, err := ss.GetForUpdate(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, ErrNotParticipant
	}

	err = ss.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.SupportMessage{
			TicketID: ticket.ID, SenderID: userID, SenderRole: "user", Body: body,
		}).Error; err != nil {
			return err
		}
		return tx.Model(ticket).Updates(map[string]interface{}{
			"last_from":    models.FromUser,
			"staff_unread": true,
			"user_unread":  false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if ticket.AssignedTo != nil {
		ss.Notify.Notify(*ticket.AssignedTo, "ticket_reply", "Ticket reply",
			fmt.Sprintf("New reply on ticket #%d.", ticket.ID), "ticket", ticket.ID)
	}
	return ticket, nil
}

// QueueInbox lists a queue partitioned into new / transferred / mine / resolved.
func (ss *SupportService) QueueInbox(queue string, staffID uint) (*Inbox, error) {
	inbox := &Inbox{}
	base := ss.DB.Preload("User").Where("queue = ?", queue).Order("updated_at DESC")

	if err := base.Session(&gorm.Session{}).
		Where("status = ? AND last_from = ?", models.TicketNew, models.FromUser).
		Find(&inbox.New).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ? AND last_from = ?", models.TicketNew, models.FromSystem).
		Find(&inbox.Transferred).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ? AND assigned_to = ?", models.TicketOpen, staffID).
		Find(&inbox.Mine).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", models.TicketResolved).
		Limit(50).
		Find(&inbox.Resolved).Error; err != nil {
		return nil, err
	}
	return inbox, nil
}

// Claim assigns a new ticket to the calling staff member (new → open).
func (ss *SupportService) Claim(queue string, ticketID, staffID uint) (*models.SupportTicket, error) {
	ticket, err := ss.GetForUpdate(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Queue != queue {
		return nil, ErrWrongQueue
	}
	if ticket.Status != models.TicketNew {
		return nil, ErrTicketClaimed
	}

	if err := ss.DB.Model(ticket).Updates(map[string]interface{}{
		"status":      models.TicketOpen,
		"assigned_to": staffID,
	}).Error; err != nil {
		return nil, err
	}
	ticket.Status = models.TicketOpen
	ticket.AssignedTo = &staffID
	return ticket, nil
}

// StaffReply appends a staff message and flips the unread markers.
func (ss *SupportService) StaffReply(queue string, ticketID, staffID uint, role, body string) (*models.SupportTicket, error) {
	ticket, err := ss.GetForUpdate(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Queue != queue {
		return nil, ErrWrongQueue
	}

	err = ss.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.SupportMessage{
			TicketID: ticket.ID, SenderID: staffID, SenderRole: role, Body: body,
		}).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"last_from":    models.FromStaff,
			"user_unread":  true,
			"staff_unread": false,
		}
		// Replying to an unclaimed ticket claims it.
		if ticket.AssignedTo == nil {
			updates["assigned_to"] = staffID
			updates["status"] = models.TicketOpen
		}
		return tx.Model(ticket).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	ss.Notify.Notify(ticket.UserID, "ticket_reply", "Support replied",
		fmt.Sprintf("Support replied to your ticket #%d.", ticket.ID), "ticket", ticket.ID)
	return ticket, nil
}

// Resolve closes the ticket permanently.
func (ss *SupportService) Resolve(queue string, ticketID, staffID uint) (*models.SupportTicket, error) {
	ticket, err := ss.GetForUpdate(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Queue != queue {
		return nil, ErrWrongQueue
	}

	now := time.Now()
	if err := ss.DB.Model(ticket).Updates(map[string]interface{}{
		"status":      models.TicketResolved,
		"resolved_at": now,
		"resolved_by": staffID,
	}).Error; err != nil {
		return nil, err
	}
	ticket.Status = models.TicketResolved
	ss.Notify.Notify(ticket.UserID, "ticket_resolved", "Ticket resolved",
		fmt.Sprintf("Your ticket #%d was resolved.", ticket.ID), "ticket", ticket.ID)
	return ticket, nil
}

// Transfer hands the ticket to another queue: assignee cleared, status back to
// new, last_from marked system so the receiving inbox shows it as transferred.
func (ss *SupportService) Transfer(fromQueue string, ticketID uint, toQueue string) (*models.SupportTicket, error) {
	if _, ok := map[string]bool{models.QueueCS: true, models.QueueMod: true, models.QueueMD: true}[toQueue]; !ok {
		return nil, fmt.Errorf("unknown queue %q", toQueue)
	}
	ticket, err := ss.GetForUpdate(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Queue != fromQueue {
		return nil, ErrWrongQueue
	}

	if err := ss.DB.Model(ticket).Updates(map[string]interface{}{
		"queue":        toQueue,
		"status":       models.TicketNew,
		"assigned_to":  nil,
		"last_from":    models.FromSystem,
		"staff_unread": true,
	}).Error; err != nil {
		return nil, err
	}
	ticket.Queue = toQueue
	ticket.Status = models.TicketNew
	ticket.AssignedTo = nil
	ticket.LastFrom = models.FromSystem
	return ticket, nil
}
