package routes

import (
	"errors"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

// CreateSupportTicket opens a ticket in one of the back-office queues.
// Users always land in cs unless the client names a queue explicitly.
func CreateSupportTicket(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input CreateTicketInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	ticket, createErr := support.Create(userID, input.Queue, input.Subject, input.Body, input.RefType, input.RefID)
	if createErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(ticket)
}

func GetMyTickets(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var tickets []models.SupportTicket
	if err := storage.DB.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&tickets).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(tickets)
}

// GetMyTicket returns one ticket with its thread and clears the user's unread
// marker.
func GetMyTicket(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	id := ctx.Params().Get("id")

	var ticket models.SupportTicket
	found := storage.DB.Preload("Messages").Find(&ticket, id)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 || ticket.UserID != userID {
		utils.CreateNotFound(ctx)
		return
	}

	if ticket.UserUnread {
		storage.DB.Model(&ticket).Update("user_unread", false)
		ticket.UserUnread = false
	}
	ctx.JSON(ticket)
}

func ReplyToMyTicket(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	ticketID := uintIDParam(ctx)
	if ticketID == 0 {
		return
	}

	var input TicketReplyInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	ticket, replyErr := support.UserReply(ticketID, userID, input.Body)
	if replyErr != nil {
		writeTicketError(ctx, replyErr)
		return
	}
	ctx.JSON(ticket)
}

// ---------- staff side, guarded by QueueMiddleware ----------

func GetQueueInbox(ctx iris.Context) {
	staffID := ctx.Values().Get("userID").(uint)
	queue := ctx.Values().Get("queue").(string)

	inbox, err := support.QueueInbox(queue, staffID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(inbox)
}

// GetQueueTicket loads a ticket with its thread for a staff member and clears
// the staff unread marker.
func GetQueueTicket(ctx iris.Context) {
	queue := ctx.Values().Get("queue").(string)
	id := ctx.Params().Get("id")

	var ticket models.SupportTicket
	found := storage.DB.Preload("Messages").Preload("User").Find(&ticket, id)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 || ticket.Queue != queue {
		utils.CreateNotFound(ctx)
		return
	}

	if ticket.StaffUnread {
		storage.DB.Model(&ticket).Update("staff_unread", false)
		ticket.StaffUnread = false
	}
	ctx.JSON(ticket)
}

func ClaimTicket(ctx iris.Context) {
	staffID := ctx.Values().Get("userID").(uint)
	queue := ctx.Values().Get("queue").(string)
	ticketID := uintIDParam(ctx)
	if ticketID == 0 {
		return
	}

	ticket, err := support.Claim(queue, ticketID, staffID)
	if err != nil {
		writeTicketError(ctx, err)
		return
	}
	ctx.JSON(ticket)
}

func StaffReplyToTicket(ctx iris.Context) {
	staffID := ctx.Values().Get("userID").(uint)
	role := ctx.Values().Get("role").(string)
	queue := ctx.Values().Get("queue").(string)
	ticketID := uintIDParam(ctx)
	if ticketID == 0 {
		return
	}

	var input TicketReplyInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	ticket, replyErr := support.StaffReply(queue, ticketID, staffID, role, input.Body)
	if replyErr != nil {
		writeTicketError(ctx, replyErr)
		return
	}
	ctx.JSON(ticket)
}

func ResolveTicket(ctx iris.Context) {
	staffID := ctx.Values().Get("userID").(uint)
	queue := ctx.Values().Get("queue").(string)
	ticketID := uintIDParam(ctx)
	if ticketID == 0 {
		return
	}

	ticket, err := support.Resolve(queue, ticketID, staffID)
	if err != nil {
		writeTicketError(ctx, err)
		return
	}
	ctx.JSON(ticket)
}

func TransferTicket(ctx iris.Context) {
	queue := ctx.Values().Get("queue").(string)
	ticketID := uintIDParam(ctx)
	if ticketID == 0 {
		return
	}

	var input TicketTransferInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	ticket, transferErr := support.Transfer(queue, ticketID, input.ToQueue)
	if transferErr != nil {
		writeTicketError(ctx, transferErr)
		return
	}
	ctx.JSON(ticket)
}

func writeTicketError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.CreateNotFound(ctx)
	case errors.Is(err, services.ErrNotParticipant):
		utils.CreateForbidden(ctx)
	case errors.Is(err, services.ErrTicketResolved),
		errors.Is(err, services.ErrTicketClaimed),
		errors.Is(err, services.ErrWrongQueue):
		utils.CreateError(iris.StatusConflict, "Conflict", err.Error(), ctx)
	default:
		utils.CreateInternalServerError(ctx)
	}
}

type CreateTicketInput struct {
	Queue   string `json:"queue"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=4000"`
	RefType string `json:"refType" validate:"max=32"`
	RefID   uint   `json:"refID"`
}

type TicketReplyInput struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type TicketTransferInput struct {
	ToQueue string `json:"toQueue" validate:"required"`
}
