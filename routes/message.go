package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// CreateConversation opens (or returns) the thread between a renter and an
// owner, optionally pinned to a listing or booking.
func CreateConversation(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input CreateConversationInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.OwnerID == userID {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "You cannot message yourself.", ctx)
		return
	}

	var conversation models.Conversation
	query := storage.DB.Where("owner_id = ? AND renter_id = ?", input.OwnerID, userID)
	if input.ListingID != nil {
		query = query.Where("listing_id = ?", *input.ListingID)
	}
	existing := query.Limit(1).Find(&conversation)
	if existing.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if existing.RowsAffected > 0 {
		ctx.JSON(conversation)
		return
	}

	conversation = models.Conversation{
		OwnerID:   input.OwnerID,
		RenterID:  userID,
		ListingID: input.ListingID,
		BookingID: input.BookingID,
	}
	if err := storage.DB.Create(&conversation).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(conversation)
}

func GetMyConversations(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var conversations []models.Conversation
	if err := storage.DB.
		Where("owner_id = ? OR renter_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&conversations).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(conversations)
}

func CreateMessage(ctx iris.Context) {
	var req CreateMessageInput

	err := ctx.ReadJSON(&req)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	claims := jwt.Get(ctx).(*utils.AccessToken)
	if req.SenderID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var conversation models.Conversation
	if err := storage.DB.First(&conversation, req.ConversationID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if conversation.OwnerID != claims.ID && conversation.RenterID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	message := models.Message{
		ConversationID:  req.ConversationID,
		SenderID:        req.SenderID,
		ReceiverID:      req.ReceiverID,
		Text:            req.Text,
		Type:            req.Type,
		RefType:         req.RefType,
		RefID:           req.RefID,
		PreviewTitle:    req.PreviewTitle,
		PreviewSubtitle: req.PreviewSubtitle,
		PreviewImageURL: req.PreviewImageURL,
		State:           "sent",
	}

	storage.DB.Create(&message)
	storage.DB.Model(&conversation).Update("last_message_at", time.Now())

	var sender models.User
	if err := storage.DB.First(&sender, req.SenderID).Error; err == nil {
		preview := req.Text
		if len(preview) > 80 {
			preview = preview[:80]
		}
		notifier.Notify(req.ReceiverID, "message", fmt.Sprintf("%s %s", sender.FirstName, sender.LastName),
			preview, "conversation", conversation.ID)
	}

	ctx.JSON(message)
}

// ListMessages: GET /api/messages?conversationID=...&cursor=...&limit=...
func ListMessages(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	convID, err := ctx.URLParamInt("conversationID")
	if err != nil || convID <= 0 {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var conversation models.Conversation
	if err := storage.DB.First(&conversation, convID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if conversation.OwnerID != userID && conversation.RenterID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	limit, _ := ctx.URLParamInt("limit")
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	cursor, _ := ctx.URLParamInt("cursor")

	q := storage.DB.Where("conversation_id = ?", convID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var msgs []models.Message
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		ctx.StopWithStatus(http.StatusInternalServerError)
		return
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	nextCursor := 0
	if len(msgs) > 0 {
		nextCursor = int(msgs[0].ID)
	}
	ctx.JSON(iris.Map{"messages": msgs, "nextCursor": nextCursor})
}

// SetMessageState: POST /api/messages/state
func SetMessageState(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var req SetMessageStateInput
	if err := ctx.ReadJSON(&req); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	updates := map[string]any{"state": req.State}
	now := time.Now()
	if req.State == "delivered" {
		updates["delivered_at"] = now
	}
	if req.State == "seen" {
		updates["seen_at"] = now
	}
	// Only the receiver flips delivery state.
	if err := storage.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND id IN ? AND receiver_id = ?", req.ConversationID, req.MessageIDs, userID).
		Updates(updates).Error; err != nil {
		ctx.StopWithStatus(http.StatusInternalServerError)
		return
	}
	ctx.JSON(iris.Map{"success": true})
}

type CreateConversationInput struct {
	OwnerID   uint  `json:"ownerID" validate:"required"`
	ListingID *uint `json:"listingID"`
	BookingID *uint `json:"bookingID"`
}

type CreateMessageInput struct {
	ConversationID  uint   `json:"conversationID" validate:"required"`
	SenderID        uint   `json:"senderID" validate:"required"`
	ReceiverID      uint   `json:"receiverID" validate:"required"`
	Text            string `json:"text" validate:"lt=5000"`
	Type            string `json:"type" validate:"omitempty,oneof=text listing_card"`
	RefType         string `json:"refType" validate:"omitempty,oneof=listing booking"`
	RefID           *uint  `json:"refID"`
	PreviewTitle    string `json:"previewTitle"`
	PreviewSubtitle string `json:"previewSubtitle"`
	PreviewImageURL string `json:"previewImageURL"`
}

type SetMessageStateInput struct {
	ConversationID uint   `json:"conversationID" validate:"required"`
	MessageIDs     []uint `json:"messageIDs" validate:"required"`
	State          string `json:"state" validate:"required,oneof=delivered seen"`
}
