package routes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
)

// ReportDepositIssue lets the owner dispute the held deposit inside the
// post-return window.
func ReportDepositIssue(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	bookingID := uintIDParam(ctx)
	if bookingID == 0 {
		return
	}

	var input DepositReportInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	note := withEvidence(input.Note, uploadEvidence(bookingID, "owner", input.Evidence))
	booking, reportErr := deposits.OwnerReport(bookingID, userID, note)
	if reportErr != nil {
		writeDepositError(ctx, reportErr)
		return
	}
	ctx.JSON(booking)
}

// RespondToDepositDecision records the renter's one-time answer to a pending
// withhold decision.
func RespondToDepositDecision(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	bookingID := uintIDParam(ctx)
	if bookingID == 0 {
		return
	}

	var input DepositResponseInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	note := withEvidence(input.Note, uploadEvidence(bookingID, "renter", input.Evidence))
	booking, respondErr := deposits.RenterRespond(bookingID, userID, note)
	if respondErr != nil {
		writeDepositError(ctx, respondErr)
		return
	}
	ctx.JSON(booking)
}

// GetDisputeQueue lists the bookings awaiting a deposit manager, oldest first.
func GetDisputeQueue(ctx iris.Context) {
	var disputes []models.Booking
	if err := storage.DB.Preload("Listing").
		Where("deposit_status IN ?", []string{models.DepositInDispute, models.DepositAwaitingRenter}).
		Order("updated_at ASC").
		Find(&disputes).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(disputes)
}

// DecideDeposit applies a deposit manager's release or withhold decision.
func DecideDeposit(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	bookingID := uintIDParam(ctx)
	if bookingID == 0 {
		return
	}

	var input DepositDecisionInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.Decision != models.DecisionRelease && input.Decision != models.DecisionWithhold {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Decision must be release or withhold.", ctx)
		return
	}

	booking, decideErr := deposits.Decide(bookingID, userID, input.Decision, input.Amount, input.Reason)
	if decideErr != nil {
		writeDepositError(ctx, decideErr)
		return
	}
	ctx.JSON(booking)
}

// ExecuteDepositDecision settles a pending withhold early, without waiting for
// the renter window to lapse.
func ExecuteDepositDecision(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	bookingID := uintIDParam(ctx)
	if bookingID == 0 {
		return
	}

	booking, execErr := deposits.Execute(bookingID, userID)
	if execErr != nil {
		writeDepositError(ctx, execErr)
		return
	}
	ctx.JSON(booking)
}

// GetDepositAuditTrail returns the append-only history for one booking.
func GetDepositAuditTrail(ctx iris.Context) {
	bookingID := uintIDParam(ctx)
	if bookingID == 0 {
		return
	}

	var entries []models.DepositAudit
	if err := storage.DB.Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(entries)
}

// uploadEvidence pushes dispute photos to Cloudinary and returns their URLs.
// Uploads are best-effort; a failed upload is dropped, not fatal.
func uploadEvidence(bookingID uint, side string, images []string) []string {
	var urls []string
	for i, image := range images {
		if image == "" {
			continue
		}
		if strings.Contains(image, "res.cloudinary.com") {
			urls = append(urls, image)
			continue
		}
		publicID := fmt.Sprintf("disputes/%d/%s_%d", bookingID, side, i)
		if urlMap := storage.UploadBase64Image(image, publicID); urlMap != nil && urlMap["url"] != "" {
			urls = append(urls, urlMap["url"])
		}
	}
	return urls
}

func withEvidence(note string, urls []string) string {
	if len(urls) == 0 {
		return note
	}
	return note + "\nEvidence: " + strings.Join(urls, " ")
}

func uintIDParam(ctx iris.Context) uint {
	id, err := ctx.Params().GetUint("id")
	if err != nil || id == 0 {
		utils.CreateNotFound(ctx)
		return 0
	}
	return id
}

// writeDepositError maps the deposit state machine errors onto HTTP statuses.
func writeDepositError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.CreateNotFound(ctx)
	case errors.Is(err, services.ErrNotParticipant):
		utils.CreateForbidden(ctx)
	case errors.Is(err, services.ErrInvalidAmount):
		utils.CreateError(iris.StatusBadRequest, "Validation Error", err.Error(), ctx)
	case errors.Is(err, services.ErrWindowClosed),
		errors.Is(err, services.ErrWrongState),
		errors.Is(err, services.ErrAlreadyResponded),
		errors.Is(err, services.ErrNoPendingDecision):
		utils.CreateError(iris.StatusConflict, "Conflict", err.Error(), ctx)
	default:
		utils.CreateInternalServerError(ctx)
	}
}

type DepositReportInput struct {
	Note     string   `json:"note" validate:"required,max=2000"`
	Evidence []string `json:"evidence" validate:"max=10"`
}

type DepositResponseInput struct {
	Note     string   `json:"note" validate:"required,max=2000"`
	Evidence []string `json:"evidence" validate:"max=10"`
}

type DepositDecisionInput struct {
	Decision string  `json:"decision" validate:"required"`
	Amount   float64 `json:"amount"`
	Reason   string  `json:"reason" validate:"max=2000"`
}
