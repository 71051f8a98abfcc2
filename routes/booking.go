package routes

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// CreateBooking files a rental request against an active listing. Amounts are
// snapshotted from the listing so later price edits never move an open booking.
func CreateBooking(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input CreateBookingInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	start, startErr := time.Parse(dateLayout, input.StartDate)
	end, endErr := time.Parse(dateLayout, input.EndDate)
	if startErr != nil || endErr != nil || !end.After(start) {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Invalid rental period.", ctx)
		return
	}

	var renter models.User
	if err := storage.DB.First(&renter, userID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if renter.IsVerified == nil || !*renter.IsVerified {
		utils.CreateError(iris.StatusForbidden, "Verification Required",
			"Verify your identity before booking.", ctx)
		return
	}

	var listing models.Listing
	if err := storage.DB.First(&listing, input.ListingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if listing.Status != "active" {
		utils.CreateError(iris.StatusConflict, "Conflict", "Listing is not available.", ctx)
		return
	}
	if listing.OwnerID == userID {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "You cannot book your own listing.", ctx)
		return
	}

	if bookingConflicts(listing.ID, start, end) {
		utils.CreateError(iris.StatusConflict, "Conflict", "Listing is already booked for these dates.", ctx)
		return
	}

	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}

	booking := models.Booking{
		ListingID:     listing.ID,
		RenterID:      userID,
		OwnerID:       listing.OwnerID,
		StartDate:     start,
		EndDate:       end,
		Days:          days,
		RentalAmount:  float64(days) * listing.DailyPrice,
		Status:        models.BookingRequested,
		DepositAmount: listing.DepositAmount,
		DepositStatus: models.DepositNone,
	}

	if err := storage.DB.Create(&booking).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	notifier.Notify(listing.OwnerID, "booking_requested", "New booking request",
		fmt.Sprintf("%s %s requested %q for %d day(s).", renter.FirstName, renter.LastName, listing.Title, days),
		"booking", booking.ID)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(booking)
}

func GetBooking(ctx iris.Context) {
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	ctx.JSON(booking)
}

// GetMyBookings lists bookings where the caller rents or owns, newest first.
func GetMyBookings(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	side := ctx.URLParamDefault("side", "renter")

	query := storage.DB.Preload("Listing")
	if side == "owner" {
		query = query.Where("owner_id = ?", userID)
	} else {
		query = query.Where("renter_id = ?", userID)
	}

	var bookings []models.Booking
	if err := query.Order("created_at DESC").Find(&bookings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(bookings)
}

func AcceptBooking(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.OwnerID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingRequested {
		utils.CreateError(iris.StatusConflict, "Conflict", "Booking is not awaiting a decision.", ctx)
		return
	}
	if bookingConflicts(booking.ListingID, booking.StartDate, booking.EndDate) {
		utils.CreateError(iris.StatusConflict, "Conflict", "Dates were taken by another booking.", ctx)
		return
	}

	if err := storage.DB.Model(booking).Update("status", models.BookingAccepted).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingAccepted

	notifier.Notify(booking.RenterID, "booking_accepted", "Booking accepted",
		"Your booking request was accepted. Complete the payment to confirm.", "booking", booking.ID)
	ctx.JSON(booking)
}

func DeclineBooking(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.OwnerID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingRequested {
		utils.CreateError(iris.StatusConflict, "Conflict", "Booking is not awaiting a decision.", ctx)
		return
	}

	if err := storage.DB.Model(booking).Update("status", models.BookingDeclined).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingDeclined

	notifier.Notify(booking.RenterID, "booking_declined", "Booking declined",
		"Your booking request was declined.", "booking", booking.ID)
	ctx.JSON(booking)
}

// CancelBooking is open to either side while no money has moved. Paid bookings
// are settled through support.
func CancelBooking(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.RenterID != userID && booking.OwnerID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingRequested && booking.Status != models.BookingAccepted {
		utils.CreateError(iris.StatusConflict, "Conflict", "Only unpaid bookings can be cancelled.", ctx)
		return
	}

	if err := storage.DB.Model(booking).Update("status", models.BookingCancelled).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingCancelled

	other := booking.RenterID
	if userID == booking.RenterID {
		other = booking.OwnerID
	}
	notifier.Notify(other, "booking_cancelled", "Booking cancelled",
		"The booking was cancelled.", "booking", booking.ID)
	ctx.JSON(booking)
}

// PayBooking settles the rent and places the deposit hold in one step. The
// gateway side runs first; only a fully authorized deposit moves the booking
// to paid. Cash rent still requires an electronic deposit hold.
func PayBooking(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.RenterID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingAccepted {
		utils.CreateError(iris.StatusConflict, "Conflict", "Booking is not ready for payment.", ctx)
		return
	}

	var input PayBookingInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if !slices.Contains([]string{"cash", "card", "wallet"}, input.Method) {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Method must be cash, card or wallet.", ctx)
		return
	}

	holdRef := ""
	switch input.Method {
	case "card":
		if input.CardToken == "" {
			utils.CreateError(iris.StatusBadRequest, "Validation Error", "Card token is required.", ctx)
			return
		}
		if _, err := payments.ChargeRentCard(booking.ID, userID, input.CardToken, booking.RentalAmount); err != nil {
			utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Card charge was declined.", ctx)
			return
		}
		if booking.DepositAmount > 0 {
			ref, err := payments.AuthorizeDepositCard(booking.ID, userID, input.CardToken, booking.DepositAmount)
			if err != nil {
				utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Deposit authorization was declined.", ctx)
				return
			}
			holdRef = ref
		}

	case "wallet":
		ref, err := payments.PayWithWallet(booking.ID, userID, booking.OwnerID, booking.RentalAmount, booking.DepositAmount)
		if err != nil {
			if errors.Is(err, services.ErrInsufficientFunds) {
				utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Insufficient wallet balance.", ctx)
				return
			}
			utils.CreateInternalServerError(ctx)
			return
		}
		holdRef = ref

	case "cash":
		// Rent changes hands at pickup. The deposit hold still goes through
		// a processor so the arbitration flow has something to act on.
		if booking.DepositAmount > 0 {
			switch input.DepositMethod {
			case "card":
				if input.CardToken == "" {
					utils.CreateError(iris.StatusBadRequest, "Validation Error", "Card token is required for the deposit.", ctx)
					return
				}
				ref, err := payments.AuthorizeDepositCard(booking.ID, userID, input.CardToken, booking.DepositAmount)
				if err != nil {
					utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Deposit authorization was declined.", ctx)
					return
				}
				holdRef = ref
			case "wallet":
				ref, err := payments.PayWithWallet(booking.ID, userID, booking.OwnerID, 0, booking.DepositAmount)
				if err != nil {
					if errors.Is(err, services.ErrInsufficientFunds) {
						utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Insufficient wallet balance for the deposit.", ctx)
						return
					}
					utils.CreateInternalServerError(ctx)
					return
				}
				holdRef = ref
			default:
				utils.CreateError(iris.StatusBadRequest, "Validation Error",
					"Deposit method must be card or wallet for cash rentals.", ctx)
				return
			}
		}
	}

	now := time.Now()
	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(booking).Updates(map[string]interface{}{
			"status":         models.BookingPaid,
			"payment_method": input.Method,
			"paid_at":        now,
		}).Error; err != nil {
			return err
		}
		booking.Status = models.BookingPaid
		booking.PaymentMethod = input.Method
		booking.PaidAt = &now
		if holdRef != "" {
			return deposits.MarkHeld(tx, booking, holdRef, userID)
		}
		return nil
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	notifier.Notify(booking.OwnerID, "booking_paid", "Booking paid",
		"The renter completed payment. Arrange the pickup.", "booking", booking.ID)
	ctx.JSON(booking)
}

// ConfirmPickup is the owner acknowledging the item was handed over.
func ConfirmPickup(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.OwnerID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingPaid {
		utils.CreateError(iris.StatusConflict, "Conflict", "Booking is not awaiting pickup.", ctx)
		return
	}

	now := time.Now()
	if err := storage.DB.Model(booking).Updates(map[string]interface{}{
		"status":       models.BookingPickedUp,
		"picked_up_at": now,
	}).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingPickedUp
	booking.PickedUpAt = &now

	notifier.Notify(booking.RenterID, "booking_picked_up", "Pickup confirmed",
		"The owner confirmed the handover. Enjoy the rental.", "booking", booking.ID)
	ctx.JSON(booking)
}

// ConfirmReturn is the owner acknowledging the item came back. With a held
// deposit this opens the damage-report window instead of closing the booking.
func ConfirmReturn(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)
	booking := getBookingForCaller(ctx)
	if booking == nil {
		return
	}
	if booking.OwnerID != userID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}
	if booking.Status != models.BookingPickedUp {
		utils.CreateError(iris.StatusConflict, "Conflict", "Booking is not out on rental.", ctx)
		return
	}

	now := time.Now()
	if err := storage.DB.Model(booking).Updates(map[string]interface{}{
		"status":      models.BookingReturned,
		"returned_at": now,
	}).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingReturned
	booking.ReturnedAt = &now

	if err := deposits.OnBookingReturned(booking); err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	notifier.Notify(booking.RenterID, "booking_returned", "Return confirmed",
		"The owner confirmed the return.", "booking", booking.ID)
	ctx.JSON(booking)
}

// bookingConflicts reports an overlapping booking that already owns the dates.
func bookingConflicts(listingID uint, start, end time.Time) bool {
	blocking := []string{models.BookingAccepted, models.BookingPaid, models.BookingPickedUp}
	var count int64
	storage.DB.Model(&models.Booking{}).
		Where("listing_id = ? AND status IN ? AND start_date < ? AND end_date > ?",
			listingID, blocking, end, start).
		Count(&count)
	return count > 0
}

// getBookingForCaller loads the booking and checks the caller is the renter,
// the owner or staff.
func getBookingForCaller(ctx iris.Context) *models.Booking {
	params := ctx.Params()
	id := params.Get("id")
	userID := ctx.Values().Get("userID").(uint)

	var booking models.Booking
	bookingExists := storage.DB.Preload("Listing").Find(&booking, id)
	if bookingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if bookingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil
	}

	if booking.RenterID == userID || booking.OwnerID == userID {
		return &booking
	}
	role, _ := ctx.Values().Get("role").(string)
	if slices.Contains(models.StaffRoles, role) {
		return &booking
	}

	ctx.StatusCode(iris.StatusForbidden)
	return nil
}

type CreateBookingInput struct {
	ListingID uint   `json:"listingID" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

type PayBookingInput struct {
	Method        string `json:"method" validate:"required"`
	CardToken     string `json:"cardToken"`
	DepositMethod string `json:"depositMethod"`
}
