package routes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func CreateListing(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input CreateListingInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var owner models.User
	if err := storage.DB.First(&owner, userID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	// Only identity-verified accounts may publish listings.
	if owner.IsVerified == nil || !*owner.IsVerified {
		utils.CreateError(iris.StatusForbidden, "Verification Required",
			"Verify your identity before publishing a listing.", ctx)
		return
	}

	if input.DailyPrice <= 0 {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Daily price must be positive.", ctx)
		return
	}
	if input.DepositAmount < 0 {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Deposit amount cannot be negative.", ctx)
		return
	}

	imagesArr := insertListingImages(input.Images, "")
	if imagesArr == nil {
		imagesArr = []string{}
	}
	imagesJSON, _ := json.Marshal(imagesArr)

	listing := models.Listing{
		OwnerID:       userID,
		Title:         input.Title,
		Description:   input.Description,
		Category:      input.Category,
		City:          input.City,
		Images:        imagesJSON,
		DailyPrice:    input.DailyPrice,
		DepositAmount: input.DepositAmount,
		Status:        "active",
	}

	if err := storage.DB.Create(&listing).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(listing)
}

func GetListing(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	listing := getListingByID(id, ctx)
	if listing == nil {
		return
	}

	ctx.JSON(listing)
}

func GetListingsByUserID(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	var listings []models.Listing
	listingsExist := storage.DB.Where("owner_id = ?", id).Order("created_at DESC").Find(&listings)

	if listingsExist.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, "Error", listingsExist.Error.Error(), ctx)
		return
	}

	ctx.JSON(listings)
}

// SearchListings filters active listings by text, category and city.
func SearchListings(ctx iris.Context) {
	q := ctx.URLParamDefault("q", "")
	category := ctx.URLParamDefault("category", "")
	city := ctx.URLParamDefault("city", "")
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 50 {
		perPage = 20
	}

	query := storage.DB.Model(&models.Listing{}).Preload("Owner").Where("status = ?", "active")
	if q != "" {
		search := "%" + q + "%"
		query = query.Where("lower(title) LIKE lower(?) OR lower(description) LIKE lower(?)", search, search)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if city != "" {
		query = query.Where("lower(city) = lower(?)", city)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var listings []models.Listing
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&listings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, listings, page, perPage, total)
}

func UpdateListing(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	listing := getListingByID(id, ctx)
	if listing == nil {
		return
	}

	claims := jwt.Get(ctx).(*utils.AccessToken)
	if listing.OwnerID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var input UpdateListingInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.DailyPrice <= 0 {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Daily price must be positive.", ctx)
		return
	}
	if input.DepositAmount < 0 {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Deposit amount cannot be negative.", ctx)
		return
	}

	imagesArr := insertListingImages(input.Images, fmt.Sprintf("%d", listing.ID))
	imagesJSON, _ := json.Marshal(imagesArr)

	listing.Title = input.Title
	listing.Description = input.Description
	listing.Category = input.Category
	listing.City = input.City
	listing.Images = imagesJSON
	listing.DailyPrice = input.DailyPrice
	listing.DepositAmount = input.DepositAmount

	rowsUpdated := storage.DB.Model(&listing).Updates(listing)
	if rowsUpdated.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, "Error", rowsUpdated.Error.Error(), ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

// SetListingStatus lets the owner pause or reactivate a listing. Removal is an
// admin action and lives in the back-office routes.
func SetListingStatus(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	listing := getListingByID(id, ctx)
	if listing == nil {
		return
	}

	claims := jwt.Get(ctx).(*utils.AccessToken)
	if listing.OwnerID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	var input ListingStatusInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.Status != "active" && input.Status != "paused" {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Status must be active or paused.", ctx)
		return
	}
	if listing.Status == "removed" {
		utils.CreateError(iris.StatusConflict, "Conflict", "Listing was removed by moderation.", ctx)
		return
	}

	if err := storage.DB.Model(&listing).Update("status", input.Status).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

func DeleteListing(ctx iris.Context) {
	params := ctx.Params()
	id := params.Get("id")

	var listing models.Listing
	listingExists := storage.DB.Find(&listing, id)

	if listingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	claims := jwt.Get(ctx).(*utils.AccessToken)
	if listing.OwnerID != claims.ID {
		ctx.StatusCode(iris.StatusForbidden)
		return
	}

	// Refuse deletion while a booking is in flight.
	var active int64
	storage.DB.Model(&models.Booking{}).
		Where("listing_id = ? AND status IN ?", listing.ID,
			[]string{models.BookingRequested, models.BookingAccepted, models.BookingPaid, models.BookingPickedUp, models.BookingReturned}).
		Count(&active)
	if active > 0 {
		utils.CreateError(iris.StatusConflict, "Conflict", "Listing has active bookings.", ctx)
		return
	}

	listingDeleted := storage.DB.Delete(&models.Listing{}, id)
	if listingDeleted.Error != nil {
		utils.CreateError(iris.StatusInternalServerError, "Error", listingDeleted.Error.Error(), ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

func getListingByID(id string, ctx iris.Context) *models.Listing {
	var listing models.Listing
	listingExists := storage.DB.Preload("Owner").Find(&listing, id)

	if listingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}

	if listingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return nil
	}

	return &listing
}

func insertListingImages(images []string, listingID string) []string {
	var imagesArr []string
	for i, image := range images {
		if image == "" {
			continue
		}
		if !(strings.Contains(image, "res.cloudinary.com")) {
			timestamp := time.Now().UnixNano() / int64(time.Millisecond)
			publicID := fmt.Sprintf("listing_%d_%d", timestamp, i)
			if listingID != "" {
				publicID = "listing/" + listingID + "/" + publicID
			}

			urlMap := storage.UploadBase64Image(image, publicID)
			if urlMap != nil && urlMap["url"] != "" {
				imagesArr = append(imagesArr, urlMap["url"])
			}
		} else {
			imagesArr = append(imagesArr, image)
		}
	}
	return imagesArr
}

type CreateListingInput struct {
	Title         string   `json:"title" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=4000"`
	Category      string   `json:"category" validate:"required,max=64"`
	City          string   `json:"city" validate:"required,max=120"`
	Images        []string `json:"images"`
	DailyPrice    float64  `json:"dailyPrice" validate:"required"`
	DepositAmount float64  `json:"depositAmount"`
}

type UpdateListingInput struct {
	Title         string   `json:"title" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=4000"`
	Category      string   `json:"category" validate:"required,max=64"`
	City          string   `json:"city" validate:"required,max=120"`
	Images        []string `json:"images"`
	DailyPrice    float64  `json:"dailyPrice" validate:"required"`
	DepositAmount float64  `json:"depositAmount"`
}

type ListingStatusInput struct {
	Status string `json:"status" validate:"required"`
}
