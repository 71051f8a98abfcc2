package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
	"golang.org/x/exp/slices"
)

var assignableRoles = []string{"user", "cs", "moderator", "deposit_manager", "admin", "super_admin"}

// ListUsers - GET /admin/users?role=&q=&page=&per_page=
func AdminListUsers(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	var users []models.User
	q := strings.TrimSpace(ctx.URLParamDefault("q", ""))
	role := strings.TrimSpace(ctx.URLParamDefault("role", ""))

	query := storage.DB.Model(&models.User{})
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("lower(first_name) LIKE ? OR lower(last_name) LIKE ? OR lower(email) LIKE ?", like, like, like)
	}

	var total int64
	query.Count(&total)
	query = query.Offset((page - 1) * perPage).Limit(perPage)
	if err := query.Find(&users).Error; err != nil {
		ctx.StatusCode(http.StatusInternalServerError)
		ctx.JSON(iris.Map{"error": "server_error", "message": err.Error()})
		return
	}

	utils.JSONPage(ctx, users, page, perPage, total)
}

// GET /admin/users/:id — full user info + recent admin actions against them
func AdminGetUser(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "user not found")
		return
	}

	var actions []models.AuditLog
	storage.DB.Where("resource_type = ? AND resource_id = ?", "user", id).
		Order("created_at DESC").Limit(50).Find(&actions)

	ctx.JSON(iris.Map{
		"data": iris.Map{
			"user":               user,
			"recentAdminActions": actions,
		},
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

// Change role - PATCH /admin/users/:id/role (super_admin only)
func AdminChangeUserRole(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		ctx.StopWithJSON(http.StatusBadRequest, iris.Map{"error": "invalid_id"})
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := ctx.ReadJSON(&body); err != nil || !slices.Contains(assignableRoles, body.Role) {
		ctx.StopWithJSON(http.StatusBadRequest, iris.Map{"error": "invalid_role"})
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		ctx.StopWithJSON(http.StatusNotFound, iris.Map{"error": "not_found"})
		return
	}

	before := user
	user.Role = body.Role
	if err := storage.DB.Save(&user).Error; err != nil {
		ctx.StopWithJSON(http.StatusInternalServerError, iris.Map{"error": "server_error"})
		return
	}

	utils.Audit(ctx, "user.role_update", "user", user.ID, before, user)

	ctx.JSON(iris.Map{"data": user})
}

// POST /admin/users/:id/verify { status, notes }
func AdminVerifyUser(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var body struct {
		Status string `json:"status"` // approved/rejected/pending
		Notes  string `json:"notes"`
	}
	if err := ctx.ReadJSON(&body); err != nil || (body.Status != "approved" && body.Status != "rejected" && body.Status != "pending") {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "invalid_payload", "status must be pending/approved/rejected")
		return
	}

	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "user not found")
		return
	}

	before := user
	user.VerificationStatus = body.Status
	verified := body.Status == "approved"
	user.IsVerified = &verified
	if err := storage.DB.Save(&user).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	utils.Audit(ctx, "user.verify", "user", user.ID, before, user)

	if verified {
		notifier.Notify(user.ID, "verification_approved", "Identity verified",
			"Your identity documents were approved. You can now list and book items.", "user", user.ID)
	} else if body.Status == "rejected" {
		notifier.Notify(user.ID, "verification_rejected", "Verification rejected",
			"Your identity documents were rejected. Submit new documents to try again.", "user", user.ID)
	}

	ctx.JSON(iris.Map{"data": iris.Map{"user": user}})
}

// GET /admin/stats
func AdminStats(ctx iris.Context) {
	var pendingVerifications int64
	storage.DB.Model(&models.User{}).Where("verification_status = ?", "pending").Count(&pendingVerifications)
	var activeListings int64
	storage.DB.Model(&models.Listing{}).Where("status = ?", "active").Count(&activeListings)
	var openDisputes int64
	storage.DB.Model(&models.Booking{}).
		Where("deposit_status IN ?", []string{models.DepositInDispute, models.DepositAwaitingRenter}).
		Count(&openDisputes)
	var openTickets int64
	storage.DB.Model(&models.SupportTicket{}).Where("status != ?", models.TicketResolved).Count(&openTickets)

	since7 := time.Now().AddDate(0, 0, -7)
	since30 := time.Now().AddDate(0, 0, -30)
	var newBookings7, newBookings30 int64
	storage.DB.Model(&models.Booking{}).Where("created_at >= ?", since7).Count(&newBookings7)
	storage.DB.Model(&models.Booking{}).Where("created_at >= ?", since30).Count(&newBookings30)

	ctx.JSON(iris.Map{
		"data": iris.Map{
			"pending_verifications": pendingVerifications,
			"active_listings":       activeListings,
			"open_deposit_disputes": openDisputes,
			"open_tickets":          openTickets,
			"new_bookings_7d":       newBookings7,
			"new_bookings_30d":      newBookings30,
		},
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

// GET /admin/activity
func AdminActivity(ctx iris.Context) {
	var logs []models.AuditLog
	storage.DB.Order("created_at DESC").Limit(100).Find(&logs)
	ctx.JSON(iris.Map{"data": logs, "meta": iris.Map{}, "links": iris.Map{}})
}

// GET /admin/bookings?status=&deposit_status=&page=&per_page=
func AdminListBookings(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	query := storage.DB.Model(&models.Booking{}).Preload("Listing")
	if status := ctx.URLParamDefault("status", ""); status != "" {
		query = query.Where("status = ?", status)
	}
	if depositStatus := ctx.URLParamDefault("deposit_status", ""); depositStatus != "" {
		query = query.Where("deposit_status = ?", depositStatus)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&bookings).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	utils.JSONPage(ctx, bookings, page, perPage, total)
}

// POST /admin/listings/:id/remove — moderation takedown, distinct from the
// owner's pause.
func AdminRemoveListing(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	ctx.ReadJSON(&body)

	var listing models.Listing
	if err := storage.DB.First(&listing, id).Error; err != nil {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "listing not found")
		return
	}

	before := listing
	listing.Status = "removed"
	if err := storage.DB.Save(&listing).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	utils.Audit(ctx, "listing.remove", "listing", listing.ID, before, listing)
	notifier.Notify(listing.OwnerID, "listing_removed", "Listing removed",
		"Your listing was removed by moderation. Contact support for details.", "listing", listing.ID)

	ctx.JSON(iris.Map{"data": listing})
}
