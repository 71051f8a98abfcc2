package routes

import (
	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/kataras/iris/v12"
)

// GetMyWallet returns the caller's balance. A wallet row is created lazily on
// first payment, so a missing row just means zero.
func GetMyWallet(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var wallet models.Wallet
	found := storage.DB.Where("user_id = ?", userID).Limit(1).Find(&wallet)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"balance":     wallet.Balance,
		"heldBalance": wallet.HeldBalance,
	})
}

// TopUpMyWallet charges a card token and credits the balance.
func TopUpMyWallet(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var input TopUpInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.Amount <= 0 {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "Amount must be positive.", ctx)
		return
	}

	if err := payments.ChargeTopUpCard(userID, input.CardToken, input.Amount); err != nil {
		utils.CreateError(iris.StatusPaymentRequired, "Payment Error", "Top-up charge was declined.", ctx)
		return
	}

	GetMyWallet(ctx)
}

func GetMyWalletTransactions(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var wallet models.Wallet
	found := storage.DB.Where("user_id = ?", userID).Limit(1).Find(&wallet)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 {
		ctx.JSON([]models.WalletTransaction{})
		return
	}

	var transactions []models.WalletTransaction
	if err := storage.DB.Where("wallet_id = ?", wallet.ID).
		Order("created_at DESC").Limit(100).
		Find(&transactions).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(transactions)
}

type TopUpInput struct {
	Amount    float64 `json:"amount" validate:"required"`
	CardToken string  `json:"cardToken" validate:"required"`
}
