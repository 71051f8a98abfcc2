package routes

import (
	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/kataras/iris/v12"
)

// OmiseWebhook receives charge lifecycle events from the processor and
// reconciles the matching payment rows. Unknown events are acknowledged and
// ignored so the processor stops retrying them.
func OmiseWebhook(ctx iris.Context) {
	var event struct {
		Key  string `json:"key"`
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Paid   bool   `json:"paid"`
		} `json:"data"`
	}
	if err := ctx.ReadJSON(&event); err != nil {
		ctx.StatusCode(iris.StatusBadRequest)
		return
	}

	if event.Key != "charge.complete" || event.Data.ID == "" {
		ctx.JSON(iris.Map{"received": true})
		return
	}

	status := "failed"
	if event.Data.Paid || event.Data.Status == "successful" {
		status = "succeeded"
	}
	storage.DB.Model(&models.Payment{}).
		Where("processor_ref = ?", event.Data.ID).
		Update("status", status)

	ctx.JSON(iris.Map{"received": true})
}
