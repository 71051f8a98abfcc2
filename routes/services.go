package routes

import (
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
)

// Package-level service handles, wired once from main. Handlers stay thin and
// reach these directly, the way they reach storage.DB.
var (
	notifier *services.NotificationService
	payments *services.PaymentService
	deposits *services.DepositService
	support  *services.SupportService
)

func InitServices(n *services.NotificationService, p *services.PaymentService, d *services.DepositService, s *services.SupportService) {
	notifier = n
	payments = p
	deposits = d
	support = s
}
