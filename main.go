package main

import (
	"context"
	"log"
	"os"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/config"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/mq"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/routes"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/services"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/storage"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"github.com/omise/omise-go"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db := storage.InitializeDB()
	storage.InitializeRedis()

	// Notification bus is optional: without AMQP the in-app rows are still
	// written, only push/email fan-out is skipped.
	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Printf("amqp publisher disabled: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	var omiseClient *omise.Client
	if cfg.OmiseSecretKey != "" {
		omiseClient, err = omise.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
		if err != nil {
			log.Fatalf("omise: %v", err)
		}
	}

	notifier := services.NewNotificationService(db, publisher)
	paymentService := services.NewPaymentService(db, omiseClient, cfg.Currency)
	depositService := services.NewDepositService(db, paymentService, notifier, cfg.DisputeWindow, cfg.ResponseWindow)
	supportService := services.NewSupportService(db, notifier)
	routes.InitServices(notifier, paymentService, depositService, supportService)

	if cfg.AMQPURL != "" {
		consumer, err := mq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, "notification-worker", []string{"notify.*"})
		if err != nil {
			log.Printf("amqp consumer disabled: %v", err)
		} else {
			defer consumer.Close()
			go services.StartNotificationWorker(context.Background(), db, consumer)
		}
	}

	app := iris.New()
	app.Validator = validator.New()

	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	resetTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("EMAIL_TOKEN_SECRET")))
	resetTokenVerifier.WithDefaultBlocklist()
	resetTokenVerifierMiddleware := resetTokenVerifier.Verify(func() interface{} {
		return new(utils.ForgotPasswordToken)
	})

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}

		return tokenInput.RefreshToken
	})

	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Post("/register-phone", routes.RegisterPhone)
		user.Post("/login-phone", routes.LoginPhone)
		user.Post("/google", routes.GoogleLoginOrSignUp)
		user.Post("/apple", routes.AppleLoginOrSignUp)
		user.Post("/forgotpassword", routes.ForgotPassword)
		user.Post("/resetpassword", resetTokenVerifierMiddleware, routes.ResetPassword)
		user.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
		user.Get("/search", accessTokenVerifierMiddleware, routes.SearchUsers)
		user.Get("/me", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetUser)
		user.Post("/verification", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.SubmitVerification)
		user.Patch("/{id}/pushtoken", accessTokenVerifierMiddleware, utils.UserIDMiddleware, routes.AlterPushToken)
		user.Patch("/{id}/settings/notifications", accessTokenVerifierMiddleware, utils.UserIDMiddleware, routes.AllowsNotifications)
		user.Patch("/{id}/profile", accessTokenVerifierMiddleware, utils.UserIDMiddleware, routes.UpdateUserProfile)
	}

	listing := app.Party("/api/listing")
	{
		listing.Get("/search", routes.SearchListings)
		listing.Get("/{id:uint}", routes.GetListing)
		listing.Get("/user/{id:uint}", routes.GetListingsByUserID)
		listing.Post("/", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.CreateListing)
		listing.Patch("/{id:uint}", accessTokenVerifierMiddleware, routes.UpdateListing)
		listing.Patch("/{id:uint}/status", accessTokenVerifierMiddleware, routes.SetListingStatus)
		listing.Delete("/{id:uint}", accessTokenVerifierMiddleware, routes.DeleteListing)
	}

	booking := app.Party("/api/booking", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		booking.Post("/", routes.CreateBooking)
		booking.Get("/", routes.GetMyBookings)
		booking.Get("/{id:uint}", routes.GetBooking)
		booking.Post("/{id:uint}/accept", routes.AcceptBooking)
		booking.Post("/{id:uint}/decline", routes.DeclineBooking)
		booking.Post("/{id:uint}/cancel", routes.CancelBooking)
		booking.Post("/{id:uint}/pay", routes.PayBooking)
		booking.Post("/{id:uint}/pickup", routes.ConfirmPickup)
		booking.Post("/{id:uint}/return", routes.ConfirmReturn)
		booking.Post("/{id:uint}/deposit/report", routes.ReportDepositIssue)
		booking.Post("/{id:uint}/deposit/respond", routes.RespondToDepositDecision)
		booking.Get("/{id:uint}/deposit/audit", routes.GetDepositAuditTrail)
	}

	deposit := app.Party("/api/deposits", accessTokenVerifierMiddleware, utils.DepositManagerOnlyMiddleware)
	{
		deposit.Get("/disputes", routes.GetDisputeQueue)
		deposit.Post("/{id:uint}/decide", routes.DecideDeposit)
		deposit.Post("/{id:uint}/execute", routes.ExecuteDepositDecision)
	}

	wallet := app.Party("/api/wallet", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		wallet.Get("/", routes.GetMyWallet)
		wallet.Post("/topup", routes.TopUpMyWallet)
		wallet.Get("/transactions", routes.GetMyWalletTransactions)
	}

	conversation := app.Party("/api/conversation", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		conversation.Post("/", routes.CreateConversation)
		conversation.Get("/", routes.GetMyConversations)
	}

	messages := app.Party("/api/messages", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		messages.Post("/", routes.CreateMessage)
		messages.Get("/", routes.ListMessages)
		messages.Post("/state", routes.SetMessageState)
	}

	notifications := app.Party("/api/notifications", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		notifications.Get("/", routes.GetMyNotifications)
		notifications.Get("/unread-count", routes.GetUnreadNotificationCount)
		notifications.Patch("/{id:uint}/read", routes.MarkNotificationRead)
		notifications.Post("/read-all", routes.MarkAllNotificationsRead)
	}

	support := app.Party("/api/support", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		support.Post("/tickets", routes.CreateSupportTicket)
		support.Get("/tickets", routes.GetMyTickets)
		support.Get("/tickets/{id:uint}", routes.GetMyTicket)
		support.Post("/tickets/{id:uint}/reply", routes.ReplyToMyTicket)
	}

	queues := app.Party("/api/queues/{queue}", accessTokenVerifierMiddleware, utils.QueueMiddleware)
	{
		queues.Get("/inbox", routes.GetQueueInbox)
		queues.Get("/tickets/{id:uint}", routes.GetQueueTicket)
		queues.Post("/tickets/{id:uint}/claim", routes.ClaimTicket)
		queues.Post("/tickets/{id:uint}/reply", routes.StaffReplyToTicket)
		queues.Post("/tickets/{id:uint}/resolve", routes.ResolveTicket)
		queues.Post("/tickets/{id:uint}/transfer", routes.TransferTicket)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/users", routes.AdminListUsers)
		admin.Get("/users/{id:uint}", routes.AdminGetUser)
		admin.Patch("/users/{id:uint}/role", utils.SuperAdminOnlyMiddleware, routes.AdminChangeUserRole)
		admin.Post("/users/{id:uint}/verify", routes.AdminVerifyUser)
		admin.Get("/stats", routes.AdminStats)
		admin.Get("/activity", routes.AdminActivity)
		admin.Get("/bookings", routes.AdminListBookings)
		admin.Post("/listings/{id:uint}/remove", routes.AdminRemoveListing)
	}

	app.Post("/api/payments/webhook/omise", routes.OmiseWebhook)

	robot := app.Party("/api/robots", utils.RobotMiddleware(cfg.RobotToken))
	{
		robot.Post("/deposits/sweep", routes.RobotSweepDeposits)
		robot.Post("/deposits/auto-release", routes.RobotAutoReleaseDeposits)
	}

	app.Listen(":" + cfg.Port)
}
