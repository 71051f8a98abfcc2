package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Mohamedcha09/Rentall-mvp-sub000/models"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/mq"
	"github.com/Mohamedcha09/Rentall-mvp-sub000/utils"
	"gorm.io/gorm"
)

// NotificationService writes the in-app notification row and fans the event
// out to the delivery worker over RabbitMQ. Row creation is the source of
// truth; bus publishing and delivery are best-effort.
type NotificationService struct {
	DB        *gorm.DB
	Publisher *mq.Publisher
}

func NewNotificationService(db *gorm.DB, pub *mq.Publisher) *NotificationService {
	return &NotificationService{DB: db, Publisher: pub}
}

// UserNotified is the bus event consumed by the delivery worker.
type UserNotified struct {
	NotificationID uint   `json:"notification_id"`
	UserID         uint   `json:"user_id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	RefType        string `json:"ref_type"`
	RefID          uint   `json:"ref_id"`
}

func (ns *NotificationService) Notify(userID uint, ntype, title, body, refType string, refID uint) {
	n := models.Notification{
		UserID:  userID,
		Type:    ntype,
		Title:   title,
		Body:    body,
		RefType: refType,
		RefID:   refID,
	}
	if err := ns.DB.Create(&n).Error; err != nil {
		log.Printf("notifications: create row for user %d: %v", userID, err)
		return
	}

	if ns.Publisher == nil {
		return
	}
	evt := UserNotified{
		NotificationID: n.ID,
		UserID:         userID,
		Title:          title,
		Body:           body,
		RefType:        refType,
		RefID:          refID,
	}
	if err := ns.Publisher.PublishJSON(context.Background(), "notify.user", evt); err != nil {
		log.Printf("notifications: publish notify.user: %v", err)
	}
}

// NotifyAdmins fans one event to every admin account.
func (ns *NotificationService) NotifyAdmins(ntype, title, body, refType string, refID uint) {
	var admins []models.User
	if err := ns.DB.Where("role IN ?", []string{"admin", "super_admin"}).Find(&admins).Error; err != nil {
		log.Printf("notifications: load admins: %v", err)
		return
	}
	for _, admin := range admins {
		ns.Notify(admin.ID, ntype, title, body, refType, refID)
	}
}

// StartNotificationWorker consumes notify.* events and delivers push + email.
// Delivery failures are logged and the message is acked anyway: the in-app row
// already exists and the original system never retried sends.
func StartNotificationWorker(ctx context.Context, db *gorm.DB, consumer *mq.Consumer) {
	deliveries, err := consumer.Deliveries(ctx)
	if err != nil {
		log.Printf("notification worker: consume: %v", err)
		return
	}

	log.Println("notification worker started")
	for d := range deliveries {
		var evt UserNotified
		if err := json.Unmarshal(d.Body, &evt); err != nil {
			log.Printf("notification worker: bad event: %v", err)
			_ = d.Ack(false)
			continue
		}

		deliverToUser(db, evt)
		_ = d.Ack(false)
	}
}

func deliverToUser(db *gorm.DB, evt UserNotified) {
	var user models.User
	if err := db.First(&user, evt.UserID).Error; err != nil {
		log.Printf("notification worker: user %d not found: %v", evt.UserID, err)
		return
	}

	if user.Email != "" {
		htmlBody := fmt.Sprintf("<p>%s</p>", evt.Body)
		if _, err := utils.SendMail(user.Email, evt.Title, htmlBody); err != nil {
			log.Printf("notification worker: email to user %d: %v", evt.UserID, err)
		}
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return
	}
	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		log.Printf("notification worker: push tokens for user %d: %v", evt.UserID, err)
		return
	}
	data := map[string]string{
		"notificationId": fmt.Sprintf("%d", evt.NotificationID),
		"refType":        evt.RefType,
		"refId":          fmt.Sprintf("%d", evt.RefID),
	}
	for _, token := range tokens {
		if err := utils.SendNotification(token, evt.Title, evt.Body, data); err != nil {
			log.Printf("notification worker: push to token %s: %v", token, err)
		}
	}
}
