package jobs

import (
	"log"
	"time"

	"github.com/wellmom/chat-service/database"
	"github.com/wellmom/chat-service/models"
	"github.com/wellmom/chat-service/services"
)

// DeliverScheduledNotifications returns the cron task that dispatches
// notification records whose scheduled time has passed and that were never
// pushed. Chat fallback notifications are pushed inline; this covers records
// other platform services create with a scheduled_for.
func DeliverScheduledNotifications(push services.PushDispatcher) func() {
	return func() {
		log.Println("Running job: DeliverScheduledNotifications...")

		var due []models.Notification
		err := database.DB.
			Where("scheduled_for IS NOT NULL AND scheduled_for <= ? AND sent_at IS NULL", time.Now()).
			Limit(200).
			Find(&due).Error
		if err != nil {
			log.Printf("Error loading scheduled notifications: %v", err)
			return
		}
		if len(due) == 0 {
			return
		}

		for i := range due {
			notification := &due[i]
			if push != nil {
				err := push.Dispatch(notification.UserID, notification.Title, notification.Message, map[string]string{
					"notification_id":   notification.ID.String(),
					"notification_type": notification.NotificationType,
				})
				if err != nil {
					log.Printf("Failed to dispatch scheduled notification %s: %v", notification.ID, err)
					continue
				}
			}

			now := time.Now()
			err = database.DB.Model(notification).Update("sent_at", now).Error
			if err != nil {
				log.Printf("Failed to stamp notification %s as sent: %v", notification.ID, err)
			}
		}
	}
}
