package models

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"gallery/config"
	"gallery/db"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotificationTypeStar          = "star"
	NotificationTypeComment       = "comment"
	NotificationTypeCommentReply  = "comment-reply"
	NotificationTypeGalleryInvite = "gallery-invite"
	NotificationTypeImageUploaded = "image-uploaded"
)

// NotifyPublisher pushes a freshly recorded notification to the
// recipient's private realtime channel. Wired to the realtime manager
// in main, replaced with a fake in tests
var NotifyPublisher func(recipientUserID string, payload []byte)

type Notification struct {
	ID        uint64 `gorm:"primaryKey"`
	UserID    string `gorm:"type:varchar(100);not null;index"` // recipient
	ActorID   string `gorm:"type:varchar(100);not null"`
	Type      string `gorm:"type:varchar(30);not null"`
	GalleryID uint64 `gorm:"not null"`
	// Type-specific grouping target: gallery id for invites, image id
	// for stars/comments/uploads, parent comment id for replies
	TargetID  string `gorm:"type:varchar(100);not null"`
	Data      string `gorm:"type:text"` // denormalized display payload
	GroupID   string `gorm:"type:varchar(40);not null"`
	Count     int    `gorm:"not null;default 1"`
	IsSeen    bool   `gorm:"not null;default 0"`
	CreatedAt int64  `gorm:"index"`
}

type NotificationEvent struct {
	RecipientUserID string
	ActorID         string
	GalleryID       uint64
	Type            string
	TargetID        string
	Data            map[string]interface{}
}

func GroupingWindow() time.Duration {
	return time.Duration(config.NOTIFY_GROUP_WINDOW) * time.Minute
}

// RecordEvent is the aggregator: a matching (recipient, type, actor,
// target) row inside the grouping window is counted up and bumped
// instead of inserting a new one, so repeated events from the same
// actor never spam the recipient. The stored data always reflects the
// latest event
func RecordEvent(event NotificationEvent) (*Notification, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	cutoff := time.Now().Add(-GroupingWindow()).Unix()

	var notification Notification
	err = db.Instance.
		Where("user_id = ? AND type = ? AND actor_id = ? AND target_id = ? AND created_at >= ?",
			event.RecipientUserID, event.Type, event.ActorID, event.TargetID, cutoff).
		First(&notification).Error
	if err == nil {
		notification.Count++
		notification.Data = string(data)
		notification.CreatedAt = now
		err = db.Instance.Model(&notification).Updates(map[string]interface{}{
			"count":      notification.Count,
			"data":       notification.Data,
			"created_at": notification.CreatedAt,
		}).Error
		if err != nil {
			return nil, err
		}
		publishNotification(&notification)
		return &notification, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	notification = Notification{
		UserID:    event.RecipientUserID,
		ActorID:   event.ActorID,
		Type:      event.Type,
		GalleryID: event.GalleryID,
		TargetID:  event.TargetID,
		Data:      string(data),
		GroupID:   uuid.NewString(),
		Count:     1,
		CreatedAt: now,
	}
	if err = db.Instance.Create(&notification).Error; err != nil {
		return nil, err
	}
	publishNotification(&notification)
	return &notification, nil
}

// FanOutToManagers records the event for the owner and every Edit
// collaborator, skipping the actor - nobody is notified about their
// own action
func FanOutToManagers(gallery *Gallery, event NotificationEvent) {
	for _, recipientID := range GalleryManagerIDs(gallery) {
		if recipientID == event.ActorID {
			continue
		}
		event.RecipientUserID = recipientID
		if _, err := RecordEvent(event); err != nil {
			log.Printf("notification fan-out to %s: %v", recipientID, err)
		}
	}
}

func publishNotification(notification *Notification) {
	if NotifyPublisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"kind":         "notification",
		"notification": notification,
	})
	if err != nil {
		return
	}
	NotifyPublisher(notification.UserID, payload)
}

func NotificationsFor(userID string, limit int) (notifications []Notification, err error) {
	if limit <= 0 {
		limit = 50
	}
	err = db.Instance.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return
}

// MarkAllSeen does not touch count or data - only the badge state
func MarkAllSeen(userID string) error {
	return db.Instance.Model(&Notification{}).
		Where("user_id = ? AND is_seen = ?", userID, false).
		Update("is_seen", true).Error
}

func UnseenCount(userID string) int64 {
	var count int64
	db.Instance.Model(&Notification{}).
		Where("user_id = ? AND is_seen = ?", userID, false).
		Count(&count)
	return count
}
