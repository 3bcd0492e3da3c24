package models

import (
	"time"

	"gallery/db"
	"gallery/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Contact is an address-book entry used only for invite autocomplete
// ranking, never for access control
type Contact struct {
	ID            uint64  `gorm:"primaryKey"`
	OwnerUserID   string  `gorm:"type:varchar(100);not null;index:uniq_owner_email,unique,priority:1"`
	ContactUserID *string `gorm:"type:varchar(100)"`
	ContactEmail  string  `gorm:"type:varchar(150);not null;index:uniq_owner_email,unique,priority:2"`
	InviteCount   int     `gorm:"not null;default 0"`
	LastInvitedAt int64
}

// BumpContact records one more invite sent by ownerUserID to email
func BumpContact(ownerUserID, email string, contactUserID *string) error {
	now := time.Now().Unix()
	contact := Contact{
		OwnerUserID:   ownerUserID,
		ContactUserID: contactUserID,
		ContactEmail:  utils.NormalizeEmail(email),
		InviteCount:   1,
		LastInvitedAt: now,
	}
	return db.Instance.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_user_id"}, {Name: "contact_email"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"invite_count":    gorm.Expr("invite_count + 1"),
			"last_invited_at": now,
		}),
	}).Create(&contact).Error
}

// ContactsFor returns the owner's address book ranked for autocomplete
func ContactsFor(ownerUserID string, limit int) (contacts []Contact, err error) {
	if limit <= 0 {
		limit = 20
	}
	err = db.Instance.
		Where("owner_user_id = ?", ownerUserID).
		Order("invite_count DESC, last_invited_at DESC").
		Limit(limit).
		Find(&contacts).Error
	return
}
