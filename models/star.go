package models

import (
	"errors"

	"gallery/db"

	"gorm.io/gorm"
)

// Star is a composite-key row: a user either has or has not starred
// an image. Cardinality is queried live, never counted in a column
type Star struct {
	UserID  string `gorm:"type:varchar(100);primaryKey"`
	ImageID uint64 `gorm:"primaryKey"`
	Image   Image  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// ToggleStar flips the star state and reports whether the image is
// starred afterwards. Starring an already-starred image unstars it,
// so rapid double-clicks cannot create two rows
func ToggleStar(userID string, imageID uint64) (bool, error) {
	var existing Star
	err := db.Instance.
		Where("user_id = ? AND image_id = ?", userID, imageID).
		First(&existing).Error
	if err == nil {
		return false, db.Instance.
			Where("user_id = ? AND image_id = ?", userID, imageID).
			Delete(&Star{}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return true, db.Instance.Create(&Star{UserID: userID, ImageID: imageID}).Error
}

func StarCount(imageID uint64) int64 {
	var count int64
	db.Instance.Model(&Star{}).Where("image_id = ?", imageID).Count(&count)
	return count
}

func IsStarred(userID string, imageID uint64) bool {
	var count int64
	db.Instance.Model(&Star{}).
		Where("user_id = ? AND image_id = ?", userID, imageID).
		Count(&count)
	return count > 0
}
