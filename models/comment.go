package models

import (
	"errors"
	"time"

	"gallery/db"

	"gorm.io/gorm"
)

var ErrNestedReply = errors.New("replies to replies are not allowed")

// Comment is anchored at a point on the image (percent coordinates)
// and threads exactly one level deep
type Comment struct {
	ID           uint64  `gorm:"primaryKey"`
	ImageID      uint64  `gorm:"not null;index"`
	Image        Image   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ParentID     *uint64 `gorm:"index"`
	Parent       *Comment `gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Content      string   `gorm:"type:text"`
	XPosition    float64  // 0-100, percent of image width
	YPosition    float64  // 0-100, percent of image height
	UserID       string   `gorm:"type:varchar(100);not null;index"`
	UserName     string   `gorm:"type:varchar(200)"`
	UserImageURL string   `gorm:"type:varchar(500)"`
	CreatedAt    int64
	UpdatedAt    int64
}

type CommentReaction struct {
	ID        uint64  `gorm:"primaryKey"`
	CommentID uint64  `gorm:"not null;index:uniq_reaction,unique,priority:1"`
	Comment   Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	UserID    string  `gorm:"type:varchar(100);not null;index:uniq_reaction,unique,priority:2"`
	Emoji     string  `gorm:"type:varchar(20);not null;index:uniq_reaction,unique,priority:3"`
	CreatedAt int64
}

// CreateComment inserts the row and bumps the image's denormalized
// comment counter in one transaction. A reply must reference a
// top-level comment
func CreateComment(comment *Comment) error {
	if comment.ParentID != nil {
		var parent Comment
		if err := db.Instance.First(&parent, *comment.ParentID).Error; err != nil {
			return err
		}
		if parent.ParentID != nil {
			return ErrNestedReply
		}
		if parent.ImageID != comment.ImageID {
			return errors.New("parent comment belongs to another image")
		}
	}
	return db.Instance.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return tx.Model(&Image{}).Where("id = ?", comment.ImageID).
			Update("comment_count", gorm.Expr("comment_count + 1")).Error
	})
}

// DeleteComment removes a comment plus its replies and fixes the
// counter accordingly
func DeleteComment(comment *Comment) error {
	return db.Instance.Transaction(func(tx *gorm.DB) error {
		var replies int64
		if err := tx.Model(&Comment{}).Where("parent_id = ?", comment.ID).Count(&replies).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", comment.ID).Delete(&Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(comment).Error; err != nil {
			return err
		}
		return tx.Model(&Image{}).Where("id = ?", comment.ImageID).
			Update("comment_count", gorm.Expr("comment_count - ?", replies+1)).Error
	})
}

// ToggleReaction adds the (comment, user, emoji) row, or removes it
// when it already exists. Reports whether the reaction is now present
func ToggleReaction(commentID uint64, userID, emoji string) (bool, error) {
	var existing CommentReaction
	err := db.Instance.
		Where("comment_id = ? AND user_id = ? AND emoji = ?", commentID, userID, emoji).
		First(&existing).Error
	if err == nil {
		return false, db.Instance.Delete(&existing).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	reaction := CommentReaction{
		CommentID: commentID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now().Unix(),
	}
	return true, db.Instance.Create(&reaction).Error
}

// ImageComments loads the image's comments with reactions, top-level
// first, replies grouped under their parents by the client
func ImageComments(imageID uint64) ([]Comment, map[uint64][]CommentReaction, error) {
	var comments []Comment
	err := db.Instance.
		Where("image_id = ?", imageID).
		Order("created_at ASC").
		Find(&comments).Error
	if err != nil {
		return nil, nil, err
	}
	reactions := map[uint64][]CommentReaction{}
	if len(comments) == 0 {
		return comments, reactions, nil
	}
	ids := make([]uint64, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.ID)
	}
	var rows []CommentReaction
	if err = db.Instance.Where("comment_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		reactions[row.CommentID] = append(reactions[row.CommentID], row)
	}
	return comments, reactions, nil
}
