package models

import (
	"gallery/db"
	"gallery/utils"

	"gorm.io/gorm"
)

const SlugLength = 10

type Gallery struct {
	ID           uint64 `gorm:"primaryKey"`
	Slug         string `gorm:"type:varchar(20);index:uniq_slug,unique;not null"`
	Title        string `gorm:"type:varchar(300)"`
	OwnerUserID  string `gorm:"type:varchar(100);index;not null"`
	IsPublic     bool   `gorm:"not null;default 0"`
	GuestUpload  bool   `gorm:"not null;default 0"`
	FolderID     *uint64
	Folder       *Folder `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	IsDraft      bool    `gorm:"not null;default 0"`
	// Bumped inside every reorder/move/delete transaction. Concurrent
	// reorders from two tabs race on image positions otherwise
	Version      uint64 `gorm:"not null;default 0"`
	CreatedAt    int64
	LastViewedAt int64
	DeletedAt    gorm.DeletedAt
}

type Folder struct {
	ID          uint64 `gorm:"primaryKey"`
	OwnerUserID string `gorm:"type:varchar(100);index;not null"`
	Name        string `gorm:"type:varchar(300)"`
	CreatedAt   int64
}

func NewGallery(title, ownerUserID string, guestUpload bool) Gallery {
	return Gallery{
		Slug:        utils.RandSlug(SlugLength),
		Title:       title,
		OwnerUserID: ownerUserID,
		GuestUpload: guestUpload,
		// Guest-uploaded galleries are always publicly readable
		IsPublic: guestUpload,
	}
}

// GalleryBySlug loads a non-deleted gallery. gorm.ErrRecordNotFound
// maps to a 404 at the route boundary
func GalleryBySlug(slug string) (g Gallery, err error) {
	err = db.Instance.Where("slug = ?", slug).First(&g).Error
	return
}

// DeletedGalleryBySlug is used by the trash lifecycle endpoints
func DeletedGalleryBySlug(slug, ownerUserID string) (g Gallery, err error) {
	err = db.Instance.Unscoped().
		Where("slug = ? AND owner_user_id = ? AND deleted_at IS NOT NULL", slug, ownerUserID).
		First(&g).Error
	return
}

// PurgeGallery permanently erases the gallery and cascades to its
// images in one transaction
func PurgeGallery(g *Gallery) ([]Image, error) {
	var images []Image
	if err := db.Instance.Where("gallery_id = ?", g.ID).Find(&images).Error; err != nil {
		return nil, err
	}
	err := db.Instance.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gallery_id = ?", g.ID).Delete(&Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("gallery_id = ?", g.ID).Delete(&Invite{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(g).Error
	})
	if err != nil {
		return nil, err
	}
	// Returned so the handler can remove the stored objects as well
	return images, nil
}
