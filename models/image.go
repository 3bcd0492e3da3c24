package models

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gallery/db"
	"gallery/storage"

	"gorm.io/gorm"
)

const (
	presignViewURLFor      = time.Hour * 24 * 7
	presignValidAtLeastFor = time.Minute * 30
)

var ErrStaleGallery = errors.New("gallery was modified concurrently")

type Image struct {
	ID               uint64  `gorm:"primaryKey"`
	GalleryID        uint64  `gorm:"not null;index:gallery_position,priority:1"`
	Gallery          Gallery `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	BucketID         uint64
	Bucket           storage.Bucket `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	PublicID         string         `gorm:"type:varchar(300);not null"` // storage key
	OriginalFilename string         `gorm:"type:varchar(300)"`
	Width            int
	Height           int
	Position         int `gorm:"not null;index:gallery_position,priority:2"`
	CommentCount     int `gorm:"not null;default 0"`
	CreatedAt        int64
	PresignedUntil   int64
	PresignedURL     string `gorm:"type:varchar(2000)"`
}

func (img *Image) BeforeSave(tx *gorm.DB) (err error) {
	// Restrict the characters in OriginalFilename
	var name strings.Builder
	for i, c := range img.OriginalFilename {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			(c == '.' && i > 0) || (c == '-') || (c == '_') {

			name.WriteRune(c)
		} else {
			name.WriteString("_")
		}
	}
	img.OriginalFilename = name.String()
	return
}

// GetKey returns the storage key, e.g. gallery/56/184.jpg
func (img *Image) GetKey() string {
	ext := strings.ToLower(filepath.Ext(img.OriginalFilename))
	if ext == "" {
		ext = ".jpg"
	}
	return "gallery/" + strconv.FormatUint(img.GalleryID, 10) + "/" +
		strconv.FormatUint(img.ID, 10) + ext
}

// GetDownloadURL returns a read URL, re-signing when the cached one is
// not valid for at least another 30 minutes
func (img *Image) GetDownloadURL() (string, int64) {
	bucket := storage.Bucket{ID: img.BucketID}
	if db.Instance.First(&bucket).Error != nil {
		return "", 0
	}
	store := storage.StorageFrom(&bucket)
	if store == nil {
		return "", 0
	}
	if !bucket.IsS3() {
		url, until := store.CreateDownloadURL(img.PublicID, 0)
		return url, until
	}
	if img.PresignedURL == "" || img.PresignedUntil < time.Now().Add(presignValidAtLeastFor).Unix() {
		// Need to sign again..
		img.PresignedURL, img.PresignedUntil = store.CreateDownloadURL(img.PublicID, presignViewURLFor)
		db.Instance.Model(img).Updates(map[string]interface{}{
			"presigned_url":   img.PresignedURL,
			"presigned_until": img.PresignedUntil,
		})
	}
	return img.PresignedURL, img.PresignedUntil
}

// AspectRatio is derived, never stored
func (img *Image) AspectRatio() float64 {
	if img.Height == 0 {
		return 0
	}
	return float64(img.Width) / float64(img.Height)
}

func GalleryImages(galleryID uint64) (images []Image, err error) {
	err = db.Instance.
		Where("gallery_id = ?", galleryID).
		Order("position ASC").
		Find(&images).Error
	return
}

// ReorderImages rewrites every position in one transaction, guarded by
// a compare-and-swap on the gallery version so a concurrent reorder
// from another tab cannot interleave
func ReorderImages(gallery *Gallery, order []uint64) error {
	var count int64
	if err := db.Instance.Model(&Image{}).Where("gallery_id = ?", gallery.ID).Count(&count).Error; err != nil {
		return err
	}
	if int64(len(order)) != count {
		return errors.New("order must include every image exactly once")
	}
	return db.Instance.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Gallery{}).
			Where("id = ? AND version = ?", gallery.ID, gallery.Version).
			Update("version", gallery.Version+1)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrStaleGallery
		}
		for position, imageID := range order {
			result := tx.Model(&Image{}).
				Where("id = ? AND gallery_id = ?", imageID, gallery.ID).
				Update("position", position)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected != 1 {
				return errors.New("unknown image in order")
			}
		}
		gallery.Version++
		return nil
	})
}

// DeleteImages removes rows and compacts the remaining positions so
// the ordering stays dense. Returns the removed rows so the handler
// can delete the stored objects
func DeleteImages(gallery *Gallery, imageIDs []uint64) ([]Image, error) {
	var removed []Image
	err := db.Instance.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Gallery{}).Where("id = ?", gallery.ID).
			Update("version", gorm.Expr("version + 1")).Error; err != nil {
			return err
		}
		if err := tx.Where("gallery_id = ? AND id IN ?", gallery.ID, imageIDs).
			Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		if err := tx.Where("gallery_id = ? AND id IN ?", gallery.ID, imageIDs).
			Delete(&Image{}).Error; err != nil {
			return err
		}
		var rest []Image
		if err := tx.Where("gallery_id = ?", gallery.ID).Order("position ASC").Find(&rest).Error; err != nil {
			return err
		}
		for position, img := range rest {
			if img.Position == position {
				continue
			}
			if err := tx.Model(&Image{}).Where("id = ?", img.ID).
				Update("position", position).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

func NextPosition(tx *gorm.DB, galleryID uint64) int {
	maxPos := -1
	tx.Model(&Image{}).Where("gallery_id = ?", galleryID).
		Select("ifnull(max(position), -1)").Scan(&maxPos)
	return maxPos + 1
}
